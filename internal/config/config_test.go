package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podscribe/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[feishu]
app_id = "cli_app"
app_secret = "secret"
app_token = "tbl_token"
table_id = "tbl_id"

[tingwu]
access_key_id = "ak"
access_key_secret = "sk"
app_key = "appkey"

[llm]
api_key = "llm-key"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config to be found at %q", path)
	}
	if cfg.Workflow.CheckInterval != 60 {
		t.Fatalf("expected default check interval, got %d", cfg.Workflow.CheckInterval)
	}
	if cfg.Tingwu.Endpoint != "https://tingwu.cn-shanghai.aliyuncs.com" {
		t.Fatalf("unexpected tingwu endpoint %q", cfg.Tingwu.Endpoint)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) {
		t.Fatalf("expected absolute state dir, got %q", cfg.Paths.StateDir)
	}
	if cfg.StateFilePath() != filepath.Join(cfg.Paths.StateDir, "podscribe_state.json") {
		t.Fatalf("unexpected state file path %q", cfg.StateFilePath())
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
[tingwu]
access_key_id = "ak"
access_key_secret = "sk"
app_key = "appkey"

[llm]
api_key = "llm-key"
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing feishu credentials")
	}
	if !strings.Contains(err.Error(), "feishu.app_id") {
		t.Fatalf("expected feishu.app_id in error, got %v", err)
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[logging]
format = "xml"
`)

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[tingwu]") {
		t.Fatalf("sample config missing tingwu section")
	}
}
