package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeTestConfig drops a minimal valid config into a temp dir and returns
// its path plus the state directory it points at.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	configPath := filepath.Join(base, "config.toml")
	contents := fmt.Sprintf(`[paths]
state_dir = %q
notes_dir = %q

[feishu]
app_id = "cli_test"
app_secret = "secret"
app_token = "token"
table_id = "tbl"

[tingwu]
access_key_id = "ak"
access_key_secret = "sk"
app_key = "app"

[llm]
api_key = "key"
`, stateDir, filepath.Join(base, "notes"))
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, stateDir
}
