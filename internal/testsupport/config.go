package testsupport

import (
	"path/filepath"
	"testing"

	"podscribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories and test
// credentials, validated the same way production loads are.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.NotesDir = filepath.Join(base, "notes")
	cfg.Paths.TranscriptDir = filepath.Join(base, "transcripts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Feishu.AppID = "cli_test"
	cfg.Feishu.AppSecret = "test-secret"
	cfg.Feishu.AppToken = "bascn_test"
	cfg.Feishu.TableID = "tbl_test"
	cfg.Tingwu.AccessKeyID = "ak_test"
	cfg.Tingwu.AccessKeySecret = "sk_test"
	cfg.Tingwu.AppKey = "app_test"
	cfg.LLM.APIKey = "llm_test"
	cfg.ResolveCache.Enabled = true
	cfg.ResolveCache.Path = filepath.Join(base, "cache", "resolutions.db")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create test directories: %v", err)
	}
	return &cfg
}

// WithCheckInterval overrides the discovery loop interval in seconds.
func WithCheckInterval(seconds int) ConfigOption {
	return func(c *config.Config) {
		c.Workflow.CheckInterval = seconds
	}
}

// WithResolveCacheDisabled turns the advisory resolver cache off.
func WithResolveCacheDisabled() ConfigOption {
	return func(c *config.Config) {
		c.ResolveCache.Enabled = false
	}
}
