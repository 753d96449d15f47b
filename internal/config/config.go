package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir      string `toml:"state_dir"`
	NotesDir      string `toml:"notes_dir"`
	TranscriptDir string `toml:"transcript_dir"`
	LogDir        string `toml:"log_dir"`
}

// Feishu contains configuration for the bitable work source.
type Feishu struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	AppToken  string `toml:"app_token"`
	TableID   string `toml:"table_id"`
	BaseURL   string `toml:"base_url"`
	PageSize  int    `toml:"page_size"`
}

// Tingwu contains configuration for the transcription provider.
type Tingwu struct {
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
	AppKey          string `toml:"app_key"`
	RegionID        string `toml:"region_id"`
	Endpoint        string `toml:"endpoint"`
	PollInterval    int    `toml:"poll_interval"`
	PollTimeout     int    `toml:"poll_timeout"`
	// RecoveryFetchTimeout bounds the cheap probe of a retained task id
	// before a resubmission is considered.
	RecoveryFetchTimeout int `toml:"recovery_fetch_timeout"`
}

// LLM contains connection settings for the text-generation provider.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notes contains tuning for the note-generation pipeline.
type Notes struct {
	SegmentSeconds  int `toml:"segment_seconds"`
	MinSegments     int `toml:"min_segments"`
	MaxSampledLines int `toml:"max_sampled_lines"`
	KeyInsights     int `toml:"key_insights"`
}

// Workflow contains service loop intervals.
type Workflow struct {
	CheckInterval int `toml:"check_interval"`
}

// ResolveCache contains configuration for the reference-level resolver cache.
type ResolveCache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for podscribe.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Feishu       Feishu       `toml:"feishu"`
	Tingwu       Tingwu       `toml:"tingwu"`
	LLM          LLM          `toml:"llm"`
	Notes        Notes        `toml:"notes"`
	Workflow     Workflow     `toml:"workflow"`
	ResolveCache ResolveCache `toml:"resolve_cache"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podscribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for service operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.NotesDir, c.Paths.TranscriptDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.ResolveCache.Enabled && strings.TrimSpace(c.ResolveCache.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.ResolveCache.Path), 0o755); err != nil {
			return fmt.Errorf("create resolve cache directory: %w", err)
		}
	}
	return nil
}

// StateFilePath returns the location of the durable episode state file.
func (c *Config) StateFilePath() string {
	return filepath.Join(c.Paths.StateDir, "podscribe_state.json")
}

// LockFilePath returns the location of the single-instance lock file.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "podscribe.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
