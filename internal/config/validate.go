package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeishu(); err != nil {
		return err
	}
	if err := c.validateTingwu(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateFeishu() error {
	if c.Feishu.AppID == "" {
		return requiredKeyError("feishu.app_id")
	}
	if c.Feishu.AppSecret == "" {
		return requiredKeyError("feishu.app_secret")
	}
	if c.Feishu.AppToken == "" {
		return requiredKeyError("feishu.app_token")
	}
	if c.Feishu.TableID == "" {
		return requiredKeyError("feishu.table_id")
	}
	return nil
}

func (c *Config) validateTingwu() error {
	if c.Tingwu.AccessKeyID == "" {
		return requiredKeyError("tingwu.access_key_id")
	}
	if c.Tingwu.AccessKeySecret == "" {
		return requiredKeyError("tingwu.access_key_secret")
	}
	if c.Tingwu.AppKey == "" {
		return requiredKeyError("tingwu.app_key")
	}
	return ensurePositiveMap(map[string]int{
		"tingwu.poll_interval":          c.Tingwu.PollInterval,
		"tingwu.poll_timeout":           c.Tingwu.PollTimeout,
		"tingwu.recovery_fetch_timeout": c.Tingwu.RecoveryFetchTimeout,
	})
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		return requiredKeyError("llm.api_key")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.check_interval": c.Workflow.CheckInterval,
		"notes.segment_seconds":   c.Notes.SegmentSeconds,
		"notes.min_segments":      c.Notes.MinSegments,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func requiredKeyError(key string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/podscribe/config.toml"
	}
	return fmt.Errorf("%s is required. Edit %s (create with 'podscribe config init')", key, defaultPath)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return errors.New(key + " must be greater than zero")
		}
	}
	return nil
}
