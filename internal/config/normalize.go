package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeishu()
	c.normalizeTingwu()
	c.normalizeLLM()
	c.normalizeNotes()
	c.normalizeWorkflow()
	if err := c.normalizeResolveCache(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.NotesDir, err = expandPath(c.Paths.NotesDir); err != nil {
		return fmt.Errorf("paths.notes_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TranscriptDir) == "" {
		c.Paths.TranscriptDir = filepath.Join(c.Paths.StateDir, "transcripts")
	}
	if c.Paths.TranscriptDir, err = expandPath(c.Paths.TranscriptDir); err != nil {
		return fmt.Errorf("paths.transcript_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFeishu() {
	c.Feishu.AppID = strings.TrimSpace(c.Feishu.AppID)
	c.Feishu.AppSecret = strings.TrimSpace(c.Feishu.AppSecret)
	c.Feishu.AppToken = strings.TrimSpace(c.Feishu.AppToken)
	c.Feishu.TableID = strings.TrimSpace(c.Feishu.TableID)
	c.Feishu.BaseURL = strings.TrimRight(strings.TrimSpace(c.Feishu.BaseURL), "/")
	if c.Feishu.BaseURL == "" {
		c.Feishu.BaseURL = defaultFeishuBaseURL
	}
	if c.Feishu.PageSize <= 0 {
		c.Feishu.PageSize = defaultFeishuPageSize
	}
}

func (c *Config) normalizeTingwu() {
	c.Tingwu.AccessKeyID = strings.TrimSpace(c.Tingwu.AccessKeyID)
	c.Tingwu.AccessKeySecret = strings.TrimSpace(c.Tingwu.AccessKeySecret)
	c.Tingwu.AppKey = strings.TrimSpace(c.Tingwu.AppKey)
	c.Tingwu.RegionID = strings.TrimSpace(c.Tingwu.RegionID)
	if c.Tingwu.RegionID == "" {
		c.Tingwu.RegionID = defaultTingwuRegion
	}
	c.Tingwu.Endpoint = strings.TrimRight(strings.TrimSpace(c.Tingwu.Endpoint), "/")
	if c.Tingwu.Endpoint == "" {
		c.Tingwu.Endpoint = fmt.Sprintf("https://tingwu.%s.aliyuncs.com", c.Tingwu.RegionID)
	}
	if c.Tingwu.PollInterval <= 0 {
		c.Tingwu.PollInterval = defaultTingwuPollInterval
	}
	if c.Tingwu.PollTimeout <= 0 {
		c.Tingwu.PollTimeout = defaultTingwuPollTimeout
	}
	if c.Tingwu.RecoveryFetchTimeout <= 0 {
		c.Tingwu.RecoveryFetchTimeout = defaultTingwuRecoveryFetch
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeNotes() {
	if c.Notes.SegmentSeconds <= 0 {
		c.Notes.SegmentSeconds = defaultNotesSegmentSeconds
	}
	if c.Notes.MinSegments <= 0 {
		c.Notes.MinSegments = defaultNotesMinSegments
	}
	if c.Notes.MaxSampledLines <= 0 {
		c.Notes.MaxSampledLines = defaultNotesMaxSampledLines
	}
	if c.Notes.KeyInsights <= 0 {
		c.Notes.KeyInsights = defaultNotesKeyInsights
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.CheckInterval <= 0 {
		c.Workflow.CheckInterval = defaultCheckInterval
	}
}

func (c *Config) normalizeResolveCache() error {
	if !c.ResolveCache.Enabled {
		return nil
	}
	if strings.TrimSpace(c.ResolveCache.Path) == "" {
		c.ResolveCache.Path = filepath.Join(c.Paths.StateDir, "resolve_cache.db")
	}
	expanded, err := expandPath(c.ResolveCache.Path)
	if err != nil {
		return fmt.Errorf("resolve_cache.path: %w", err)
	}
	c.ResolveCache.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
