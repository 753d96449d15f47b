package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/feishu"
	"podscribe/internal/llm"
	"podscribe/internal/logging"
	"podscribe/internal/markdown"
	"podscribe/internal/notes"
	"podscribe/internal/pipeline"
	"podscribe/internal/resolvecache"
	"podscribe/internal/store"
	"podscribe/internal/tingwu"
	"podscribe/internal/xiaoyuzhou"
)

// runtime bundles the wired pipeline with everything it owns.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	cache        *resolvecache.Cache
	orchestrator *pipeline.Orchestrator
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if err := r.cache.Close(); err != nil {
		r.logger.Warn("close resolve cache", logging.Error(err))
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logPath := filepath.Join(cfg.Paths.LogDir, "podscribe.log")
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
}

// buildRuntime constructs every adapter from configuration and assembles the
// orchestrator around the durable state store.
func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	st, err := store.Open(cfg.StateFilePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	var cache *resolvecache.Cache
	if cfg.ResolveCache.Enabled {
		cache, err = resolvecache.Open(cfg.ResolveCache.Path)
		if err != nil {
			// Advisory only; the pipeline is fully functional without it.
			logger.Warn("resolve cache unavailable", logging.Error(err))
			cache = nil
		}
	}

	source, err := feishu.New(
		cfg.Feishu.AppID,
		cfg.Feishu.AppSecret,
		cfg.Feishu.AppToken,
		cfg.Feishu.TableID,
		cfg.Feishu.BaseURL,
		cfg.Feishu.PageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("build work source: %w", err)
	}

	transcriber, err := tingwu.New(tingwu.Config{
		AccessKeyID:     cfg.Tingwu.AccessKeyID,
		AccessKeySecret: cfg.Tingwu.AccessKeySecret,
		AppKey:          cfg.Tingwu.AppKey,
		Endpoint:        cfg.Tingwu.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}

	chatClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	generator := notes.NewGenerator(chatClient, notes.Options{
		SegmentSeconds:  cfg.Notes.SegmentSeconds,
		MinSegments:     cfg.Notes.MinSegments,
		MaxSampledLines: cfg.Notes.MaxSampledLines,
		KeyInsights:     cfg.Notes.KeyInsights,
	}, logger)

	orchestrator, err := pipeline.New(
		source,
		xiaoyuzhou.NewResolver(),
		transcriber,
		generator,
		markdown.NewRenderer(cfg.Paths.NotesDir),
		st,
		cache,
		cfg.Paths.TranscriptDir,
		pipeline.Options{
			PollInterval:         time.Duration(cfg.Tingwu.PollInterval) * time.Second,
			PollTimeout:          time.Duration(cfg.Tingwu.PollTimeout) * time.Second,
			RecoveryFetchTimeout: time.Duration(cfg.Tingwu.RecoveryFetchTimeout) * time.Second,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		cache:        cache,
		orchestrator: orchestrator,
	}, nil
}
