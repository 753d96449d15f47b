// Package pipeline drives episodes through the discovery, transcription,
// and note-generation state machine.
//
// Episodes are processed one at a time. Every state transition is persisted
// before the next stage runs, so a crash at any point resumes from the last
// completed stage instead of redoing paid work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podscribe/internal/episode"
	"podscribe/internal/feishu"
	"podscribe/internal/logging"
	"podscribe/internal/notes"
	"podscribe/internal/resolvecache"
	"podscribe/internal/services"
	"podscribe/internal/store"
	"podscribe/internal/tingwu"
	"podscribe/internal/transcript"
	"podscribe/internal/xiaoyuzhou"
)

// WorkSource enumerates candidate episode references.
type WorkSource interface {
	ListCandidates(ctx context.Context) ([]feishu.Candidate, error)
}

// Resolver turns a reference URL into a stable episode identity and media URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*xiaoyuzhou.EpisodeInfo, error)
}

// Transcriber is the asynchronous transcription protocol.
type Transcriber interface {
	Submit(ctx context.Context, mediaURL string) (string, error)
	Fetch(ctx context.Context, taskID string) (*tingwu.TaskResult, error)
	Poll(ctx context.Context, taskID string, interval, timeout time.Duration) (*tingwu.TaskResult, error)
}

// NoteGenerator produces structured notes from a transcript.
type NoteGenerator interface {
	Generate(ctx context.Context, tr *transcript.Transcript) (*notes.Notes, error)
}

// Renderer persists the final document and returns its path.
type Renderer interface {
	Render(title string, tr *transcript.Transcript, n *notes.Notes) (string, error)
}

// Options tunes orchestrator timing.
type Options struct {
	PollInterval time.Duration // transcription poll cadence
	PollTimeout  time.Duration // how long to wait for a transcription task
	// RecoveryFetchTimeout bounds the cheap fetch of a retained task id
	// before resubmitting a failed episode.
	RecoveryFetchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 20 * time.Minute
	}
	if o.RecoveryFetchTimeout <= 0 {
		o.RecoveryFetchTimeout = 30 * time.Second
	}
	return o
}

// Orchestrator coordinates the adapters around the durable state store.
type Orchestrator struct {
	source        WorkSource
	resolver      Resolver
	transcriber   Transcriber
	generator     NoteGenerator
	renderer      Renderer
	store         *store.Store
	cache         *resolvecache.Cache // advisory; may be nil
	transcriptDir string
	opts          Options
	logger        *slog.Logger
}

// New constructs an orchestrator. The resolve cache may be nil.
func New(
	source WorkSource,
	resolver Resolver,
	transcriber Transcriber,
	generator NoteGenerator,
	renderer Renderer,
	st *store.Store,
	cache *resolvecache.Cache,
	transcriptDir string,
	opts Options,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if source == nil || resolver == nil || transcriber == nil || generator == nil || renderer == nil || st == nil {
		return nil, errors.New("pipeline requires source, resolver, transcriber, generator, renderer, and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		source:        source,
		resolver:      resolver,
		transcriber:   transcriber,
		generator:     generator,
		renderer:      renderer,
		store:         st,
		cache:         cache,
		transcriptDir: transcriptDir,
		opts:          opts.withDefaults(),
		logger:        logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// DiscoverAndProcess runs one discovery pass: it enumerates candidates,
// skips completed episodes, and drives the rest through the state machine.
// It returns the number of episodes that reached completed during the pass.
// Individual episode failures are logged and do not abort the pass.
func (o *Orchestrator) DiscoverAndProcess(ctx context.Context) (int, error) {
	candidates, err := o.source.ListCandidates(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrExternal, "pipeline", "discover", "list candidates", err)
	}
	o.logger.Info("discovery pass started", logging.Int("candidate_count", len(candidates)))

	completed := 0
	seen := make(map[string]struct{})
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}

		episodeID, done, err := o.processCandidate(ctx, candidate, seen)
		if err != nil {
			o.logger.Error("episode processing failed",
				logging.String(logging.FieldRecordID, candidate.RecordID),
				logging.String(logging.FieldEpisodeID, episodeID),
				logging.Error(err))
			continue
		}
		if done {
			completed++
		}
	}

	if err := o.store.SetLastCheckTime(time.Now()); err != nil {
		return completed, err
	}
	o.logger.Info("discovery pass finished", logging.Int("completed_count", completed))
	return completed, nil
}

// processCandidate resolves one candidate and advances its episode. The
// returned bool reports whether the episode reached completed during this
// call (already-completed episodes report false so pass counts reflect new
// work only).
func (o *Orchestrator) processCandidate(ctx context.Context, candidate feishu.Candidate, seen map[string]struct{}) (string, bool, error) {
	info, err := o.resolveCandidate(ctx, candidate.URL)
	if err != nil {
		return "", false, err
	}
	if _, dup := seen[info.EpisodeID]; dup {
		return info.EpisodeID, false, nil
	}
	seen[info.EpisodeID] = struct{}{}

	// Terminal state: skip without touching any adapter.
	if o.store.IsCompleted(info.EpisodeID) {
		return info.EpisodeID, false, nil
	}

	title := candidate.Title
	if title == "" {
		title = info.Title
	}
	if err := o.runEpisode(ctx, info.EpisodeID, candidate.RecordID, candidate.URL, title, info.AudioURL); err != nil {
		return info.EpisodeID, false, err
	}
	return info.EpisodeID, true, nil
}

// resolveCandidate obtains the episode identity for a raw URL, preferring
// the advisory cache when it can avoid a page fetch. The cache can only
// short-circuit the resolver for episodes the state store already knows;
// everything else goes through the resolver and refreshes the cache.
func (o *Orchestrator) resolveCandidate(ctx context.Context, rawURL string) (*xiaoyuzhou.EpisodeInfo, error) {
	if entry, found, err := o.cache.Lookup(ctx, rawURL); err != nil {
		o.logger.Warn("resolve cache lookup failed", logging.Error(err))
	} else if found {
		if _, known := o.store.Get(entry.EpisodeID); known {
			return &xiaoyuzhou.EpisodeInfo{
				EpisodeID: entry.EpisodeID,
				AudioURL:  entry.MediaURL,
				Title:     entry.Title,
			}, nil
		}
	}

	info, err := o.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := o.cache.Store(ctx, resolvecache.Entry{
		URL:       rawURL,
		EpisodeID: info.EpisodeID,
		MediaURL:  info.AudioURL,
		Title:     info.Title,
	}); err != nil {
		o.logger.Warn("resolve cache store failed", logging.Error(err))
	}
	return info, nil
}

// ProcessEpisode drives a single reference end to end. It returns true when
// the episode is completed (including episodes that already were), false on
// failure; the episode is left in its last known state for the next pass.
func (o *Orchestrator) ProcessEpisode(ctx context.Context, recordID, url, title string) bool {
	info, err := o.resolveCandidate(ctx, url)
	if err != nil {
		o.logger.Error("resolution failed",
			logging.String(logging.FieldRecordID, recordID),
			logging.Error(err))
		return false
	}
	if o.store.IsCompleted(info.EpisodeID) {
		return true
	}
	if title == "" {
		title = info.Title
	}
	if err := o.runEpisode(ctx, info.EpisodeID, recordID, url, title, info.AudioURL); err != nil {
		o.logger.Error("episode processing failed",
			logging.String(logging.FieldEpisodeID, info.EpisodeID),
			logging.Error(err))
		return false
	}
	return true
}

// runEpisode advances an episode from its current state to completed.
func (o *Orchestrator) runEpisode(ctx context.Context, episodeID, recordID, url, title, audioURL string) error {
	if !o.store.HasTranscript(episodeID) {
		if err := o.transcribe(ctx, episodeID, recordID, url, title, audioURL); err != nil {
			return err
		}
	}
	return o.generateAndRender(ctx, episodeID, title)
}

// transcribe takes an episode through transcribing to transcribed. A retained
// task id from a previous failed or interrupted run is fetched first with a
// short timeout so finished work is never paid for twice.
func (o *Orchestrator) transcribe(ctx context.Context, episodeID, recordID, url, title, audioURL string) error {
	existing, _ := o.store.Get(episodeID)
	if err := o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.State = episode.StateTranscribing
		ep.RecordID = recordID
		ep.URL = url
		ep.Title = title
		ep.AudioURL = audioURL
	}); err != nil {
		return err
	}

	result, err := o.recoverOrSubmit(ctx, episodeID, existing.TaskID, audioURL)
	if err != nil {
		return o.failTranscription(episodeID, err)
	}
	if result.Status == tingwu.StatusFailed {
		return o.failTranscription(episodeID, services.Wrap(services.ErrExternal, "pipeline", "transcribe",
			fmt.Sprintf("provider reported failure: %s", result.FailReason), nil))
	}

	path, err := transcript.Save(o.transcriptDir, episodeID, result.Transcript)
	if err != nil {
		return o.failTranscription(episodeID, err)
	}

	o.logger.Info("episode transcribed",
		logging.String(logging.FieldEpisodeID, episodeID),
		logging.String(logging.FieldTaskID, result.TaskID))
	return o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.State = episode.StateTranscribed
		ep.TaskID = result.TaskID
		ep.TranscriptionPath = path
		ep.Error = ""
		ep.FailedAt = nil
	})
}

// recoverOrSubmit returns a succeeded task result, trying the retained task
// id before submitting a fresh transcription request.
func (o *Orchestrator) recoverOrSubmit(ctx context.Context, episodeID, retainedTaskID, audioURL string) (*tingwu.TaskResult, error) {
	if retainedTaskID != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, o.opts.RecoveryFetchTimeout)
		result, err := o.transcriber.Fetch(fetchCtx, retainedTaskID)
		cancel()
		if err == nil && result.Status == tingwu.StatusSucceeded {
			o.logger.Info("recovered finished transcription task",
				logging.String(logging.FieldEpisodeID, episodeID),
				logging.String(logging.FieldTaskID, retainedTaskID))
			return result, nil
		}
		o.logger.Info("retained task not recoverable, resubmitting",
			logging.String(logging.FieldEpisodeID, episodeID),
			logging.String(logging.FieldTaskID, retainedTaskID))
	}

	taskID, err := o.transcriber.Submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	if err := o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.TaskID = taskID
	}); err != nil {
		return nil, err
	}

	result, err := o.transcriber.Poll(ctx, taskID, o.opts.PollInterval, o.opts.PollTimeout)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) failTranscription(episodeID string, cause error) error {
	if err := o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.SetFailed(cause.Error(), time.Now().UTC())
	}); err != nil {
		return err
	}
	return cause
}

// generateAndRender runs the note pipeline for a transcribed episode and
// completes it. On failure the episode stays transcribed with the error
// recorded, so the next pass retries notes without re-transcribing.
func (o *Orchestrator) generateAndRender(ctx context.Context, episodeID, title string) error {
	ep, found := o.store.Get(episodeID)
	if !found || !ep.HasTranscript() {
		return services.Wrap(services.ErrConfiguration, "pipeline", "notes",
			fmt.Sprintf("episode %s has no transcript to generate notes from", episodeID), nil)
	}
	if title == "" {
		title = ep.Title
	}

	path := ep.TranscriptionPath
	if path == "" {
		path = transcript.SidePath(o.transcriptDir, episodeID)
	}
	tr, err := transcript.Load(path)
	if err != nil {
		return o.failNotes(episodeID, err)
	}

	generated, err := o.generator.Generate(ctx, tr)
	if err != nil {
		return o.failNotes(episodeID, err)
	}
	notePath, err := o.renderer.Render(title, tr, generated)
	if err != nil {
		return o.failNotes(episodeID, err)
	}

	o.logger.Info("episode completed",
		logging.String(logging.FieldEpisodeID, episodeID),
		logging.String("note_path", notePath))
	return o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.SetCompleted(notePath, time.Now().UTC())
	})
}

// failNotes records a note-generation failure without leaving transcribed.
func (o *Orchestrator) failNotes(episodeID string, cause error) error {
	now := time.Now().UTC()
	if err := o.store.Upsert(episodeID, func(ep *episode.Episode) {
		ep.Error = cause.Error()
		ep.FailedAt = &now
	}); err != nil {
		return err
	}
	return cause
}

// GenerateNotes re-runs only the note-generation and rendering stages for an
// episode with a persisted transcript. Calling it again after success
// re-renders the same document.
func (o *Orchestrator) GenerateNotes(ctx context.Context, episodeID string) error {
	return o.generateAndRender(ctx, episodeID, "")
}
