package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"podscribe/internal/episode"
	"podscribe/internal/feishu"
	"podscribe/internal/notes"
	"podscribe/internal/resolvecache"
	"podscribe/internal/store"
	"podscribe/internal/tingwu"
	"podscribe/internal/transcript"
	"podscribe/internal/xiaoyuzhou"
)

type fakeSource struct {
	candidates []feishu.Candidate
}

func (f *fakeSource) ListCandidates(ctx context.Context) ([]feishu.Candidate, error) {
	return f.candidates, nil
}

type fakeResolver struct {
	byURL map[string]*xiaoyuzhou.EpisodeInfo
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, url string) (*xiaoyuzhou.EpisodeInfo, error) {
	f.calls++
	info, ok := f.byURL[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return info, nil
}

type fakeTranscriber struct {
	submitCalls  int
	fetchCalls   int
	submitErr    error
	fetchResult  *tingwu.TaskResult
	fetchErr     error
	pollResult   *tingwu.TaskResult
	pollErr      error
	lastMediaURL string
}

func (f *fakeTranscriber) Submit(ctx context.Context, mediaURL string) (string, error) {
	f.submitCalls++
	f.lastMediaURL = mediaURL
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return fmt.Sprintf("task-%d", f.submitCalls), nil
}

func (f *fakeTranscriber) Fetch(ctx context.Context, taskID string) (*tingwu.TaskResult, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchResult != nil {
		return f.fetchResult, nil
	}
	return &tingwu.TaskResult{TaskID: taskID, Status: tingwu.StatusPending}, nil
}

func (f *fakeTranscriber) Poll(ctx context.Context, taskID string, interval, timeout time.Duration) (*tingwu.TaskResult, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.pollResult != nil {
		result := *f.pollResult
		result.TaskID = taskID
		return &result, nil
	}
	return &tingwu.TaskResult{TaskID: taskID, Status: tingwu.StatusSucceeded, Transcript: sampleTranscript()}, nil
}

type fakeGenerator struct {
	calls int
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, tr *transcript.Transcript) (*notes.Notes, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &notes.Notes{Synopsis: "synopsis", KeyInsights: []string{"insight"}}, nil
}

type fakeRenderer struct {
	dir   string
	calls int
	err   error
}

func (f *fakeRenderer) Render(title string, tr *transcript.Transcript, n *notes.Notes) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(f.dir, title+".md"), nil
}

func sampleTranscript() *transcript.Transcript {
	return &transcript.Transcript{
		Utterances: []transcript.Utterance{
			{Text: "开场", StartTime: 0, EndTime: 10},
			{Text: "主题", StartTime: 10, EndTime: 20},
			{Text: "结尾", StartTime: 20, EndTime: 30},
		},
	}
}

type fixture struct {
	orchestrator *Orchestrator
	source       *fakeSource
	resolver     *fakeResolver
	transcriber  *fakeTranscriber
	generator    *fakeGenerator
	renderer     *fakeRenderer
	store        *store.Store
	statePath    string
	dir          string
}

func newFixture(t *testing.T, cache *resolvecache.Cache) *fixture {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	st, err := store.Open(statePath, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	f := &fixture{
		source: &fakeSource{},
		resolver: &fakeResolver{byURL: map[string]*xiaoyuzhou.EpisodeInfo{
			"https://www.xiaoyuzhoufm.com/episode/e1": {EpisodeID: "e1", AudioURL: "https://media/e1.m4a", Title: "第一期"},
			"https://www.xiaoyuzhoufm.com/episode/e2": {EpisodeID: "e2", AudioURL: "https://media/e2.m4a", Title: "第二期"},
		}},
		transcriber: &fakeTranscriber{},
		generator:   &fakeGenerator{},
		renderer:    &fakeRenderer{dir: dir},
		store:       st,
		statePath:   statePath,
		dir:         dir,
	}
	f.orchestrator, err = New(
		f.source, f.resolver, f.transcriber, f.generator, f.renderer,
		st, cache, filepath.Join(dir, "transcripts"),
		Options{PollInterval: time.Millisecond, PollTimeout: time.Second, RecoveryFetchTimeout: 10 * time.Millisecond},
		nil,
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return f
}

func candidate(recordID, episodeID string) feishu.Candidate {
	return feishu.Candidate{
		RecordID: recordID,
		URL:      "https://www.xiaoyuzhoufm.com/episode/" + episodeID,
		Title:    "候选 " + episodeID,
	}
}

func TestFullEpisodeLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	count, err := f.orchestrator.DiscoverAndProcess(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAndProcess failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 completion, got %d", count)
	}

	ep, found := f.store.Get("e1")
	if !found || !ep.IsCompleted() {
		t.Fatalf("unexpected episode %+v", ep)
	}
	if ep.NotePath == "" || ep.TaskID != "task-1" || ep.CompletedAt == nil {
		t.Fatalf("episode record incomplete: %+v", ep)
	}
	if _, err := os.Stat(ep.TranscriptionPath); err != nil {
		t.Fatalf("transcript side file missing: %v", err)
	}
	if f.store.LastCheckTime().IsZero() {
		t.Fatal("last check time not recorded")
	}
}

func TestIdempotentDiscovery(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatalf("first pass should complete one episode, got %d", count)
	}
	count, err := f.orchestrator.DiscoverAndProcess(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("second pass should process nothing, got %d", count)
	}
	if f.transcriber.submitCalls != 1 || f.generator.calls != 1 {
		t.Fatalf("adapters re-invoked: submits=%d generates=%d", f.transcriber.submitCalls, f.generator.calls)
	}
}

func TestNoDuplicateSpendAfterRestart(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	// Render failure leaves the episode transcribed.
	f.renderer.err = errors.New("disk full")
	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 0 {
		t.Fatal("pass should not count a failed episode")
	}
	ep, _ := f.store.Get("e1")
	if ep.State != episode.StateTranscribed || ep.Error == "" {
		t.Fatalf("expected transcribed with error, got %+v", ep)
	}

	// Simulate a restart: fresh store and orchestrator over the same files.
	reopened, err := store.Open(f.statePath, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	f.renderer.err = nil
	restarted, err := New(
		f.source, f.resolver, f.transcriber, f.generator, f.renderer,
		reopened, nil, filepath.Join(f.dir, "transcripts"),
		Options{PollInterval: time.Millisecond, PollTimeout: time.Second}, nil,
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if count, _ := restarted.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatal("restarted pass should complete the episode")
	}
	if f.transcriber.submitCalls != 1 {
		t.Fatalf("transcription submitted twice: %d", f.transcriber.submitCalls)
	}
}

func TestGenerateNotesResumability(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	f.generator.err = errors.New("model unavailable")
	f.orchestrator.DiscoverAndProcess(context.Background())

	ep, _ := f.store.Get("e1")
	if ep.State != episode.StateTranscribed || ep.TranscriptionPath == "" {
		t.Fatalf("expected transcribed with transcript path, got %+v", ep)
	}

	f.generator.err = nil
	if err := f.orchestrator.GenerateNotes(context.Background(), "e1"); err != nil {
		t.Fatalf("GenerateNotes failed: %v", err)
	}
	ep, _ = f.store.Get("e1")
	if !ep.IsCompleted() {
		t.Fatalf("expected completed, got %+v", ep)
	}
	if f.transcriber.submitCalls != 1 {
		t.Fatalf("notes retry must not transcribe again: %d submits", f.transcriber.submitCalls)
	}

	// Idempotent: a second call re-renders without error.
	if err := f.orchestrator.GenerateNotes(context.Background(), "e1"); err != nil {
		t.Fatalf("repeat GenerateNotes failed: %v", err)
	}
	if f.renderer.calls != 2 {
		t.Fatalf("expected two renders, got %d", f.renderer.calls)
	}
}

func TestStableIdentityAcrossReferences(t *testing.T) {
	f := newFixture(t, nil)
	// Two raw references resolving to the same episode.
	f.resolver.byURL["https://www.xiaoyuzhoufm.com/podcast/p/episode/e1"] =
		f.resolver.byURL["https://www.xiaoyuzhoufm.com/episode/e1"]
	f.source.candidates = []feishu.Candidate{
		candidate("rec1", "e1"),
		{RecordID: "rec2", URL: "https://www.xiaoyuzhoufm.com/podcast/p/episode/e1", Title: "同一期"},
	}

	count, err := f.orchestrator.DiscoverAndProcess(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAndProcess failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one completion for one asset, got %d", count)
	}
	if f.store.Count() != 1 {
		t.Fatalf("expected one episode record, got %d", f.store.Count())
	}
	if f.transcriber.submitCalls != 1 {
		t.Fatalf("duplicate reference caused duplicate submit: %d", f.transcriber.submitCalls)
	}
}

func TestTerminalSkipUsesCacheNotResolver(t *testing.T) {
	cache, err := resolvecache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	f := newFixture(t, cache)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatal("first pass should complete the episode")
	}
	resolverCalls := f.resolver.calls

	// The reference reappears: state store plus cache must short-circuit
	// without invoking any adapter.
	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 0 {
		t.Fatal("second pass should skip the completed episode")
	}
	if f.resolver.calls != resolverCalls {
		t.Fatalf("resolver invoked for completed episode: %d calls", f.resolver.calls)
	}
	if f.transcriber.submitCalls != 1 || f.generator.calls != 1 || f.renderer.calls != 1 {
		t.Fatal("adapters invoked for completed episode")
	}
}

func TestSubmitFailureMarksTranscriptionFailedAndRetries(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec2", "e2")}

	f.transcriber.submitErr = errors.New("quota exceeded")
	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 0 {
		t.Fatal("failed submit should not count as completion")
	}
	ep, found := f.store.Get("e2")
	if !found || ep.State != episode.StateTranscriptionFailed {
		t.Fatalf("expected transcription_failed, got %+v", ep)
	}
	if ep.Error == "" || ep.FailedAt == nil {
		t.Fatalf("failure not recorded: %+v", ep)
	}

	// Next pass retries rather than skipping.
	f.transcriber.submitErr = nil
	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatal("retry pass should complete the episode")
	}
	if f.transcriber.submitCalls != 2 {
		t.Fatalf("expected a resubmit, got %d submits", f.transcriber.submitCalls)
	}
}

func TestRetainedTaskRecoveredBeforeResubmit(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	// Episode failed previously but kept its task id.
	if err := f.store.Upsert("e1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscriptionFailed
		ep.TaskID = "task-old"
		ep.Error = "poll timeout"
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	f.transcriber.fetchResult = &tingwu.TaskResult{
		TaskID:     "task-old",
		Status:     tingwu.StatusSucceeded,
		Transcript: sampleTranscript(),
	}

	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatal("recovery pass should complete the episode")
	}
	if f.transcriber.submitCalls != 0 {
		t.Fatalf("recovered task must not be resubmitted: %d submits", f.transcriber.submitCalls)
	}
	if f.transcriber.fetchCalls != 1 {
		t.Fatalf("expected one recovery fetch, got %d", f.transcriber.fetchCalls)
	}
	ep, _ := f.store.Get("e1")
	if !ep.IsCompleted() || ep.TaskID != "task-old" {
		t.Fatalf("unexpected episode %+v", ep)
	}
}

func TestRetainedTaskUnrecoverableFallsBackToSubmit(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{candidate("rec1", "e1")}

	if err := f.store.Upsert("e1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscriptionFailed
		ep.TaskID = "task-old"
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	f.transcriber.fetchErr = errors.New("task expired")

	if count, _ := f.orchestrator.DiscoverAndProcess(context.Background()); count != 1 {
		t.Fatal("pass should complete via resubmission")
	}
	if f.transcriber.submitCalls != 1 {
		t.Fatalf("expected resubmit after failed recovery, got %d", f.transcriber.submitCalls)
	}
}

func TestResolutionFailureSkipsCandidate(t *testing.T) {
	f := newFixture(t, nil)
	f.source.candidates = []feishu.Candidate{
		{RecordID: "bad", URL: "https://www.xiaoyuzhoufm.com/episode/unknown"},
		candidate("rec1", "e1"),
	}

	count, err := f.orchestrator.DiscoverAndProcess(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAndProcess failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("resolvable candidate should still complete, got %d", count)
	}
	if f.store.Count() != 1 {
		t.Fatalf("unresolvable candidate must not create a record: %d", f.store.Count())
	}
}

func TestProcessEpisodeReturnsTrueForCompleted(t *testing.T) {
	f := newFixture(t, nil)
	url := "https://www.xiaoyuzhoufm.com/episode/e1"

	if !f.orchestrator.ProcessEpisode(context.Background(), "rec1", url, "第一期") {
		t.Fatal("ProcessEpisode should succeed")
	}
	if !f.orchestrator.ProcessEpisode(context.Background(), "rec1", url, "第一期") {
		t.Fatal("ProcessEpisode should report true for an already completed episode")
	}
	if f.transcriber.submitCalls != 1 {
		t.Fatalf("completed episode re-transcribed: %d submits", f.transcriber.submitCalls)
	}
}
