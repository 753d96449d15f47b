package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"podscribe/internal/episode"
	"podscribe/internal/store"
)

func newStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, path
}

func TestUpsertCreatesAndPersists(t *testing.T) {
	s, path := newStore(t)

	err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribing
		ep.TaskID = "task-1"
		ep.URL = "https://www.xiaoyuzhoufm.com/episode/ep-1"
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// A fresh store reading the same file must see the transition.
	reopened, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	ep, found := reopened.Get("ep-1")
	if !found {
		t.Fatal("episode not found after reopen")
	}
	if ep.State != episode.StateTranscribing || ep.TaskID != "task-1" {
		t.Fatalf("unexpected record %+v", ep)
	}
	if ep.UpdatedAt.IsZero() {
		t.Fatal("updated_at not stamped")
	}
}

func TestUpsertMutatesExisting(t *testing.T) {
	s, _ := newStore(t)

	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribing
		ep.TaskID = "task-1"
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribed
		ep.TranscriptionPath = "/transcripts/ep-1.json"
	}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	ep, _ := s.Get("ep-1")
	if ep.State != episode.StateTranscribed {
		t.Fatalf("unexpected state %q", ep.State)
	}
	if ep.TaskID != "task-1" {
		t.Fatal("unrelated fields must survive an upsert")
	}
	if s.Count() != 1 {
		t.Fatalf("expected one episode, got %d", s.Count())
	}
}

func TestHasTranscript(t *testing.T) {
	s, _ := newStore(t)

	if s.HasTranscript("ep-1") {
		t.Fatal("unknown episode should not report a transcript")
	}
	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribed
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !s.HasTranscript("ep-1") {
		t.Fatal("transcribed episode should report a transcript")
	}
	if s.IsCompleted("ep-1") {
		t.Fatal("transcribed episode is not completed")
	}
}

func TestLastCheckTimePersists(t *testing.T) {
	s, path := newStore(t)

	mark := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := s.SetLastCheckTime(mark); err != nil {
		t.Fatalf("SetLastCheckTime failed: %v", err)
	}

	reopened, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.LastCheckTime().Equal(mark) {
		t.Fatalf("unexpected last check time %v", reopened.LastCheckTime())
	}
}

func TestUpsertRollsBackOnSaveFailure(t *testing.T) {
	s, path := newStore(t)

	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribed
	}); err != nil {
		t.Fatalf("seed Upsert failed: %v", err)
	}

	// Replace the state file with a directory so the atomic rename fails.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove state file: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("block state path: %v", err)
	}

	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateCompleted
	}); err == nil {
		t.Fatal("expected persist error")
	}
	ep, _ := s.Get("ep-1")
	if ep.State != episode.StateTranscribed {
		t.Fatalf("unpersisted mutation visible in memory: %q", ep.State)
	}
	if s.IsCompleted("ep-1") {
		t.Fatal("episode must not read as completed after a failed save")
	}

	if err := s.Upsert("ep-2", func(ep *episode.Episode) {
		ep.State = episode.StateTranscribing
	}); err == nil {
		t.Fatal("expected persist error")
	}
	if _, found := s.Get("ep-2"); found {
		t.Fatal("failed creation must not leave a record behind")
	}

	mark := s.LastCheckTime()
	if err := s.SetLastCheckTime(time.Now()); err == nil {
		t.Fatal("expected persist error")
	}
	if !s.LastCheckTime().Equal(mark) {
		t.Fatal("last check time changed despite failed save")
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := store.Open(path, nil); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	s, path := newStore(t)
	if err := s.Upsert("ep-1", func(ep *episode.Episode) {
		ep.State = episode.StateCompleted
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	if _, ok := doc["episodes"]; !ok {
		t.Fatal("state file missing episodes map")
	}
	if _, ok := doc["last_check_time"]; !ok {
		t.Fatal("state file missing last_check_time")
	}
}
