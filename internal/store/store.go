// Package store persists the durable episode state document as JSON.
//
// Every mutation is written through to disk before the mutating call
// returns, so a crash at any point leaves a state file that reflects
// all acknowledged transitions.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"podscribe/internal/episode"
	"podscribe/internal/logging"
)

// document is the on-disk shape of the state file.
type document struct {
	Episodes      map[string]*episode.Episode `json:"episodes"`
	LastCheckTime time.Time                   `json:"last_check_time"`
}

// Store provides thread-safe, write-through access to the episode state file.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
	doc    document
}

// Open loads the state file at path, creating an empty state when the file
// does not exist yet. A state file that exists but cannot be parsed is an
// error: silently starting empty would re-spend transcription work.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state file path cannot be empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "store")

	s := &Store{
		path:   path,
		logger: logger,
		doc:    document{Episodes: make(map[string]*episode.Episode)},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the episode record for the given episode id.
func (s *Store) Get(episodeID string) (episode.Episode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, found := s.doc.Episodes[episodeID]
	if !found {
		return episode.Episode{}, false
	}
	return *ep, true
}

// IsCompleted reports whether the episode already reached its terminal state.
func (s *Store) IsCompleted(episodeID string) bool {
	ep, found := s.Get(episodeID)
	return found && ep.IsCompleted()
}

// HasTranscript reports whether the episode is at least transcribed, meaning
// resubmission to the transcription provider is unnecessary.
func (s *Store) HasTranscript(episodeID string) bool {
	ep, found := s.Get(episodeID)
	return found && ep.HasTranscript()
}

// Upsert applies a mutation to the episode record for episodeID, creating the
// record if it does not exist, and persists the updated state synchronously.
// The persistence error is returned to the caller; an unpersisted transition
// must not be treated as durable.
func (s *Store) Upsert(episodeID string, apply func(*episode.Episode)) error {
	episodeID = strings.TrimSpace(episodeID)
	if episodeID == "" {
		return errors.New("episode id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Mutate a copy so a failed save leaves in-memory state matching disk.
	var ep episode.Episode
	previous, found := s.doc.Episodes[episodeID]
	if found {
		ep = *previous
	}
	apply(&ep)
	ep.UpdatedAt = time.Now().UTC()

	s.doc.Episodes[episodeID] = &ep
	if err := s.save(); err != nil {
		if found {
			s.doc.Episodes[episodeID] = previous
		} else {
			delete(s.doc.Episodes, episodeID)
		}
		return fmt.Errorf("persist state: %w", err)
	}

	s.logger.Debug("episode state persisted",
		logging.String(logging.FieldEpisodeID, episodeID),
		logging.String("state", string(ep.State)))
	return nil
}

// SetLastCheckTime records the time of the most recent successful discovery
// pass and persists it.
func (s *Store) SetLastCheckTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.doc.LastCheckTime
	s.doc.LastCheckTime = t.UTC()
	if err := s.save(); err != nil {
		s.doc.LastCheckTime = previous
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// LastCheckTime returns the time of the most recent successful discovery pass.
func (s *Store) LastCheckTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.LastCheckTime
}

// ListEntry pairs an episode id with a copy of its record.
type ListEntry struct {
	EpisodeID string
	Episode   episode.Episode
}

// List returns all episode records sorted by most recent update first.
func (s *Store) List() []ListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ListEntry, 0, len(s.doc.Episodes))
	for id, ep := range s.doc.Episodes {
		entries = append(entries, ListEntry{EpisodeID: id, Episode: *ep})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Episode.UpdatedAt.After(entries[j].Episode.UpdatedAt)
	})
	return entries
}

// Count returns the number of tracked episodes.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Episodes)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // fresh start
		}
		return fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	if doc.Episodes == nil {
		doc.Episodes = make(map[string]*episode.Episode)
	}
	s.doc = doc

	s.logger.Debug("loaded episode state",
		logging.Int("episode_count", len(doc.Episodes)),
		logging.String("path", s.path))
	return nil
}

// save writes the state document to disk atomically.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
