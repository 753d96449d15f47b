// Package episode defines the durable lifecycle model for processed episodes.
package episode

import (
	"strings"
	"time"
)

// State represents the lifecycle of a tracked episode. An episode with no
// stored record is considered pending.
type State string

const (
	StateTranscribing        State = "transcribing"
	StateTranscribed         State = "transcribed"
	StateCompleted           State = "completed"
	StateTranscriptionFailed State = "transcription_failed"
)

var allStates = []State{
	StateTranscribing,
	StateTranscribed,
	StateCompleted,
	StateTranscriptionFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Episode is the durable record for a single episode keyed by its
// provider-assigned episode id.
type Episode struct {
	RecordID          string     `json:"record_id,omitempty"`
	URL               string     `json:"url,omitempty"`
	Title             string     `json:"title,omitempty"`
	AudioURL          string     `json:"audio_url,omitempty"`
	TaskID            string     `json:"task_id,omitempty"`
	TranscriptionPath string     `json:"transcription_path,omitempty"`
	NotePath          string     `json:"note_path,omitempty"`
	State             State      `json:"state"`
	Error             string     `json:"error,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsCompleted reports whether the episode reached its terminal state.
func (e *Episode) IsCompleted() bool {
	return e != nil && e.State == StateCompleted
}

// HasTranscript reports whether transcription output exists for the episode,
// which makes resubmission to the transcription provider unnecessary.
func (e *Episode) HasTranscript() bool {
	if e == nil {
		return false
	}
	return e.State == StateTranscribed || e.State == StateCompleted
}

// SetFailed marks the episode as transcription_failed while retaining the
// provider task id so a later pass can attempt recovery before resubmitting.
func (e *Episode) SetFailed(message string, now time.Time) {
	e.State = StateTranscriptionFailed
	e.Error = message
	failedAt := now
	e.FailedAt = &failedAt
}

// SetCompleted marks the episode terminal and clears any stale error.
func (e *Episode) SetCompleted(notePath string, now time.Time) {
	e.State = StateCompleted
	e.NotePath = notePath
	e.Error = ""
	completedAt := now
	e.CompletedAt = &completedAt
	e.FailedAt = nil
}
