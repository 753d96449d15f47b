// Package transcript models transcription output and its per-episode
// side files.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Utterance is a single transcribed sentence with timing in seconds.
type Utterance struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Chapter is a provider-generated chapter marker.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Transcript holds the full transcription result for one episode.
type Transcript struct {
	TaskID     string      `json:"task_id,omitempty"`
	Utterances []Utterance `json:"utterances"`
	Chapters   []Chapter   `json:"chapters,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	Keywords   []string    `json:"keywords,omitempty"`
	Speakers   []string    `json:"speakers,omitempty"`
}

// Duration returns the end time of the last utterance in seconds.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Utterances) == 0 {
		return 0
	}
	return t.Utterances[len(t.Utterances)-1].EndTime
}

// ClipRange returns the utterances overlapping [start, end]. An utterance is
// included when any part of it falls inside the range.
func (t *Transcript) ClipRange(start, end float64) []Utterance {
	if t == nil {
		return nil
	}
	var clipped []Utterance
	for _, u := range t.Utterances {
		if u.EndTime >= start && u.StartTime <= end {
			clipped = append(clipped, u)
		}
	}
	return clipped
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatLines renders utterances as "[HH:MM:SS] text" lines. When the line
// count exceeds maxLines the lines are sampled at a fixed stride so the
// beginning, middle, and end of the episode all remain represented.
func FormatLines(utterances []Utterance, maxLines int) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		lines = append(lines, fmt.Sprintf("[%s] %s", FormatTimestamp(u.StartTime), u.Text))
	}
	if maxLines > 0 && len(lines) > maxLines {
		step := len(lines) / maxLines
		if step > 1 {
			sampled := make([]string, 0, maxLines+1)
			for i := 0; i < len(lines); i += step {
				sampled = append(sampled, lines[i])
			}
			lines = sampled
		}
	}
	return strings.Join(lines, "\n")
}

// SidePath returns the transcript side file location for an episode.
func SidePath(dir, episodeID string) string {
	return filepath.Join(dir, episodeID+".json")
}

// Save writes the transcript side file for an episode atomically and returns
// its path.
func Save(dir, episodeID string, t *Transcript) (string, error) {
	if strings.TrimSpace(episodeID) == "" {
		return "", errors.New("episode id cannot be empty")
	}
	if t == nil {
		return "", errors.New("transcript cannot be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	path := SidePath(dir, episodeID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return path, nil
}

// Load reads a transcript side file.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return &t, nil
}
