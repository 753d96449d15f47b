// Package tingwu submits audio to the Aliyun Tingwu transcription service
// and retrieves task results.
package tingwu

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"podscribe/internal/services"
	"podscribe/internal/transcript"
)

// TaskStatus is the normalized state of a transcription task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// TaskResult is the outcome of a result fetch.
type TaskResult struct {
	TaskID     string
	Status     TaskStatus
	FailReason string
	Transcript *transcript.Transcript // set when Status is StatusSucceeded
}

// Config carries Tingwu credentials and endpoint settings.
type Config struct {
	AccessKeyID     string
	AccessKeySecret string
	AppKey          string
	Endpoint        string
}

// Client talks to the Tingwu file transcription API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	newTaskID  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the signing timestamp source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTaskIDSource overrides client-side task id generation (useful for tests).
func WithTaskIDSource(source func() string) Option {
	return func(c *Client) {
		if source != nil {
			c.newTaskID = source
		}
	}
}

// New creates a Tingwu client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.AccessKeyID = strings.TrimSpace(cfg.AccessKeyID)
	cfg.AccessKeySecret = strings.TrimSpace(cfg.AccessKeySecret)
	cfg.AppKey = strings.TrimSpace(cfg.AppKey)
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.AppKey == "" {
		return nil, errors.New("tingwu credentials required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("tingwu endpoint required")
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
		newTaskID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// signature computes the request signature over "{method}\n&%2F&{timestamp}".
func (c *Client) signature(method, timestamp string) string {
	stringToSign := method + "\n&%2F&" + timestamp
	mac := hmac.New(sha1.New, []byte(c.cfg.AccessKeySecret))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) headers(method string) http.Header {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Dataplus %s:%s", c.cfg.AccessKeyID, c.signature(method, timestamp)))
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Timestamp", timestamp)
	return headers
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Submit creates a transcription task for the media at mediaURL and returns
// the provider task id.
func (c *Client) Submit(ctx context.Context, mediaURL string) (string, error) {
	mediaURL = strings.TrimSpace(mediaURL)
	if mediaURL == "" {
		return "", errors.New("tingwu submit: media url required")
	}

	taskID := c.newTaskID()
	body := map[string]any{
		"appkey":          c.cfg.AppKey,
		"file_link":       mediaURL,
		"enable_words":    true,
		"enable_sentence": true,
		"enablepeaker_id": true,
		"enable_keyword":  true,
		"enable_summary":  true,
		"enable_chapter":  true,
		"biz_type":        "fileTrans",
		"task_id":         taskID,
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "tingwu", "submit", "submit task", err)
	}

	var data struct {
		TaskID string `json:"task_id"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return "", services.Wrap(services.ErrExternal, "tingwu", "submit", "decode submit payload", err)
		}
	}
	if data.TaskID != "" {
		return data.TaskID, nil
	}
	return taskID, nil
}

// Fetch retrieves the current result of a transcription task. A FAIL status
// is returned as a TaskResult, not an error: the caller decides whether it
// is terminal.
func (c *Client) Fetch(ctx context.Context, taskID string) (*TaskResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New("tingwu fetch: task id required")
	}

	resp, err := c.post(ctx, map[string]any{"task_id": taskID})
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "tingwu", "fetch", "fetch task result", err)
	}

	var data rawTaskData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, services.Wrap(services.ErrExternal, "tingwu", "fetch", "decode task payload", err)
	}

	result := &TaskResult{TaskID: taskID}
	switch strings.ToUpper(data.Status) {
	case "SUCCESS":
		result.Status = StatusSucceeded
		result.Transcript = data.toTranscript(taskID)
	case "FAIL":
		result.Status = StatusFailed
		result.FailReason = data.FailReason
	default:
		result.Status = StatusPending
	}
	return result, nil
}

// Poll fetches the task result at interval until it settles or the timeout
// elapses. A pending task at timeout is reported as a timeout error.
func (c *Client) Poll(ctx context.Context, taskID string, interval, timeout time.Duration) (*TaskResult, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	deadline := c.now().Add(timeout)

	for {
		result, err := c.Fetch(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if result.Status != StatusPending {
			return result, nil
		}
		if timeout > 0 && !c.now().Before(deadline) {
			return nil, services.Wrap(services.ErrTimeout, "tingwu", "poll", fmt.Sprintf("task %s still pending after %s", taskID, timeout), nil)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) post(ctx context.Context, body map[string]any) (*apiResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header = c.headers(http.MethodPost)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("api error %d: %s", parsed.Code, parsed.Msg)
	}
	return &parsed, nil
}

// rawTaskData models the provider result payload. Times arrive in
// milliseconds and are converted to seconds.
type rawTaskData struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason"`
	Sentences  []struct {
		Text         string  `json:"text"`
		SpeakerLabel string  `json:"speaker_label"`
		BeginTime    float64 `json:"begin_time"`
		EndTime      float64 `json:"end_time"`
	} `json:"sentences_result"`
	Chapters []struct {
		Title     string  `json:"title"`
		BeginTime float64 `json:"begin_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"chapters_result"`
	Summaries []struct {
		Summary string `json:"summary"`
	} `json:"summary_result"`
	Keywords []struct {
		Keyword string `json:"keyword"`
	} `json:"keywords_result"`
}

func (d *rawTaskData) toTranscript(taskID string) *transcript.Transcript {
	tr := &transcript.Transcript{TaskID: taskID}

	seen := make(map[string]struct{})
	for _, sentence := range d.Sentences {
		speaker := sentence.SpeakerLabel
		if speaker == "" {
			speaker = "未知"
		}
		tr.Utterances = append(tr.Utterances, transcript.Utterance{
			Text:      sentence.Text,
			Speaker:   speaker,
			StartTime: sentence.BeginTime / 1000,
			EndTime:   sentence.EndTime / 1000,
		})
		if _, ok := seen[speaker]; !ok {
			seen[speaker] = struct{}{}
			tr.Speakers = append(tr.Speakers, speaker)
		}
	}
	for _, chapter := range d.Chapters {
		tr.Chapters = append(tr.Chapters, transcript.Chapter{
			Title:     chapter.Title,
			StartTime: chapter.BeginTime / 1000,
			EndTime:   chapter.EndTime / 1000,
		})
	}
	if len(d.Summaries) > 0 {
		tr.Summary = d.Summaries[0].Summary
	}
	for _, kw := range d.Keywords {
		if kw.Keyword != "" {
			tr.Keywords = append(tr.Keywords, kw.Keyword)
		}
	}
	return tr
}
