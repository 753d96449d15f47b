// Package feishu reads podcast link candidates from a Feishu bitable.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"podscribe/internal/services"
)

// linkFieldAliases are the bitable column names probed for an episode link,
// in priority order.
var linkFieldAliases = []string{"链接", "link", "url", "网址", "小宇宙链接"}

// titleFieldAliases are the column names probed for an episode title.
var titleFieldAliases = []string{"播客名称", "名称", "title"}

const candidateHost = "xiaoyuzhoufm.com"

// Candidate is one bitable row carrying a podcast link.
type Candidate struct {
	RecordID string
	URL      string
	Title    string
}

// Client talks to the Feishu open API with a cached tenant access token.
type Client struct {
	appID      string
	appSecret  string
	appToken   string
	tableID    string
	baseURL    string
	pageSize   int
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
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

// New creates a Feishu bitable client.
func New(appID, appSecret, appToken, tableID, baseURL string, pageSize int, opts ...Option) (*Client, error) {
	appID = strings.TrimSpace(appID)
	appSecret = strings.TrimSpace(appSecret)
	appToken = strings.TrimSpace(appToken)
	tableID = strings.TrimSpace(tableID)
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu app credentials required")
	}
	if appToken == "" || tableID == "" {
		return nil, errors.New("feishu app token and table id required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://open.feishu.cn/open-apis"
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}
	client := &Client{
		appID:      appID,
		appSecret:  appSecret,
		appToken:   appToken,
		tableID:    tableID,
		baseURL:    baseURL,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

type searchPage struct {
	Items []struct {
		RecordID string                     `json:"record_id"`
		Fields   map[string]json.RawMessage `json:"fields"`
	} `json:"items"`
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
}

// ListCandidates fetches every bitable row and returns those carrying a
// podcast link, deduplicated by record id.
func (c *Client) ListCandidates(ctx context.Context) ([]Candidate, error) {
	token, err := c.tenantToken(ctx)
	if err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/search", c.baseURL, c.appToken, c.tableID)

	var candidates []Candidate
	seen := make(map[string]struct{})
	pageToken := ""

	for {
		payload := map[string]any{
			"page_size":        c.pageSize,
			"automatic_fields": false,
		}
		if pageToken != "" {
			payload["page_token"] = pageToken
		}

		var page searchPage
		if err := c.postJSON(ctx, searchURL, token, payload, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if _, dup := seen[item.RecordID]; dup {
				continue
			}
			seen[item.RecordID] = struct{}{}
			if candidate, ok := parseCandidate(item.RecordID, item.Fields); ok {
				candidates = append(candidates, candidate)
			}
		}

		if !page.HasMore || page.PageToken == "" {
			break
		}
		pageToken = page.PageToken
	}
	return candidates, nil
}

func (c *Client) tenantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("feishu token: encode body: %w", err)
	}
	endpoint := c.baseURL + "/auth/v3/tenant_access_token/internal"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("feishu token: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "feishu", "token", "token request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "feishu", "token", "read token response", err)
	}
	var parsed tokenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternal, "feishu", "token", "decode token response", err)
	}
	if parsed.Code != 0 {
		return "", services.Wrap(services.ErrExternal, "feishu", "token", fmt.Sprintf("api error %d: %s", parsed.Code, parsed.Msg), nil)
	}

	c.accessToken = parsed.TenantAccessToken
	// Refresh a minute early to avoid using a token at the edge of expiry.
	expire := time.Duration(parsed.Expire) * time.Second
	if expire > time.Minute {
		expire -= time.Minute
	}
	c.tokenExpiry = time.Now().Add(expire)
	return c.accessToken, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("feishu request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("feishu request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternal, "feishu", "search", "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrExternal, "feishu", "search", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternal, "feishu", "search", fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return services.Wrap(services.ErrExternal, "feishu", "search", "decode response", err)
	}
	if envelope.Code != 0 {
		return services.Wrap(services.ErrExternal, "feishu", "search", fmt.Sprintf("api error %d: %s", envelope.Code, envelope.Msg), nil)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return services.Wrap(services.ErrExternal, "feishu", "search", "decode data payload", err)
	}
	return nil
}

// parseCandidate extracts a podcast link and title from a row's fields.
// Rows without a recognizable link to the podcast platform are skipped.
func parseCandidate(recordID string, fields map[string]json.RawMessage) (Candidate, bool) {
	for _, alias := range linkFieldAliases {
		raw, ok := fields[alias]
		if !ok {
			continue
		}
		url := normalizeFieldValue(raw)
		if url == "" || !strings.Contains(url, candidateHost) {
			continue
		}
		return Candidate{
			RecordID: recordID,
			URL:      url,
			Title:    firstFieldValue(fields, titleFieldAliases),
		}, true
	}
	return Candidate{}, false
}

func firstFieldValue(fields map[string]json.RawMessage, aliases []string) string {
	for _, alias := range aliases {
		if raw, ok := fields[alias]; ok {
			if value := normalizeFieldValue(raw); value != "" {
				return value
			}
		}
	}
	return ""
}

// normalizeFieldValue flattens the value shapes bitable fields come in:
// plain strings, arrays of values, and rich objects with text/link keys.
func normalizeFieldValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if value := normalizeFieldValue(item); value != "" {
				return value
			}
		}
		return ""
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"link", "url", "text"} {
			if inner, ok := obj[key]; ok {
				if value := normalizeFieldValue(inner); value != "" {
					return value
				}
			}
		}
	}
	return ""
}
