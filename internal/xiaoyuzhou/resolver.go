// Package xiaoyuzhou resolves xiaoyuzhoufm.com episode pages to canonical
// episode ids and playable media URLs.
package xiaoyuzhou

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"podscribe/internal/services"
)

const (
	episodeBaseURL = "https://www.xiaoyuzhoufm.com/episode"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Episode links come in two forms: /episode/<id> and
// /podcast/<id>/episode/<id>; both carry the episode id after /episode/.
var episodeIDPattern = regexp.MustCompile(`/episode/([a-zA-Z0-9]+)`)

var (
	nuxtPattern         = regexp.MustCompile(`window\.__NUXT__\s*=\s*(.+?);?\s*</script>`)
	initialStatePattern = regexp.MustCompile(`window\.__INITIAL_STATE__\s*=\s*(.+?);?\s*</script>`)
)

// Raw audio URL fallbacks, tried in order when no page data blob parses.
var audioURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"url"\s*:\s*"([^"]+\.mp3[^"]*)"`),
	regexp.MustCompile(`"audio"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`https://[^"\s]+\.mp3[^"\s]*`),
	regexp.MustCompile(`https://audio\.qssapp\.com/[^"\s]+`),
	regexp.MustCompile(`https://st\.xiaoyuzhoufm\.com/[^"\s]+`),
}

// EpisodeInfo is the resolved identity of an episode.
type EpisodeInfo struct {
	EpisodeID string
	AudioURL  string
	Title     string
}

// Resolver fetches and parses episode pages.
type Resolver struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithBaseURL overrides the episode page base URL (useful for tests).
func WithBaseURL(baseURL string) Option {
	return func(r *Resolver) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			r.baseURL = baseURL
		}
	}
}

// NewResolver constructs a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    episodeBaseURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExtractEpisodeID pulls the canonical episode id out of a raw episode URL.
func ExtractEpisodeID(rawURL string) (string, bool) {
	match := episodeIDPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Resolve fetches the episode page for rawURL and extracts the episode id,
// media URL, and title. It returns services.ErrNotFound when the page yields
// no media URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*EpisodeInfo, error) {
	episodeID, ok := ExtractEpisodeID(rawURL)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "xiaoyuzhou", "resolve", fmt.Sprintf("no episode id in %q", rawURL), nil)
	}

	html, err := r.fetchPage(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	if info := parsePageData(html, episodeID); info != nil {
		return info, nil
	}

	// Last resort: scan the raw HTML for an audio URL.
	for _, pattern := range audioURLPatterns {
		match := pattern.FindStringSubmatch(html)
		if match == nil {
			continue
		}
		audioURL := match[0]
		if len(match) > 1 {
			audioURL = match[1]
		}
		return &EpisodeInfo{
			EpisodeID: episodeID,
			AudioURL:  audioURL,
			Title:     "Episode_" + episodeID,
		}, nil
	}

	return nil, services.Wrap(services.ErrNotFound, "xiaoyuzhou", "resolve", fmt.Sprintf("no media url for episode %s", episodeID), nil)
}

func (r *Resolver) fetchPage(ctx context.Context, episodeID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+episodeID, nil)
	if err != nil {
		return "", fmt.Errorf("xiaoyuzhou request: new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "xiaoyuzhou", "fetch", "episode page request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "xiaoyuzhou", "fetch", "read episode page", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrExternal, "xiaoyuzhou", "fetch", fmt.Sprintf("http %d for episode %s", resp.StatusCode, episodeID), nil)
	}
	return string(body), nil
}

// parsePageData tries the JSON data blobs embedded in the page, newest
// framework first: __NEXT_DATA__, then __NUXT__, then __INITIAL_STATE__.
func parsePageData(html, episodeID string) *EpisodeInfo {
	if blob := nextDataBlob(html); blob != "" {
		if info := parseDataBlob(blob, episodeID); info != nil {
			return info
		}
	}
	for _, pattern := range []*regexp.Regexp{nuxtPattern, initialStatePattern} {
		match := pattern.FindStringSubmatch(html)
		if match == nil {
			continue
		}
		if info := parseDataBlob(match[1], episodeID); info != nil {
			return info
		}
	}
	return nil
}

func nextDataBlob(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(`script#__NEXT_DATA__`).Text())
}

func parseDataBlob(blob, episodeID string) *EpisodeInfo {
	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil
	}

	for _, candidate := range episodeDataCandidates(data) {
		audioURL := audioURLFrom(candidate)
		if audioURL == "" {
			continue
		}
		title := stringValue(candidate["title"])
		if title == "" {
			title = stringValue(candidate["name"])
		}
		if title == "" {
			title = "Episode_" + episodeID
		}
		return &EpisodeInfo{EpisodeID: episodeID, AudioURL: audioURL, Title: title}
	}
	return nil
}

// episodeDataCandidates probes the known locations of episode data across
// the page framework variants.
func episodeDataCandidates(data map[string]any) []map[string]any {
	var candidates []map[string]any
	add := func(value any) {
		if m, ok := value.(map[string]any); ok && len(m) > 0 {
			candidates = append(candidates, m)
		}
	}

	switch inner := data["data"].(type) {
	case []any:
		if len(inner) > 0 {
			if first, ok := inner[0].(map[string]any); ok {
				add(first["data"])
			}
		}
	case map[string]any:
		add(inner)
	}
	if state, ok := data["state"].(map[string]any); ok {
		add(state["episode"])
	}
	if props, ok := data["props"].(map[string]any); ok {
		if pageProps, ok := props["pageProps"].(map[string]any); ok {
			add(pageProps["episode"])
		}
	}
	if _, ok := data["audio"]; ok {
		add(data)
	}
	return candidates
}

func audioURLFrom(data map[string]any) string {
	for _, key := range []string{"audio", "audio_url", "url", "enclosure", "media_url"} {
		value, ok := data[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if url := stringValue(v["url"]); url != "" {
				return url
			}
			if src := stringValue(v["src"]); src != "" {
				return src
			}
		}
	}
	if inner, ok := data["data"].(map[string]any); ok {
		return stringValue(inner["audio"])
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// IsNotFound reports whether err represents an unresolvable episode page.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
