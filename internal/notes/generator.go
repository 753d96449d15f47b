// Package notes turns a transcript into structured episode notes through a
// three-step LLM pipeline: topic segmentation, per-segment note writing, and
// a final synopsis with key insights.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"podscribe/internal/llm"
	"podscribe/internal/logging"
	"podscribe/internal/services"
	"podscribe/internal/transcript"
)

// ChatClient is the LLM surface the generator depends on.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Options tunes segmentation and sampling behavior.
type Options struct {
	SegmentSeconds  int // target segment length used to estimate segment count
	MinSegments     int
	MaxSampledLines int
	KeyInsights     int
}

func (o Options) withDefaults() Options {
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = 720
	}
	if o.MinSegments <= 0 {
		o.MinSegments = 5
	}
	if o.MaxSampledLines <= 0 {
		o.MaxSampledLines = 500
	}
	if o.KeyInsights <= 0 {
		o.KeyInsights = 6
	}
	return o
}

// Segment is one topically coherent span of the episode.
type Segment struct {
	Title       string  `json:"title"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Description string  `json:"description"`
}

// SectionNote pairs a segment with its generated note body.
type SectionNote struct {
	Segment Segment `json:"segment"`
	Note    string  `json:"note"`
}

// Notes is the full generated output for one episode.
type Notes struct {
	Synopsis     string        `json:"synopsis"`
	SectionNotes []SectionNote `json:"section_notes"`
	KeyInsights  []string      `json:"key_insights"`
}

// Generator runs the note pipeline against a chat client.
type Generator struct {
	client ChatClient
	opts   Options
	logger *slog.Logger
}

// NewGenerator constructs a note generator.
func NewGenerator(client ChatClient, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		client: client,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "notes"),
	}
}

// Generate produces notes for the transcript. Any step failing fails the
// whole generation; partial notes are never returned.
func (g *Generator) Generate(ctx context.Context, tr *transcript.Transcript) (*Notes, error) {
	if tr == nil || len(tr.Utterances) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "notes", "generate", "transcript has no utterances", nil)
	}

	summary, segments, err := g.segment(ctx, tr)
	if err != nil {
		return nil, err
	}
	g.logger.Info("transcript segmented",
		logging.Int("segment_count", len(segments)))

	sections := make([]SectionNote, 0, len(segments))
	for i, seg := range segments {
		g.logger.Debug("generating segment notes",
			logging.Int("segment", i+1),
			logging.String("title", seg.Title))
		note, err := g.segmentNote(ctx, tr, seg, summary)
		if err != nil {
			return nil, err
		}
		sections = append(sections, SectionNote{Segment: seg, Note: note})
	}

	synopsis, insights, err := g.finalSummary(ctx, sections)
	if err != nil {
		return nil, err
	}

	return &Notes{
		Synopsis:     synopsis,
		SectionNotes: sections,
		KeyInsights:  insights,
	}, nil
}

func (g *Generator) segment(ctx context.Context, tr *transcript.Transcript) (string, []Segment, error) {
	estimated := g.opts.MinSegments
	if n := int(tr.Duration()) / g.opts.SegmentSeconds; n > estimated {
		estimated = n
	}

	timestamped := transcript.FormatLines(tr.Utterances, g.opts.MaxSampledLines)
	prompt := fmt.Sprintf(segmentationUserPromptTemplate, estimated, timestamped)

	raw, err := g.client.CompleteJSON(ctx, segmentationSystemPrompt, prompt, 0.5)
	if err != nil {
		return "", nil, services.Wrap(services.ErrExternal, "notes", "segment", "segmentation request failed", err)
	}

	var parsed struct {
		OverallSummary string    `json:"overall_summary"`
		Segments       []Segment `json:"segments"`
	}
	if err := llm.DecodeLLMJSON(raw, &parsed); err != nil {
		return "", nil, services.Wrap(services.ErrExternal, "notes", "segment", "parse segmentation payload", err)
	}
	if len(parsed.Segments) == 0 {
		return "", nil, services.Wrap(services.ErrExternal, "notes", "segment", "segmentation returned no segments", nil)
	}
	return strings.TrimSpace(parsed.OverallSummary), parsed.Segments, nil
}

func (g *Generator) segmentNote(ctx context.Context, tr *transcript.Transcript, seg Segment, summary string) (string, error) {
	clipped := tr.ClipRange(seg.StartTime, seg.EndTime)
	var b strings.Builder
	for _, u := range clipped {
		fmt.Fprintf(&b, "[%.1fs] %s\n", u.StartTime, u.Text)
	}

	prompt := fmt.Sprintf(segmentNotesUserPromptTemplate,
		summary, seg.Title, seg.StartTime, seg.EndTime, seg.Description, b.String())

	note, err := g.client.Complete(ctx, segmentNotesSystemPrompt, prompt, 0.7)
	if err != nil {
		return "", services.Wrap(services.ErrExternal, "notes", "segment_note", fmt.Sprintf("notes for segment %q failed", seg.Title), err)
	}
	return strings.TrimSpace(note), nil
}

func (g *Generator) finalSummary(ctx context.Context, sections []SectionNote) (string, []string, error) {
	prompt := fmt.Sprintf(finalSummaryUserPromptTemplate, g.opts.KeyInsights, MergeSections(sections))

	raw, err := g.client.CompleteJSON(ctx, finalSummarySystemPrompt, prompt, 0.7)
	if err != nil {
		return "", nil, services.Wrap(services.ErrExternal, "notes", "final_summary", "final summary request failed", err)
	}

	var parsed struct {
		OverallSummary string   `json:"overall_summary"`
		KeyInsights    []string `json:"key_insights"`
	}
	if err := llm.DecodeLLMJSON(raw, &parsed); err != nil {
		return "", nil, services.Wrap(services.ErrExternal, "notes", "final_summary", "parse final summary payload", err)
	}
	return strings.TrimSpace(parsed.OverallSummary), parsed.KeyInsights, nil
}

// MergeSections renders section notes as the Markdown body used both for the
// final-summary prompt and the rendered document.
func MergeSections(sections []SectionNote) string {
	var b strings.Builder
	b.WriteString("## 分段详情\n")
	for i, section := range sections {
		seg := section.Segment
		durationMin := (seg.EndTime - seg.StartTime) / 60
		b.WriteString("\n---\n")
		fmt.Fprintf(&b, "**第 %d 段：%s**\n", i+1, seg.Title)
		fmt.Fprintf(&b, "**时间范围：** %.1f分钟 - %.1f分钟（时长 %.1f分钟）\n\n", seg.StartTime/60, seg.EndTime/60, durationMin)
		b.WriteString(section.Note)
		b.WriteString("\n")
	}
	return b.String()
}
