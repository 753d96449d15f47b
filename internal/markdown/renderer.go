// Package markdown renders episode notes and transcripts into Markdown
// documents on disk.
package markdown

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podscribe/internal/notes"
	"podscribe/internal/textutil"
	"podscribe/internal/transcript"
)

// Renderer writes note documents beneath an output directory, grouped into
// month subfolders.
type Renderer struct {
	outputDir string
	now       func() time.Time
}

// Option customizes the renderer.
type Option func(*Renderer)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer constructs a renderer targeting outputDir.
func NewRenderer(outputDir string, opts ...Option) *Renderer {
	r := &Renderer{outputDir: outputDir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the full Markdown document for an episode and returns its
// path. The file is replaced if it already exists.
func (r *Renderer) Render(title string, tr *transcript.Transcript, n *notes.Notes) (string, error) {
	if tr == nil || n == nil {
		return "", errors.New("render requires a transcript and notes")
	}

	now := r.now()
	dir := filepath.Join(r.outputDir, now.Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create notes directory: %w", err)
	}

	// Name on the title alone so a later re-render replaces the same file
	// instead of orphaning it under a new date prefix.
	path := filepath.Join(dir, textutil.Slug(title)+".md")

	if err := os.WriteFile(path, []byte(r.document(title, now, tr, n)), 0o644); err != nil {
		return "", fmt.Errorf("write note document: %w", err)
	}
	return path, nil
}

func (r *Renderer) document(title string, now time.Time, tr *transcript.Transcript, n *notes.Notes) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# 播客笔记：%s\n\n", title)
	fmt.Fprintf(&b, "> 生成时间：%s\n\n---\n\n", now.Format("2006-01-02 15:04:05"))

	b.WriteString("## 整体概括\n\n")
	b.WriteString(n.Synopsis)
	b.WriteString("\n\n")

	if len(n.KeyInsights) > 0 {
		b.WriteString("## 关键洞察\n\n")
		for _, insight := range n.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
		b.WriteString("\n")
	}

	if len(tr.Keywords) > 0 {
		fmt.Fprintf(&b, "**关键词**：%s\n\n", strings.Join(tr.Keywords, ", "))
	}
	if tr.Summary != "" {
		fmt.Fprintf(&b, "**内容摘要**：%s\n\n", tr.Summary)
	}

	if len(tr.Chapters) > 0 {
		b.WriteString("---\n\n## 章节速览\n\n")
		b.WriteString("| 章节 | 标题 | 时间范围 |\n|------|------|----------|\n")
		for i, ch := range tr.Chapters {
			fmt.Fprintf(&b, "| %d | %s | %s - %s |\n", i+1, ch.Title,
				transcript.FormatTimestamp(ch.StartTime), transcript.FormatTimestamp(ch.EndTime))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	b.WriteString(notes.MergeSections(n.SectionNotes))

	b.WriteString("\n---\n\n## 完整逐字稿\n\n")
	if len(tr.Speakers) > 0 {
		b.WriteString("### 说话人列表\n\n")
		for _, speaker := range tr.Speakers {
			fmt.Fprintf(&b, "- **%s**\n", speaker)
		}
		b.WriteString("\n")
	}
	b.WriteString("### 对话内容\n\n")
	for _, u := range tr.Utterances {
		speaker := u.Speaker
		if speaker == "" {
			speaker = "未知"
		}
		fmt.Fprintf(&b, "**[%s]** (%s - %s)\n%s\n\n", speaker,
			transcript.FormatTimestamp(u.StartTime), transcript.FormatTimestamp(u.EndTime), u.Text)
	}

	b.WriteString("---\n\n> 💡 **提示**：本笔记由AI自动生成，如有错误请人工校对。\n")
	return b.String()
}
