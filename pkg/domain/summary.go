package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SummaryMode tells the summarization engine what kind of input it gets
type SummaryMode string

// summarization modes
const (
	ModeFull    SummaryMode = "full"    // the whole text in one call
	ModePartial SummaryMode = "partial" // one window of a longer text
	ModeMerge   SummaryMode = "merge"   // concatenated partial summaries
)

// SummaryRequest is a single call to the summarization engine
type SummaryRequest struct {
	Mode  SummaryMode
	Title string
	Text  string
	Part  int // 1-based window index for ModePartial
	Parts int // total windows for ModePartial and ModeMerge
}

// Usage holds token accounting reported by the engine
type Usage struct {
	PromptTokens int64
	OutputTokens int64
}

// SummaryDraft is the structured output of a summarization, before it is stored
type SummaryDraft struct {
	Overview  string   `json:"overview"`
	Topics    []string `json:"topics"`
	Takeaways []string `json:"takeaways"`
	Quotes    []string `json:"quotes"`
	Gaps      []string `json:"-"`
	Windows   int      `json:"-"`
	Model     string   `json:"-"`
	Usage     *Usage   `json:"-"`
}

// ErrIncompleteSummary is returned when a draft misses required sections
var ErrIncompleteSummary = errors.New("incomplete summary")

// Validate checks that all required sections are populated
func (d SummaryDraft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Overview) == "" {
		missing = append(missing, "overview")
	}
	if len(d.Topics) == 0 {
		missing = append(missing, "topics")
	}
	if len(d.Takeaways) == 0 {
		missing = append(missing, "takeaways")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteSummary, strings.Join(missing, ", "))
	}
	return nil
}

// Markdown renders the draft as a markdown document
func (d SummaryDraft) Markdown() string {
	var sb strings.Builder
	section := func(title string, lines []string, prefix string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&sb, "## %s\n\n", title)
		for _, l := range lines {
			fmt.Fprintf(&sb, "%s%s\n", prefix, l)
		}
		sb.WriteString("\n")
	}
	section("Topics", d.Topics, "- ")
	if d.Overview != "" {
		fmt.Fprintf(&sb, "## Summary\n\n%s\n\n", strings.TrimSpace(d.Overview))
	}
	section("Key Takeaways", d.Takeaways, "- ")
	section("Notable Quotes", d.Quotes, "> ")
	section("Gaps", d.Gaps, "- ")
	return strings.TrimSpace(sb.String()) + "\n"
}

// Summary is a stored, immutable summary record
type Summary struct {
	ID           int64
	ItemID       int64
	Overview     string
	Topics       []string
	Takeaways    []string
	Quotes       []string
	Gaps         []string
	Windows      int
	Content      string
	Model        string
	PromptTokens *int64
	OutputTokens *int64
	CreatedAt    time.Time
}

// NewSummary makes a storable summary for item from a draft
func NewSummary(itemID int64, d SummaryDraft) *Summary {
	s := &Summary{
		ItemID:    itemID,
		Overview:  d.Overview,
		Topics:    d.Topics,
		Takeaways: d.Takeaways,
		Quotes:    d.Quotes,
		Gaps:      d.Gaps,
		Windows:   d.Windows,
		Content:   d.Markdown(),
		Model:     d.Model,
	}
	if s.Windows == 0 {
		s.Windows = 1
	}
	if d.Usage != nil {
		prompt, output := d.Usage.PromptTokens, d.Usage.OutputTokens
		s.PromptTokens, s.OutputTokens = &prompt, &output
	}
	return s
}
