package llm

import (
	"fmt"
	"strings"

	"github.com/umputun/podscope/pkg/domain"
)

// default system prompt for episode summarization
const defaultSystemPrompt = `You are a podcast and article summarizer. Given a transcript or article text, produce a structured summary.

Respond with a single JSON object with these fields:
- overview: a concise narrative summary, 2-3 paragraphs. Write directly about the content itself. NEVER use phrases like "The episode discusses" or "The speakers talk about". Start with the actual subject matter.
- topics: array of the main topics discussed, 3-8 short keywords or phrases.
- takeaways: array of the most important insights and conclusions, one sentence each.
- quotes: array of notable direct quotes, verbatim, with approximate timestamps if available. Empty array if there are none.

Be concise but comprehensive. Focus on actionable insights and key information.
IMPORTANT: Write the summary in the same language as the source text.`

// userPrompt builds the user message for the request mode
func userPrompt(req domain.SummaryRequest) string {
	var sb strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n\n", req.Title)
	}

	switch req.Mode {
	case domain.ModePartial:
		fmt.Fprintf(&sb, "This is part %d of %d of a longer text. Summarize only this part, "+
			"its summary will be merged with the others later. Do not speculate about the other parts.\n\n", req.Part, req.Parts)
		sb.WriteString("Text:\n\n")
	case domain.ModeMerge:
		fmt.Fprintf(&sb, "Below are summaries of %d consecutive parts of one text, in order. Merge them into a single "+
			"summary of the whole text. Deduplicate topics and takeaways, keep the strongest quotes. "+
			"Parts marked as gaps were not summarized, do not invent their content.\n\n", req.Parts)
		sb.WriteString("Part summaries:\n\n")
	default:
		sb.WriteString("Here is the text to summarize:\n\n")
	}

	sb.WriteString(req.Text)
	sb.WriteString("\n\nRespond with the JSON object only.")
	return sb.String()
}
