package mistral

import (
	"context"
	"fmt"
	"strings"

	"catchup/internal/clients"
)

const chunkSummaryPrompt = `You summarize one fragment of a lecture transcript.
Base the summary strictly on the fragment you are given; never add material
from outside it. If the fragment is unclear or ambiguous, say so explicitly
instead of guessing. Answer with a concise bullet list.`

const mergeSummaryPrompt = `You merge ordered partial summaries of one lecture
into a single Markdown document. Use exactly these sections:

# {title}
## Main Topics
## Detailed Content
## Conclusion

Only include topics that appear in the partial summaries; never introduce new
ones. Preserve any uncertainty markers ("unclear", "possibly") rather than
resolving them.`

// SummarizeChunk produces a pass-1 summary grounded strictly in one chunk's
// transcript text.
func (c *Client) SummarizeChunk(ctx context.Context, chunkText, language string) (string, error) {
	prompt := chunkSummaryPrompt
	if language != "" && language != "auto" {
		prompt += "\nWrite the summary in language: " + language
	}
	return c.complete(ctx, prompt, chunkText)
}

// MergeSummaries produces the pass-2 merged document from the ordered chunk
// summaries.
func (c *Client) MergeSummaries(ctx context.Context, title string, chunkSummaries []string, language string) (string, error) {
	prompt := strings.ReplaceAll(mergeSummaryPrompt, "{title}", strings.TrimSpace(title))
	if language != "" && language != "auto" {
		prompt += "\nWrite the document in language: " + language
	}
	var input strings.Builder
	for i, summary := range chunkSummaries {
		fmt.Fprintf(&input, "Part %d:\n%s\n\n", i+1, summary)
	}
	return c.complete(ctx, prompt, input.String())
}

var _ clients.SummarizerClient = (*Client)(nil)
