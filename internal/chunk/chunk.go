// Package chunk plans how long inputs are partitioned into bounded units:
// audio spans for chunked transcription and text blocks for the first
// summarization pass. Both planners are pure functions of their inputs, so
// identical inputs always produce identical plans.
package chunk

import (
	"fmt"
	"strings"
)

// Span is one planned audio chunk.
type Span struct {
	Index int     `json:"i"`
	Start float64 `json:"start_sec"`
	End   float64 `json:"end_sec"`
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.End - s.Start
}

// PlanAudio partitions [0, duration] into ordered spans of chunkSec seconds
// where consecutive spans overlap by exactly overlapSec. The plan is gap
// free and total: the first span starts at 0 and the last span ends at
// exactly duration, with any short tail absorbed into the final span rather
// than forming an undersized extra one.
func PlanAudio(duration, chunkSec, overlapSec float64) ([]Span, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("chunk: duration must be positive, got %v", duration)
	}
	if chunkSec <= 0 {
		return nil, fmt.Errorf("chunk: chunk length must be positive, got %v", chunkSec)
	}
	if overlapSec < 0 {
		return nil, fmt.Errorf("chunk: overlap must not be negative, got %v", overlapSec)
	}
	step := chunkSec - overlapSec
	if step <= 0 {
		return nil, fmt.Errorf("chunk: overlap %v must be smaller than chunk length %v", overlapSec, chunkSec)
	}

	if duration <= chunkSec {
		return []Span{{Index: 0, Start: 0, End: duration}}, nil
	}

	var spans []Span
	start := 0.0
	for start+chunkSec < duration {
		spans = append(spans, Span{Index: len(spans), Start: start, End: start + chunkSec})
		start += step
	}
	spans = append(spans, Span{Index: len(spans), Start: start, End: duration})
	return spans, nil
}

// PlanText partitions transcript text into ordered blocks no larger than
// budget bytes, splitting on paragraph boundaries where possible and on
// word boundaries inside oversized paragraphs. Order is preserved; nothing
// is dropped.
func PlanText(text string, budget int) ([]string, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("chunk: text budget must be positive, got %d", budget)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	var (
		blocks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			blocks = append(blocks, current.String())
			current.Reset()
		}
	}

	for _, paragraph := range strings.Split(trimmed, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		for _, piece := range splitOversized(paragraph, budget) {
			needed := len(piece)
			if current.Len() > 0 {
				needed += 2
			}
			if current.Len()+needed > budget {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	flush()
	return blocks, nil
}

// splitOversized breaks a paragraph larger than budget into word-boundary
// pieces that each fit. A single word longer than budget is emitted whole.
func splitOversized(paragraph string, budget int) []string {
	if len(paragraph) <= budget {
		return []string{paragraph}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	for _, word := range strings.Fields(paragraph) {
		needed := len(word)
		if current.Len() > 0 {
			needed++
		}
		if current.Len() > 0 && current.Len()+needed > budget {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}
