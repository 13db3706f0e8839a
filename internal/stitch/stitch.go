// Package stitch plans silence-compressed audio timelines from detected
// speech intervals. Short pauses are preserved unchanged so the result keeps
// its natural rhythm; only long silences are compressed. The package does
// pure interval arithmetic; writing the compressed audio is left to the
// media converter, parameterized by the plan.
package stitch

import (
	"fmt"
	"sort"

	"catchup/internal/services"
)

// Interval is one detected speech region in source-audio seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Params controls the silence policy.
type Params struct {
	// LongSilenceSec is the gap length above which silence is compressed.
	LongSilenceSec float64
	// KeepSilenceSec is the length a compressed gap is reduced to. Never zero
	// in a valid configuration; a gap is compressed, not removed.
	KeepSilenceSec float64
	// PaddingSec is added on both sides of every interval before merging.
	PaddingSec float64
}

// DefaultParams matches the tuned silence policy.
func DefaultParams() Params {
	return Params{
		LongSilenceSec: 1.6,
		KeepSilenceSec: 0.35,
		PaddingSec:     0.2,
	}
}

// Segment maps one speech run from the source timeline into the output
// timeline. The run [SourceStart, SourceEnd) is placed at OutputStart.
type Segment struct {
	SourceStart float64 `json:"source_start"`
	SourceEnd   float64 `json:"source_end"`
	OutputStart float64 `json:"output_start"`
}

// Plan fully determines construction of the compressed output and the
// inverse time mapping back into the source recording.
type Plan struct {
	Segments       []Segment `json:"segments"`
	SourceDuration float64   `json:"source_duration"`
	OutputDuration float64   `json:"output_duration"`
}

// Build computes the stitch plan for the given speech intervals. It fails
// with NoSpeechDetected when no usable speech remains after clamping;
// silence is never silently emitted as an empty output.
func Build(intervals []Interval, duration float64, params Params) (*Plan, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("stitch: duration must be positive, got %v", duration)
	}
	if params.LongSilenceSec <= 0 {
		return nil, fmt.Errorf("stitch: long silence threshold must be positive, got %v", params.LongSilenceSec)
	}
	if params.KeepSilenceSec < 0 || params.PaddingSec < 0 {
		return nil, fmt.Errorf("stitch: negative silence parameters")
	}

	runs := mergeRuns(intervals, duration, params.PaddingSec)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no speech intervals in %v seconds of audio", services.ErrNoSpeechDetected, duration)
	}

	plan := &Plan{
		Segments:       make([]Segment, 0, len(runs)),
		SourceDuration: duration,
	}

	sourceCursor := 0.0
	outputCursor := 0.0
	for _, run := range runs {
		gap := run.Start - sourceCursor
		outputCursor += keptGap(gap, params)
		plan.Segments = append(plan.Segments, Segment{
			SourceStart: run.Start,
			SourceEnd:   run.End,
			OutputStart: outputCursor,
		})
		outputCursor += run.End - run.Start
		sourceCursor = run.End
	}
	outputCursor += keptGap(duration-sourceCursor, params)
	plan.OutputDuration = outputCursor

	return plan, nil
}

// keptGap maps a source silence gap to its output length: short gaps are
// copied unchanged, long gaps are compressed to the keep length.
func keptGap(gap float64, params Params) float64 {
	if gap <= 0 {
		return 0
	}
	if gap <= params.LongSilenceSec {
		return gap
	}
	return params.KeepSilenceSec
}

// mergeRuns pads every interval, clamps it to [0, duration], and merges
// touching or overlapping results into ordered runs. Zero-length gaps merge
// rather than producing a zero-duration run boundary.
func mergeRuns(intervals []Interval, duration, padding float64) []Interval {
	padded := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		start := iv.Start - padding
		end := iv.End + padding
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}
		padded = append(padded, Interval{Start: start, End: end})
	}
	if len(padded) == 0 {
		return nil
	}

	sort.Slice(padded, func(i, j int) bool {
		if padded[i].Start != padded[j].Start {
			return padded[i].Start < padded[j].Start
		}
		return padded[i].End < padded[j].End
	})

	runs := []Interval{padded[0]}
	for _, iv := range padded[1:] {
		last := &runs[len(runs)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		runs = append(runs, iv)
	}
	return runs
}

// SourceTime maps a moment on the output timeline back to source-audio
// time. Moments inside a compressed gap map to the end of the preceding
// speech run.
func (p *Plan) SourceTime(outputTime float64) float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	prevEnd := 0.0
	for _, seg := range p.Segments {
		if outputTime < seg.OutputStart {
			return prevEnd
		}
		length := seg.SourceEnd - seg.SourceStart
		if outputTime <= seg.OutputStart+length {
			return seg.SourceStart + (outputTime - seg.OutputStart)
		}
		prevEnd = seg.SourceEnd
	}
	return prevEnd
}

// Compressed reports whether the plan shortens the source timeline.
func (p *Plan) Compressed() bool {
	return p.OutputDuration < p.SourceDuration
}
