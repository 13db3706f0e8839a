package stitch

import (
	"errors"
	"math"
	"testing"

	"catchup/internal/services"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildPreservesShortGap(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0}
	intervals := []Interval{
		{Start: 0, End: 10},
		{Start: 11.2, End: 20},
	}
	plan, err := Build(intervals, 20, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(plan.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(plan.Segments))
	}
	// 1.2s gap is under the threshold and must appear unchanged.
	gap := plan.Segments[1].OutputStart - (plan.Segments[0].OutputStart + 10)
	if !almostEqual(gap, 1.2) {
		t.Fatalf("short gap changed: got %v, want 1.2", gap)
	}
	if !almostEqual(plan.OutputDuration, plan.SourceDuration) {
		t.Fatalf("no long gap but duration changed: %v -> %v", plan.SourceDuration, plan.OutputDuration)
	}
	if plan.Compressed() {
		t.Fatal("plan without long gaps must not report compression")
	}
}

func TestBuildCompressesLongGap(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0}
	intervals := []Interval{
		{Start: 0, End: 10},
		{Start: 12, End: 20},
	}
	plan, err := Build(intervals, 20, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	gap := plan.Segments[1].OutputStart - (plan.Segments[0].OutputStart + 10)
	if !almostEqual(gap, 0.35) {
		t.Fatalf("long gap compressed to %v, want exactly 0.35", gap)
	}
	if !plan.Compressed() {
		t.Fatal("plan with a long gap must report compression")
	}
	want := 20.0 - 2.0 + 0.35
	if !almostEqual(plan.OutputDuration, want) {
		t.Fatalf("output duration = %v, want %v", plan.OutputDuration, want)
	}
}

func TestBuildIdentityForFullSpanInterval(t *testing.T) {
	plan, err := Build([]Interval{{Start: 0, End: 60}}, 60, DefaultParams())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(plan.Segments) != 1 {
		t.Fatalf("expected identity plan with 1 segment, got %d", len(plan.Segments))
	}
	seg := plan.Segments[0]
	if !almostEqual(seg.SourceStart, 0) || !almostEqual(seg.SourceEnd, 60) || !almostEqual(seg.OutputStart, 0) {
		t.Fatalf("unexpected identity segment %+v", seg)
	}
	if !almostEqual(plan.OutputDuration, 60) {
		t.Fatalf("identity plan output duration = %v, want 60", plan.OutputDuration)
	}
}

func TestBuildNoSpeech(t *testing.T) {
	if _, err := Build(nil, 60, DefaultParams()); !errors.Is(err, services.ErrNoSpeechDetected) {
		t.Fatalf("empty intervals: error = %v, want ErrNoSpeechDetected", err)
	}
	// Intervals clamped to nothing count as silence too.
	outOfRange := []Interval{{Start: 70, End: 80}}
	if _, err := Build(outOfRange, 60, DefaultParams()); !errors.Is(err, services.ErrNoSpeechDetected) {
		t.Fatalf("clamped-away intervals: error = %v, want ErrNoSpeechDetected", err)
	}
}

func TestBuildMergesTouchingIntervalsAfterPadding(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0.2}
	// After 0.2s padding the intervals touch exactly; they must merge into
	// one run rather than forming a zero-duration boundary.
	intervals := []Interval{
		{Start: 1, End: 5},
		{Start: 5.4, End: 9},
	}
	plan, err := Build(intervals, 10, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(plan.Segments) != 1 {
		t.Fatalf("touching intervals produced %d segments, want 1", len(plan.Segments))
	}
	seg := plan.Segments[0]
	if !almostEqual(seg.SourceStart, 0.8) || !almostEqual(seg.SourceEnd, 9.2) {
		t.Fatalf("unexpected merged run %+v", seg)
	}
}

func TestBuildHandlesUnsortedInput(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0}
	plan, err := Build([]Interval{
		{Start: 12, End: 20},
		{Start: 0, End: 10},
	}, 20, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !almostEqual(plan.Segments[0].SourceStart, 0) {
		t.Fatalf("segments not sorted: first starts at %v", plan.Segments[0].SourceStart)
	}
}

func TestBuildCompressesLeadingAndTrailingSilence(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0}
	plan, err := Build([]Interval{{Start: 5, End: 55}}, 60, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !almostEqual(plan.Segments[0].OutputStart, 0.35) {
		t.Fatalf("leading silence kept %v, want 0.35", plan.Segments[0].OutputStart)
	}
	want := 0.35 + 50 + 0.35
	if !almostEqual(plan.OutputDuration, want) {
		t.Fatalf("output duration = %v, want %v", plan.OutputDuration, want)
	}
}

func TestSourceTimeInverseMapping(t *testing.T) {
	params := Params{LongSilenceSec: 1.6, KeepSilenceSec: 0.35, PaddingSec: 0}
	plan, err := Build([]Interval{
		{Start: 0, End: 10},
		{Start: 12, End: 20},
	}, 20, params)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	cases := []struct {
		output float64
		want   float64
	}{
		{0, 0},
		{5, 5},
		{10, 10},
		{10.2, 10},  // inside the compressed gap
		{10.35, 12}, // start of the second run
		{14.35, 16}, // inside the second run
		{18.35, 20}, // end of audio
	}
	for _, tc := range cases {
		if got := plan.SourceTime(tc.output); !almostEqual(got, tc.want) {
			t.Fatalf("SourceTime(%v) = %v, want %v", tc.output, got, tc.want)
		}
	}
}
