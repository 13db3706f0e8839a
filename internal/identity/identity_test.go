package identity

import (
	"errors"
	"strings"
	"testing"

	"catchup/internal/services"
)

func TestExtractCourseCode(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "ELE130 Forelesning", "ELE130"},
		{"leading whitespace", "  MAT200 2024-09-02", "MAT200"},
		{"with suffix", "DAT520-1 Distributed Systems", "DAT520"},
		{"lowercase rejected", "ele130 forelesning", UnknownCourse},
		{"code not at start", "Forelesning ELE130", UnknownCourse},
		{"too few digits", "ELE13 intro", UnknownCourse},
		{"empty", "", UnknownCourse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractCourseCode(tc.title); got != tc.want {
				t.Fatalf("ExtractCourseCode(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestExtractDateFormats(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"iso", "ELE130 2024-09-02 intro", "2024-09-02"},
		{"dotted", "ELE130 02.09.2024 intro", "2024-09-02"},
		{"slash", "ELE130 02/09/2024 intro", "2024-09-02"},
		{"iso wins over dotted", "2024-09-02 also 03.10.2024", "2024-09-02"},
		{"no date", "ELE130 introduction", UnknownDate},
		{"month out of range", "ELE130 40.40.2024", UnknownDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractDate(tc.title); got != tc.want {
				t.Fatalf("ExtractDate(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestResolvePrefersProviderGUID(t *testing.T) {
	src := Source{
		URL:   "https://portal.example.edu/Panopto/Pages/Viewer.aspx?id=3F2504E0-4F89-11D3-9A0C-0305E82C3301",
		Title: "ELE130 2024-09-02 Forelesning",
	}
	id, err := Resolve(src)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if id.SourceUID != "3f2504e0-4f89-11d3-9a0c-0305e82c3301" {
		t.Fatalf("unexpected source uid %q", id.SourceUID)
	}
	if id.UIDShort != "3f2504e0" {
		t.Fatalf("unexpected short uid %q", id.UIDShort)
	}
	if id.LectureID != "ELE130_2024-09-02_3f2504e0" {
		t.Fatalf("unexpected lecture id %q", id.LectureID)
	}
}

func TestResolveGUIDFromPathSegment(t *testing.T) {
	id, err := Resolve(Source{
		URL:   "https://portal.example.edu/media/3F2504E0-4F89-11D3-9A0C-0305E82C3301/stream",
		Title: "MAT200 02.09.2024",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if id.SourceUID != "3f2504e0-4f89-11d3-9a0c-0305e82c3301" {
		t.Fatalf("unexpected source uid %q", id.SourceUID)
	}
}

func TestResolveHashFallbackIsStable(t *testing.T) {
	src := Source{URL: "https://videos.example.edu/watch/lecture-42", Title: "no code here"}
	first, err := Resolve(src)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	second, err := Resolve(src)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if first.SourceUID != second.SourceUID {
		t.Fatalf("source uid not stable: %q vs %q", first.SourceUID, second.SourceUID)
	}
	if len(first.SourceUID) != 40 {
		t.Fatalf("expected sha1 hex fallback, got %q", first.SourceUID)
	}
	if first.CourseCode != UnknownCourse || first.LectureDate != UnknownDate {
		t.Fatalf("expected sentinel identity, got %q %q", first.CourseCode, first.LectureDate)
	}
	if !strings.HasPrefix(first.LectureID, "UNKNOWN_unknown_") {
		t.Fatalf("unexpected lecture id %q", first.LectureID)
	}
}

func TestResolveDistinctURLsDistinctUIDs(t *testing.T) {
	a, err := Resolve(Source{URL: "https://videos.example.edu/watch/a"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	b, err := Resolve(Source{URL: "https://videos.example.edu/watch/b"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if a.SourceUID == b.SourceUID {
		t.Fatalf("distinct urls produced the same uid %q", a.SourceUID)
	}
	if a.LectureID == b.LectureID {
		t.Fatalf("distinct uids produced the same lecture id %q", a.LectureID)
	}
}

func TestResolveInvalidURL(t *testing.T) {
	for _, url := range []string{"", "   ", "not a url", "/relative/path"} {
		if _, err := Resolve(Source{URL: url}); !errors.Is(err, services.ErrInvalidSource) {
			t.Fatalf("Resolve(%q) error = %v, want ErrInvalidSource", url, err)
		}
	}
}

func TestResolveLanguage(t *testing.T) {
	cases := []struct {
		name     string
		course   string
		explicit string
		want     string
	}{
		{"explicit wins over table", "ELE130", "en", "en"},
		{"course table", "ELE130", "", "no"},
		{"course table auto", "MAT200", "auto", "no"},
		{"unknown course", "DAT520", "", LanguageAuto},
		{"invalid explicit falls back", "ELE130", "zzzz!", "no"},
		{"unknown everything", "UNKNOWN", "", LanguageAuto},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveLanguage(tc.course, tc.explicit); got != tc.want {
				t.Fatalf("ResolveLanguage(%q, %q) = %q, want %q", tc.course, tc.explicit, got, tc.want)
			}
		})
	}
}
