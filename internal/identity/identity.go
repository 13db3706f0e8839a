// Package identity derives deterministic lecture identity from raw source
// metadata. Resolution is pure: no I/O, no clock, same input always yields
// the same identity.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"catchup/internal/services"
)

// UnknownCourse is used when no course code can be extracted.
const UnknownCourse = "UNKNOWN"

// UnknownDate is used when no lecture date can be extracted.
const UnknownDate = "unknown"

// UIDShortLength is the source_uid prefix length used for directory naming.
const UIDShortLength = 8

// Source is the raw submission input.
type Source struct {
	URL      string
	Title    string
	Language string // explicit user selection, "" or "auto" defers to the course table
}

// Identity is the derived lecture identity.
type Identity struct {
	CourseCode  string
	LectureDate string
	SourceUID   string
	UIDShort    string
	LectureID   string
	Language    string
}

var (
	courseCodeRe = regexp.MustCompile(`^[A-Z]{3}\d{3}`)
	guidRe       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dottedDateRe = regexp.MustCompile(`\b(\d{2})\.(\d{2})\.(\d{4})\b`)
	slashDateRe  = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`)
)

// Resolve derives the full identity for a source. It fails only when the URL
// cannot be parsed at all; every other ambiguity degrades to the sentinel
// values UnknownCourse and UnknownDate.
func Resolve(src Source) (Identity, error) {
	rawURL := strings.TrimSpace(src.URL)
	if rawURL == "" {
		return Identity{}, fmt.Errorf("%w: empty url", services.ErrInvalidSource)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Identity{}, fmt.Errorf("%w: unparseable url %q", services.ErrInvalidSource, rawURL)
	}

	uid := extractSourceUID(parsed, rawURL)
	course := ExtractCourseCode(src.Title)
	date := ExtractDate(src.Title)

	short := uid
	if len(short) > UIDShortLength {
		short = short[:UIDShortLength]
	}

	return Identity{
		CourseCode:  course,
		LectureDate: date,
		SourceUID:   uid,
		UIDShort:    short,
		LectureID:   fmt.Sprintf("%s_%s_%s", course, date, short),
		Language:    ResolveLanguage(course, src.Language),
	}, nil
}

// ExtractCourseCode returns the six-character course code at the start of
// the title, or UnknownCourse when the title does not begin with one.
func ExtractCourseCode(title string) string {
	trimmed := strings.TrimSpace(title)
	if match := courseCodeRe.FindString(trimmed); match != "" {
		return match
	}
	return UnknownCourse
}

// ExtractDate returns the first date found in the title, normalized to
// YYYY-MM-DD. Formats are tried in precedence order: YYYY-MM-DD, DD.MM.YYYY,
// DD/MM/YYYY. Returns UnknownDate when none match.
func ExtractDate(title string) string {
	if m := isoDateRe.FindStringSubmatch(title); m != nil {
		if validDate(m[1], m[2], m[3]) {
			return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
		}
	}
	if m := dottedDateRe.FindStringSubmatch(title); m != nil {
		if validDate(m[3], m[2], m[1]) {
			return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
		}
	}
	if m := slashDateRe.FindStringSubmatch(title); m != nil {
		if validDate(m[3], m[2], m[1]) {
			return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
		}
	}
	return UnknownDate
}

func validDate(year, month, day string) bool {
	m := atoi(month)
	d := atoi(day)
	y := atoi(year)
	return y >= 1900 && y <= 2200 && m >= 1 && m <= 12 && d >= 1 && d <= 31
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// extractSourceUID prefers a provider-native GUID: the "id" query parameter
// when it looks like a canonical hex GUID, then any GUID-shaped path segment.
// Otherwise it falls back to a stable hash of the canonicalized URL.
func extractSourceUID(parsed *url.URL, rawURL string) string {
	if id := parsed.Query().Get("id"); id != "" && guidRe.MatchString(id) {
		return strings.ToLower(id)
	}
	for _, segment := range strings.Split(parsed.EscapedPath(), "/") {
		if guidRe.MatchString(segment) {
			return strings.ToLower(segment)
		}
	}
	return hashURL(rawURL)
}

func hashURL(rawURL string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])
}
