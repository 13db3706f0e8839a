package identity

import (
	"strings"

	"golang.org/x/text/language"
)

// LanguageAuto lets the transcriber detect the spoken language.
const LanguageAuto = "auto"

// courseLanguages maps known courses to their lecture language. Courses not
// listed here resolve to LanguageAuto.
var courseLanguages = map[string]string{
	"ELE130": "no",
	"MAT200": "no",
}

// ResolveLanguage returns the transcription language for a course. An
// explicit, well-formed user selection always wins; "auto" or an invalid
// tag defers to the per-course table.
func ResolveLanguage(courseCode, explicit string) string {
	selected := strings.ToLower(strings.TrimSpace(explicit))
	if selected != "" && selected != LanguageAuto {
		if _, err := language.Parse(selected); err == nil {
			return selected
		}
	}
	if lang, ok := courseLanguages[strings.ToUpper(strings.TrimSpace(courseCode))]; ok {
		return lang
	}
	return LanguageAuto
}
