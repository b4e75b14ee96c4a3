// Package sanitize cleans free text entered by staff before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer holds the two allow-list policies. Safe for concurrent use.
type Sanitizer struct {
	strict *bluemonday.Policy
	notes  *bluemonday.Policy
}

func New() *Sanitizer {
	notes := bluemonday.NewPolicy()
	notes.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i")

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		notes:  notes,
	}
}

// Text strips all markup and returns plain, trimmed text.
func (s *Sanitizer) Text(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// Notes keeps simple formatting tags and drops everything else, including
// scripts, styles, links and event attributes.
func (s *Sanitizer) Notes(in string) string {
	return strings.TrimSpace(s.notes.Sanitize(in))
}
