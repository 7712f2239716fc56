// Package validation holds the pure input checks applied to user-supplied
// text, filenames and CSRF tokens before they reach storage.
package validation

import (
	"regexp"
	"strings"
)

var (
	scriptBlockPattern   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	htmlTagPattern       = regexp.MustCompile(`(?s)<[^>]*>`)
	javascriptURIPattern = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerPattern  = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// SanitizeText strips script blocks, HTML tags, javascript: URIs and inline
// on*= handlers, then trims surrounding whitespace.
//
// This is pattern matching, not an HTML parser. Passes are repeated until the
// text stops changing, so SanitizeText(SanitizeText(s)) == SanitizeText(s)
// even for inputs like "<scr<b>ipt>" whose removal exposes a new match.
func SanitizeText(s string) string {
	for {
		next := sanitizePass(s)
		if next == s {
			return next
		}
		s = next
	}
}

func sanitizePass(s string) string {
	s = scriptBlockPattern.ReplaceAllString(s, "")
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = javascriptURIPattern.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
