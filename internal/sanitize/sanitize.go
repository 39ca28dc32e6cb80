// Package sanitize cleans user-supplied review text before it is stored.
//
// Output is plain text: markup is removed rather than escaped, so readers
// must still escape it when rendering HTML. Every function is pure and
// idempotent.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxPasses = 16

var (
	strict = bluemonday.StrictPolicy()

	// Handler names and data URIs must start at a word boundary or carry a
	// media type, so prose like "conditions=perfect" or "the data: ok" survives.
	eventHandlerAttr = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	unsafeScheme     = regexp.MustCompile(`(?i)(?:java|vb)script\s*:|\bdata:\s*(?:[a-z]+/[a-z0-9.+-]+|[;,])`)
	markupChars      = strings.NewReplacer("<", "", ">", "", "&", "")
)

// Text strips executable markup, event-handler attributes and script or data
// URL schemes from s.
func Text(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
	// Pathologically nested input: drop the characters markup needs.
	return stripPatterns(markupChars.Replace(s))
}

// Name collapses runs of whitespace and sanitizes the result.
func Name(s string) string {
	return collapse(Text(collapse(s)))
}

// Email trims and lower-cases an address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// pass removes markup, decodes entities so encoded markup is seen by the next
// pass, then removes dangerous text patterns.
func pass(s string) string {
	return stripPatterns(html.UnescapeString(strict.Sanitize(s)))
}

func stripPatterns(s string) string {
	for {
		next := unsafeScheme.ReplaceAllString(eventHandlerAttr.ReplaceAllString(s, ""), "")
		if next == s {
			return s
		}
		s = next
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
