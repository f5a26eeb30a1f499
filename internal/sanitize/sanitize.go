// Package sanitize cleans HTML that arrives from the content backend before
// it is rendered. Announcement bodies are authored in a CMS and passed
// through verbatim by the API, so every body goes through HTML before it
// reaches templ.Raw.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Policies are built once; bluemonday policies are safe for concurrent use
// after construction.
var (
	richPolicy  *bluemonday.Policy
	plainPolicy *bluemonday.Policy
	policyOnce  sync.Once
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		richPolicy = bluemonday.UGCPolicy()

		// CMS output uses classes for alignment and callout boxes.
		richPolicy.AllowAttrs("class").Globally()

		richPolicy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption", "figure", "figcaption")
		richPolicy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

		// External links open in a new tab without leaking the opener.
		richPolicy.AddTargetBlankToFullyQualifiedLinks(true)
		richPolicy.RequireNoReferrerOnFullyQualifiedLinks(true)

		plainPolicy = bluemonday.StrictPolicy()
	})
	return richPolicy, plainPolicy
}

// HTML strips dangerous markup (scripts, event handlers, javascript: URLs)
// while keeping formatting. The result is safe for templ.Raw.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	rich, _ := policies()
	return rich.Sanitize(input)
}

// Text reduces HTML to plain text with collapsed whitespace.
func Text(input string) string {
	if input == "" {
		return ""
	}
	_, plain := policies()
	// Block boundaries become spaces so words from adjacent paragraphs do
	// not run together.
	spaced := strings.NewReplacer("<", " <").Replace(input)
	text := html.UnescapeString(plain.Sanitize(spaced))
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt returns at most max runes of the plain text of input, cut at a
// word boundary and suffixed with an ellipsis when shortened.
func Excerpt(input string, max int) string {
	text := Text(input)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:max])
	if runes[max] != ' ' {
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
