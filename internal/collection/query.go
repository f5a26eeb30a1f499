package collection

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Filter keeps an item when it returns true.
type Filter[T any] func(T) bool

// Query is the declarative pipeline a page applies to a loaded collection:
// filters, then search, then a stable sort, then a limit.
type Query[T any] struct {
	Filters []Filter[T]

	// Search matches when every word appears in at least one of the
	// strings returned by SearchFields. Case and accents are ignored.
	Search       string
	SearchFields func(T) []string

	// Compare orders the result. Nil keeps source order.
	Compare func(a, b T) int

	// Limit caps the result when positive.
	Limit int
}

// Apply runs q over items without modifying items.
func Apply[T any](items []T, q Query[T]) []T {
	terms := searchTerms(q.Search)
	out := make([]T, 0, len(items))

next:
	for _, it := range items {
		for _, f := range q.Filters {
			if f != nil && !f(it) {
				continue next
			}
		}
		if len(terms) > 0 && q.SearchFields != nil && !matchesAll(terms, q.SearchFields(it)) {
			continue
		}
		out = append(out, it)
	}

	if q.Compare != nil {
		slices.SortStableFunc(out, q.Compare)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Equals keeps items whose field matches value, ignoring case and accents.
// An empty value or "all" disables the filter.
func Equals[T any](field func(T) string, value string) Filter[T] {
	want := Normalize(value)
	if want == "" || want == "all" {
		return nil
	}
	return func(it T) bool {
		return Normalize(field(it)) == want
	}
}

// Where wraps a plain predicate.
func Where[T any](pred func(T) bool) Filter[T] {
	return pred
}

// By orders ascending by a key.
func By[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// ByText orders ascending by a string key, ignoring case and accents.
func ByText[T any](key func(T) string) func(a, b T) int {
	return func(a, b T) int {
		return strings.Compare(Normalize(key(a)), Normalize(key(b)))
	}
}

// Desc reverses an ordering.
func Desc[T any](c func(a, b T) int) func(a, b T) int {
	return func(a, b T) int {
		return c(b, a)
	}
}

// Then combines orderings; later ones break ties in earlier ones.
func Then[T any](cs ...func(a, b T) int) func(a, b T) int {
	return func(a, b T) int {
		for _, c := range cs {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	}
}

// Normalize folds case and strips combining marks so "Café" and "cafe"
// compare equal. Transformers are stateful, so each call builds its own.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

func searchTerms(q string) []string {
	return strings.Fields(Normalize(q))
}

func matchesAll(terms, fields []string) bool {
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = Normalize(f)
	}
	for _, term := range terms {
		found := false
		for _, f := range normalized {
			if strings.Contains(f, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
