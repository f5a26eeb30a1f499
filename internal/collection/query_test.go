package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type post struct {
	Title    string
	Category string
	Priority int
	Pinned   bool
	At       time.Time
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

var posts = []post{
	{"Café opening", "News", 1, false, day(3)},
	{"Quarterly results", "Finance", 3, true, day(1)},
	{"New office in Zürich", "News", 2, false, day(5)},
	{"Holiday schedule", "HR", 1, false, day(4)},
	{"Security update", "IT", 3, false, day(2)},
}

func titles(ps []post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func TestApply_EmptyQueryKeepsOrder(t *testing.T) {
	got := Apply(posts, Query[post]{})
	assert.Equal(t, titles(posts), titles(got))
}

func TestApply_EqualsFilter(t *testing.T) {
	category := func(p post) string { return p.Category }

	got := Apply(posts, Query[post]{Filters: []Filter[post]{Equals(category, "news")}})
	assert.Equal(t, []string{"Café opening", "New office in Zürich"}, titles(got))

	all := Apply(posts, Query[post]{Filters: []Filter[post]{Equals(category, "All")}})
	assert.Len(t, all, len(posts))

	none := Apply(posts, Query[post]{Filters: []Filter[post]{Equals(category, "")}})
	assert.Len(t, none, len(posts))
}

func TestApply_SearchIgnoresCaseAndAccents(t *testing.T) {
	fields := func(p post) []string { return []string{p.Title, p.Category} }

	got := Apply(posts, Query[post]{Search: "CAFE", SearchFields: fields})
	assert.Equal(t, []string{"Café opening"}, titles(got))

	got = Apply(posts, Query[post]{Search: "zurich office", SearchFields: fields})
	assert.Equal(t, []string{"New office in Zürich"}, titles(got))

	got = Apply(posts, Query[post]{Search: "news security", SearchFields: fields})
	assert.Empty(t, got)
}

func TestApply_SortAndLimit(t *testing.T) {
	pinnedFirst := func(a, b post) int {
		switch {
		case a.Pinned == b.Pinned:
			return 0
		case a.Pinned:
			return -1
		default:
			return 1
		}
	}
	q := Query[post]{
		Compare: Then(
			pinnedFirst,
			Desc(By(func(p post) int { return p.Priority })),
			Desc(By(func(p post) int64 { return p.At.Unix() })),
		),
		Limit: 3,
	}

	got := Apply(posts, q)
	assert.Equal(t, []string{"Quarterly results", "Security update", "New office in Zürich"}, titles(got))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	before := titles(posts)
	Apply(posts, Query[post]{Compare: ByText(func(p post) string { return p.Title })})
	assert.Equal(t, before, titles(posts))
}

func TestApply_Where(t *testing.T) {
	got := Apply(posts, Query[post]{Filters: []Filter[post]{Where(func(p post) bool { return p.Priority > 2 })}})
	assert.Equal(t, []string{"Quarterly results", "Security update"}, titles(got))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe", Normalize("  Café "))
	assert.Equal(t, "zurich", Normalize("ZÜRICH"))
	assert.Equal(t, "strasse", Normalize("Straße"))
	assert.Equal(t, "", Normalize("   "))
}
