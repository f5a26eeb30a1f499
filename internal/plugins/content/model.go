// Package content renders the public and signed-in content pages: home,
// services, team, announcements, tools and the two dashboards. Every list
// comes from a remote collection that survives backend outages by serving
// a cached or bundled copy.
package content

import (
	"time"

	"github.com/meridianhq/corpweb/internal/backend"
)

// Announcement sort orders accepted in the sort query parameter.
const (
	SortFeatured = "featured"
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortPriority = "priority"
)

// Listing is one page's worth of a collection after filtering.
type Listing[T any] struct {
	Items []T

	// Total is the collection size before filters and search.
	Total int

	// Facets are the distinct filter values, e.g. departments.
	Facets []string

	// Degraded is true when the items came from a stale cache or the
	// bundled fallback.
	Degraded bool
}

// TeamQuery filters the team page.
type TeamQuery struct {
	Department string `query:"department"`
	Search     string `query:"q"`
}

// AnnouncementQuery filters and orders the announcements page.
type AnnouncementQuery struct {
	Category string `query:"category"`
	Search   string `query:"q"`
	Sort     string `query:"sort"`
	Limit    int    `query:"-"`
}

// ToolQuery filters the tools page.
type ToolQuery struct {
	Category string `query:"category"`
	Search   string `query:"q"`
}

// Highlights feed the home page.
type Highlights struct {
	Services      []backend.Service
	Announcements []backend.Announcement
	Degraded      bool
}

// Stats are the dashboard numbers. Estimated is true when the stats
// endpoint failed and the numbers were counted from the collections.
type Stats struct {
	backend.DashboardStats
	Estimated bool
}

// fallbackData is the shape of fallback.yaml.
type fallbackData struct {
	Services      []backend.Service      `yaml:"services"`
	Team          []backend.TeamMember   `yaml:"team"`
	Announcements []backend.Announcement `yaml:"announcements"`
	Tools         []backend.Tool         `yaml:"tools"`
}

// Config tunes the collections.
type Config struct {
	// CacheTTL is how long a successful load is served from Redis. Zero
	// disables caching.
	CacheTTL time.Duration

	// MaxTries bounds loader attempts per load.
	MaxTries uint
}
