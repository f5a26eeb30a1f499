package content

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/plugins/audit"
)

// resultsID is the element HTMX filter forms swap.
const resultsID = "results"

const degradedNotice = "We couldn't reach the content service, so some of this may be out of date."

const homeDescription = "Meridian provides technology consulting, cloud operations and data services."

type adminView struct {
	Name         string
	Stats        *Stats
	News         *Listing[backend.Announcement]
	AuditEnabled bool
	Events       []audit.AuthEvent
	Summary      *audit.Summary
}

type sortOption struct {
	value string
	label string
}

var sortOptions = []sortOption{
	{SortFeatured, "Featured"},
	{SortNewest, "Newest first"},
	{SortOldest, "Oldest first"},
	{SortPriority, "Priority"},
}

func (o sortOption) selected(current string) bool {
	return o.value == current || (current == "" && o.value == SortFeatured)
}

// toolGroup is a run of tools sharing a category. Items arrive sorted by
// category, so grouping keeps their order.
type toolGroup struct {
	Category string
	Tools    []backend.Tool
}

func groupTools(items []backend.Tool) []toolGroup {
	var groups []toolGroup
	for _, t := range items {
		if n := len(groups); n > 0 && groups[n-1].Category == t.Category {
			groups[n-1].Tools = append(groups[n-1].Tools, t)
			continue
		}
		groups = append(groups, toolGroup{Category: t.Category, Tools: []backend.Tool{t}})
	}
	return groups
}

func showingCount(shown, total int) string {
	return fmt.Sprintf("Showing %d of %d", shown, total)
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}

func signInSummary(s *audit.Summary) string {
	return fmt.Sprintf("%s sign-ins and %s failures in the last 24 hours.", comma(s.Logins), comma(s.Failures))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
