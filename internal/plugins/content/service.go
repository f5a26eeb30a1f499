package content

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/collection"
	"github.com/meridianhq/corpweb/internal/sanitize"
)

//go:embed fallback.yaml
var fallbackYAML []byte

// homeHighlights is how many services and announcements the home page shows.
const homeHighlights = 3

// summaryLength bounds generated announcement summaries, in runes.
const summaryLength = 200

// ContentService defines the business logic for the content pages.
type ContentService interface {
	Highlights(ctx context.Context) (*Highlights, error)
	Services(ctx context.Context) (*Listing[backend.Service], error)
	Service(ctx context.Context, slug string) (*backend.Service, error)
	Team(ctx context.Context, q TeamQuery) (*Listing[backend.TeamMember], error)
	Announcements(ctx context.Context, q AnnouncementQuery) (*Listing[backend.Announcement], error)
	Announcement(ctx context.Context, id string) (*backend.Announcement, error)

	// Tools lists enabled tools; admin-only tools are included only when
	// elevated is true.
	Tools(ctx context.Context, q ToolQuery, elevated bool) (*Listing[backend.Tool], error)

	// Stats fetches dashboard numbers with the session token. A rejected
	// token is returned as an unauthorized error; any other failure
	// falls back to counting the collections.
	Stats(ctx context.Context, token string) (*Stats, error)

	// Refresh drops every cached collection.
	Refresh(ctx context.Context) error
}

// contentService implements ContentService.
type contentService struct {
	api           backend.ContentAPI
	services      *collection.Collection[backend.Service]
	team          *collection.Collection[backend.TeamMember]
	announcements *collection.Collection[backend.Announcement]
	tools         *collection.Collection[backend.Tool]
	logger        *slog.Logger
}

// NewContentService builds the collections. Public collections are loaded
// without a token so one cached copy serves every visitor; cache may be nil.
func NewContentService(api backend.ContentAPI, cache collection.Cache, cfg Config) (ContentService, error) {
	var fb fallbackData
	if err := yaml.Unmarshal(fallbackYAML, &fb); err != nil {
		return nil, fmt.Errorf("parsing fallback content: %w", err)
	}

	logger := slog.Default().With(slog.String("component", "content"))

	return &contentService{
		api: api,
		services: newCollection("services", func(ctx context.Context) ([]backend.Service, error) {
			return api.Services(ctx, "")
		}, fb.Services, cache, cfg, logger),
		team: newCollection("team", func(ctx context.Context) ([]backend.TeamMember, error) {
			return api.Team(ctx, "")
		}, fb.Team, cache, cfg, logger),
		announcements: newCollection("announcements", func(ctx context.Context) ([]backend.Announcement, error) {
			return api.Announcements(ctx, "")
		}, fb.Announcements, cache, cfg, logger),
		tools: newCollection("tools", func(ctx context.Context) ([]backend.Tool, error) {
			return api.Tools(ctx, "")
		}, fb.Tools, cache, cfg, logger),
		logger: logger,
	}, nil
}

func newCollection[T any](name string, load collection.Loader[T], fallback []T, cache collection.Cache, cfg Config, logger *slog.Logger) *collection.Collection[T] {
	opts := []collection.Option[T]{
		collection.WithFallback(fallback),
		collection.WithMaxTries[T](cfg.MaxTries),
		collection.WithLogger[T](logger),
	}
	if cache != nil && cfg.CacheTTL > 0 {
		opts = append(opts, collection.WithCache[T](cache, cfg.CacheTTL, 0))
	}
	return collection.New(name, load, opts...)
}

// load unwraps a collection result; it only fails when nothing at all
// could be served.
func load[T any](ctx context.Context, c *collection.Collection[T]) ([]T, bool, error) {
	res := c.Load(ctx)
	if res.Items == nil && res.Err != nil {
		return nil, false, apperror.NewNetwork(res.Err)
	}
	return res.Items, res.Degraded(), nil
}

// Highlights returns the first services and the featured announcements.
func (s *contentService) Highlights(ctx context.Context) (*Highlights, error) {
	services, sd, err := load(ctx, s.services)
	if err != nil {
		return nil, err
	}
	news, nd, err := load(ctx, s.announcements)
	if err != nil {
		return nil, err
	}

	return &Highlights{
		Services: collection.Apply(services, collection.Query[backend.Service]{Limit: homeHighlights}),
		Announcements: collection.Apply(news, collection.Query[backend.Announcement]{
			Compare: announcementOrder(SortFeatured),
			Limit:   homeHighlights,
		}),
		Degraded: sd || nd,
	}, nil
}

// Services lists every service in source order.
func (s *contentService) Services(ctx context.Context) (*Listing[backend.Service], error) {
	items, degraded, err := load(ctx, s.services)
	if err != nil {
		return nil, err
	}
	return &Listing[backend.Service]{Items: items, Total: len(items), Degraded: degraded}, nil
}

// Service finds one service by slug.
func (s *contentService) Service(ctx context.Context, slug string) (*backend.Service, error) {
	items, _, err := load(ctx, s.services)
	if err != nil {
		return nil, err
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	i := slices.IndexFunc(items, func(it backend.Service) bool { return it.Slug == slug })
	if i < 0 {
		return nil, apperror.NewNotFound("service not found")
	}
	svc := items[i]
	return &svc, nil
}

// Team filters by department and searches name, title and bio.
func (s *contentService) Team(ctx context.Context, q TeamQuery) (*Listing[backend.TeamMember], error) {
	items, degraded, err := load(ctx, s.team)
	if err != nil {
		return nil, err
	}

	out := collection.Apply(items, collection.Query[backend.TeamMember]{
		Filters: []collection.Filter[backend.TeamMember]{
			collection.Equals(func(m backend.TeamMember) string { return m.Department }, q.Department),
		},
		Search: q.Search,
		SearchFields: func(m backend.TeamMember) []string {
			return []string{m.Name, m.Title, m.Department, m.Bio}
		},
		Compare: collection.Then(
			collection.By(func(m backend.TeamMember) int { return m.Order }),
			collection.ByText(func(m backend.TeamMember) string { return m.Name }),
		),
	})

	return &Listing[backend.TeamMember]{
		Items:    out,
		Total:    len(items),
		Facets:   facets(items, func(m backend.TeamMember) string { return m.Department }),
		Degraded: degraded,
	}, nil
}

// Announcements filters by category, searches title and summary, and
// orders by q.Sort.
func (s *contentService) Announcements(ctx context.Context, q AnnouncementQuery) (*Listing[backend.Announcement], error) {
	items, degraded, err := load(ctx, s.announcements)
	if err != nil {
		return nil, err
	}

	out := collection.Apply(items, collection.Query[backend.Announcement]{
		Filters: []collection.Filter[backend.Announcement]{
			collection.Equals(func(a backend.Announcement) string { return a.Category }, q.Category),
		},
		Search: q.Search,
		SearchFields: func(a backend.Announcement) []string {
			return []string{a.Title, a.Summary, a.Category}
		},
		Compare: announcementOrder(q.Sort),
		Limit:   q.Limit,
	})
	for i := range out {
		if out[i].Summary == "" {
			out[i].Summary = sanitize.Excerpt(out[i].BodyHTML, summaryLength)
		}
	}

	return &Listing[backend.Announcement]{
		Items:    out,
		Total:    len(items),
		Facets:   facets(items, func(a backend.Announcement) string { return a.Category }),
		Degraded: degraded,
	}, nil
}

// Announcement finds one announcement by ID with its body sanitized.
func (s *contentService) Announcement(ctx context.Context, id string) (*backend.Announcement, error) {
	items, _, err := load(ctx, s.announcements)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(items, func(a backend.Announcement) bool { return string(a.ID) == id })
	if i < 0 {
		return nil, apperror.NewNotFound("announcement not found")
	}
	a := items[i]
	a.BodyHTML = sanitize.HTML(a.BodyHTML)
	return &a, nil
}

// Tools lists enabled tools grouped by category.
func (s *contentService) Tools(ctx context.Context, q ToolQuery, elevated bool) (*Listing[backend.Tool], error) {
	items, degraded, err := load(ctx, s.tools)
	if err != nil {
		return nil, err
	}

	visible := collection.Apply(items, collection.Query[backend.Tool]{
		Filters: []collection.Filter[backend.Tool]{
			collection.Where(func(t backend.Tool) bool { return t.Enabled && (elevated || !t.AdminOnly) }),
		},
	})
	out := collection.Apply(visible, collection.Query[backend.Tool]{
		Filters: []collection.Filter[backend.Tool]{
			collection.Equals(func(t backend.Tool) string { return t.Category }, q.Category),
		},
		Search: q.Search,
		SearchFields: func(t backend.Tool) []string {
			return []string{t.Name, t.Description, t.Category}
		},
		Compare: collection.Then(
			collection.ByText(func(t backend.Tool) string { return t.Category }),
			collection.ByText(func(t backend.Tool) string { return t.Name }),
		),
	})

	return &Listing[backend.Tool]{
		Items:    out,
		Total:    len(visible),
		Facets:   facets(visible, func(t backend.Tool) string { return t.Category }),
		Degraded: degraded,
	}, nil
}

// Stats fetches dashboard numbers for the signed-in user.
func (s *contentService) Stats(ctx context.Context, token string) (*Stats, error) {
	st, err := s.api.DashboardStats(ctx, token)
	if err == nil {
		return &Stats{DashboardStats: *st}, nil
	}
	if token != "" && apperror.IsUnauthorized(err) {
		return nil, err
	}

	s.logger.Warn("dashboard stats unavailable, counting collections", slog.Any("error", err))

	est := &Stats{Estimated: true}
	est.UpdatedAt = time.Now().UTC()
	if items, _, err := load(ctx, s.services); err == nil {
		est.Services = len(items)
	}
	if items, _, err := load(ctx, s.team); err == nil {
		est.TeamMembers = len(items)
	}
	if items, _, err := load(ctx, s.announcements); err == nil {
		est.Announcements = len(items)
	}
	if items, _, err := load(ctx, s.tools); err == nil {
		est.Tools = len(items)
	}
	return est, nil
}

// Refresh drops every cached collection.
func (s *contentService) Refresh(ctx context.Context) error {
	for _, inv := range []func(context.Context) error{
		s.services.Invalidate,
		s.team.Invalidate,
		s.announcements.Invalidate,
		s.tools.Invalidate,
	} {
		if err := inv(ctx); err != nil {
			return apperror.NewInternal(fmt.Errorf("invalidating content cache: %w", err))
		}
	}
	return nil
}

// announcementOrder maps a sort name to an ordering. The default keeps
// pinned items first, then higher priority, then the newest.
func announcementOrder(sort string) func(a, b backend.Announcement) int {
	newest := collection.Desc(collection.By(func(a backend.Announcement) int64 { return a.PublishedAt.Unix() }))

	switch sort {
	case SortNewest:
		return newest
	case SortOldest:
		return collection.By(func(a backend.Announcement) int64 { return a.PublishedAt.Unix() })
	case SortPriority:
		return collection.Then(
			collection.Desc(collection.By(func(a backend.Announcement) int { return a.Priority })),
			newest,
		)
	default:
		return collection.Then(
			collection.Desc(collection.By(func(a backend.Announcement) int { return boolInt(a.Pinned) })),
			collection.Desc(collection.By(func(a backend.Announcement) int { return a.Priority })),
			newest,
		)
	}
}

// facets returns the distinct non-empty values of field, sorted.
func facets[T any](items []T, field func(T) string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		v := strings.TrimSpace(field(it))
		key := collection.Normalize(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, collection.ByText(func(s string) string { return s }))
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
