package content

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/collection"
)

// --- Mock API ---

// mockContentAPI implements backend.ContentAPI. Nil functions fail like an
// unreachable backend.
type mockContentAPI struct {
	servicesFn      func(ctx context.Context, token string) ([]backend.Service, error)
	teamFn          func(ctx context.Context, token string) ([]backend.TeamMember, error)
	announcementsFn func(ctx context.Context, token string) ([]backend.Announcement, error)
	toolsFn         func(ctx context.Context, token string) ([]backend.Tool, error)
	statsFn         func(ctx context.Context, token string) (*backend.DashboardStats, error)
}

var errDown = apperror.NewNetwork(errors.New("connection refused"))

func (m *mockContentAPI) Services(ctx context.Context, token string) ([]backend.Service, error) {
	if m.servicesFn != nil {
		return m.servicesFn(ctx, token)
	}
	return nil, errDown
}

func (m *mockContentAPI) Team(ctx context.Context, token string) ([]backend.TeamMember, error) {
	if m.teamFn != nil {
		return m.teamFn(ctx, token)
	}
	return nil, errDown
}

func (m *mockContentAPI) Announcements(ctx context.Context, token string) ([]backend.Announcement, error) {
	if m.announcementsFn != nil {
		return m.announcementsFn(ctx, token)
	}
	return nil, errDown
}

func (m *mockContentAPI) Tools(ctx context.Context, token string) ([]backend.Tool, error) {
	if m.toolsFn != nil {
		return m.toolsFn(ctx, token)
	}
	return nil, errDown
}

func (m *mockContentAPI) DashboardStats(ctx context.Context, token string) (*backend.DashboardStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, token)
	}
	return nil, errDown
}

// --- Fixtures ---

var (
	day = 24 * time.Hour
	t0  = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	testTeam = []backend.TeamMember{
		{ID: "3", Name: "Zoë Park", Title: "Designer", Department: "Design", Order: 2},
		{ID: "1", Name: "Renée Laurent", Title: "CEO", Department: "Leadership", Order: 1},
		{ID: "2", Name: "Ana Ruiz", Title: "Engineer", Department: "Engineering", Bio: "Builds the café ordering app", Order: 2},
		{ID: "4", Name: "Bo Chen", Title: "Engineer", Department: "engineering", Order: 3},
	}

	testNews = []backend.Announcement{
		{ID: "old", Title: "Old news", Category: "news", Priority: 1, PublishedAt: t0.Add(-10 * day)},
		{ID: "pin", Title: "Pinned welcome", Category: "news", Priority: 0, Pinned: true, PublishedAt: t0.Add(-30 * day)},
		{ID: "urgent", Title: "Maintenance tonight", Category: "maintenance", Priority: 5, PublishedAt: t0.Add(-2 * day)},
		{ID: "new", Title: "New office", Category: "news", Priority: 1, PublishedAt: t0, BodyHTML: `<p>We moved!</p><script>alert(1)</script>`},
	}

	testTools = []backend.Tool{
		{ID: "1", Name: "Wiki", Category: "Docs", Enabled: true},
		{ID: "2", Name: "Admin Console", Category: "Admin", Enabled: true, AdminOnly: true},
		{ID: "3", Name: "Legacy CRM", Category: "Sales", Enabled: false},
		{ID: "4", Name: "Chat", Category: "Comms", Enabled: true},
	}
)

func healthyAPI() *mockContentAPI {
	return &mockContentAPI{
		servicesFn: func(context.Context, string) ([]backend.Service, error) {
			return []backend.Service{{Slug: "cloud", Name: "Cloud"}, {Slug: "data", Name: "Data"}}, nil
		},
		teamFn:          func(context.Context, string) ([]backend.TeamMember, error) { return testTeam, nil },
		announcementsFn: func(context.Context, string) ([]backend.Announcement, error) { return testNews, nil },
		toolsFn:         func(context.Context, string) ([]backend.Tool, error) { return testTools, nil },
	}
}

func newTestContentService(t *testing.T, api backend.ContentAPI, cache collection.Cache) ContentService {
	t.Helper()
	svc, err := NewContentService(api, cache, Config{CacheTTL: time.Minute, MaxTries: 1})
	require.NoError(t, err)
	return svc
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

// --- Fallback ---

func TestFallbackContentParses(t *testing.T) {
	svc := newTestContentService(t, &mockContentAPI{}, nil)
	ctx := context.Background()

	services, err := svc.Services(ctx)
	require.NoError(t, err)
	assert.True(t, services.Degraded)
	assert.NotEmpty(t, services.Items)

	news, err := svc.Announcements(ctx, AnnouncementQuery{})
	require.NoError(t, err)
	require.NotEmpty(t, news.Items)
	assert.True(t, news.Items[0].Pinned, "pinned fallback announcement leads")
	assert.False(t, news.Items[0].PublishedAt.IsZero())

	tools, err := svc.Tools(ctx, ToolQuery{}, false)
	require.NoError(t, err)
	for _, tool := range tools.Items {
		assert.False(t, tool.AdminOnly, "admin tools hidden from regular sessions")
	}
}

func TestLoadsAnonymouslyAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	var calls atomic.Int32
	api := healthyAPI()
	api.servicesFn = func(_ context.Context, token string) ([]backend.Service, error) {
		calls.Add(1)
		assert.Empty(t, token, "public collections never carry a session token")
		return []backend.Service{{Slug: "cloud", Name: "Cloud"}}, nil
	}
	svc := newTestContentService(t, api, collection.NewRedisCache(rdb))

	for range 3 {
		list, err := svc.Services(context.Background())
		require.NoError(t, err)
		assert.False(t, list.Degraded)
	}
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, svc.Refresh(context.Background()))
	_, err := svc.Services(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

// --- Services ---

func TestService_BySlug(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)

	got, err := svc.Service(context.Background(), " Cloud ")
	require.NoError(t, err)
	assert.Equal(t, "Cloud", got.Name)

	_, err = svc.Service(context.Background(), "missing")
	assert.Equal(t, http.StatusNotFound, apperror.SafeCode(err))
}

// --- Team ---

func TestTeam(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)
	name := func(m backend.TeamMember) string { return m.Name }

	tests := []struct {
		name string
		q    TeamQuery
		want []string
	}{
		{"ordered by order then name", TeamQuery{}, []string{"Renée Laurent", "Ana Ruiz", "Zoë Park", "Bo Chen"}},
		{"department ignores case", TeamQuery{Department: "ENGINEERING"}, []string{"Ana Ruiz", "Bo Chen"}},
		{"all departments", TeamQuery{Department: "all"}, []string{"Renée Laurent", "Ana Ruiz", "Zoë Park", "Bo Chen"}},
		{"search ignores accents", TeamQuery{Search: "renee"}, []string{"Renée Laurent"}},
		{"search matches bio", TeamQuery{Search: "cafe app"}, []string{"Ana Ruiz"}},
		{"no match", TeamQuery{Search: "nobody"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := svc.Team(context.Background(), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list.Items, name))
			assert.Equal(t, len(testTeam), list.Total)
		})
	}

	list, err := svc.Team(context.Background(), TeamQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Design", "Engineering", "Leadership"}, list.Facets)
}

// --- Announcements ---

func TestAnnouncements_Sort(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)
	id := func(a backend.Announcement) string { return string(a.ID) }

	tests := []struct {
		sort string
		want []string
	}{
		{"", []string{"pin", "urgent", "new", "old"}},
		{SortFeatured, []string{"pin", "urgent", "new", "old"}},
		{SortNewest, []string{"new", "urgent", "old", "pin"}},
		{SortOldest, []string{"pin", "old", "urgent", "new"}},
		{SortPriority, []string{"urgent", "new", "old", "pin"}},
	}
	for _, tt := range tests {
		list, err := svc.Announcements(context.Background(), AnnouncementQuery{Sort: tt.sort})
		require.NoError(t, err)
		assert.Equal(t, tt.want, ids(list.Items, id), "sort %q", tt.sort)
	}
}

func TestAnnouncements_FilterSearchLimit(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)
	id := func(a backend.Announcement) string { return string(a.ID) }

	list, err := svc.Announcements(context.Background(), AnnouncementQuery{Category: "news", Sort: SortNewest, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(list.Items, id))
	assert.Equal(t, []string{"maintenance", "news"}, list.Facets)

	list, err = svc.Announcements(context.Background(), AnnouncementQuery{Search: "office"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "We moved!", list.Items[0].Summary, "summary derived from the body")
}

func TestAnnouncement_Sanitized(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)

	a, err := svc.Announcement(context.Background(), "new")
	require.NoError(t, err)
	assert.Contains(t, a.BodyHTML, "<p>We moved!</p>")
	assert.NotContains(t, a.BodyHTML, "<script")

	_, err = svc.Announcement(context.Background(), "nope")
	assert.Equal(t, http.StatusNotFound, apperror.SafeCode(err))
}

// --- Tools ---

func TestTools(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)
	name := func(tool backend.Tool) string { return tool.Name }

	list, err := svc.Tools(context.Background(), ToolQuery{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chat", "Wiki"}, ids(list.Items, name))
	assert.Equal(t, 2, list.Total)

	list, err = svc.Tools(context.Background(), ToolQuery{}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin Console", "Chat", "Wiki"}, ids(list.Items, name))
	assert.Equal(t, []string{"Admin", "Comms", "Docs"}, list.Facets)

	list, err = svc.Tools(context.Background(), ToolQuery{Category: "docs"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wiki"}, ids(list.Items, name))
}

// --- Stats ---

func TestStats_WithToken(t *testing.T) {
	api := healthyAPI()
	api.statsFn = func(_ context.Context, token string) (*backend.DashboardStats, error) {
		assert.Equal(t, "tok", token)
		return &backend.DashboardStats{ActiveUsers: 42}, nil
	}
	svc := newTestContentService(t, api, nil)

	st, err := svc.Stats(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, st.Estimated)
	assert.Equal(t, 42, st.ActiveUsers)
}

func TestStats_TokenRejected(t *testing.T) {
	api := healthyAPI()
	api.statsFn = func(context.Context, string) (*backend.DashboardStats, error) {
		return nil, apperror.NewUnauthorized("your session has expired")
	}
	svc := newTestContentService(t, api, nil)

	_, err := svc.Stats(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperror.SafeCode(err))
}

func TestStats_EstimatedWhenUnavailable(t *testing.T) {
	svc := newTestContentService(t, healthyAPI(), nil)

	st, err := svc.Stats(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, st.Estimated)
	assert.Equal(t, 2, st.Services)
	assert.Equal(t, len(testTeam), st.TeamMembers)
	assert.Equal(t, len(testNews), st.Announcements)
	assert.Equal(t, len(testTools), st.Tools)
}
