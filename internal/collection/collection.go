// Package collection implements the remote collection used by every content
// page: load from the backend with retries, cache the result in Redis, fall
// back to the last good copy or to bundled items when the backend is down,
// then filter, search and sort in one declarative pass.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/meridianhq/corpweb/internal/apperror"
)

// Defaults used when no option overrides them.
const (
	defaultTTL      = 2 * time.Minute
	defaultStaleTTL = 24 * time.Hour
	defaultMaxTries = 3

	// defaultFetchTimeout bounds a shared fetch. It runs detached from the
	// caller that started it so one canceled request can't fail the rest.
	defaultFetchTimeout = 30 * time.Second
)

// Loader fetches the full collection from its source.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Result is the outcome of Load. Items is always usable; Fallback and Stale
// tell the page whether to show a "content may be out of date" notice.
type Result[T any] struct {
	Items []T

	// Fallback is true when Items are the bundled defaults.
	Fallback bool

	// Stale is true when Items are an expired cached copy.
	Stale bool

	// Err is the load error that forced Fallback or Stale, or the error
	// when nothing at all could be served.
	Err error
}

// Degraded reports whether the page should warn that content may be old.
func (r Result[T]) Degraded() bool {
	return r.Fallback || r.Stale
}

// Collection is a named, cached remote list of T.
type Collection[T any] struct {
	name     string
	load     Loader[T]
	cache    Cache
	ttl      time.Duration
	staleTTL time.Duration
	maxTries uint
	timeout  time.Duration
	fallback []T
	backOff  func() backoff.BackOff
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// Option configures a Collection.
type Option[T any] func(*Collection[T])

// WithCache stores results in c. Entries are fresh for ttl and kept as a
// stale copy for staleTTL.
func WithCache[T any](c Cache, ttl, staleTTL time.Duration) Option[T] {
	return func(col *Collection[T]) {
		col.cache = c
		if ttl > 0 {
			col.ttl = ttl
		}
		if staleTTL > col.ttl {
			col.staleTTL = staleTTL
		}
	}
}

// WithFallback sets the items served when the source and cache both fail.
func WithFallback[T any](items []T) Option[T] {
	return func(col *Collection[T]) {
		col.fallback = items
	}
}

// WithMaxTries bounds loader attempts per Load.
func WithMaxTries[T any](n uint) Option[T] {
	return func(col *Collection[T]) {
		if n > 0 {
			col.maxTries = n
		}
	}
}

// WithFetchTimeout bounds one shared fetch, retries included.
func WithFetchTimeout[T any](d time.Duration) Option[T] {
	return func(col *Collection[T]) {
		if d > 0 {
			col.timeout = d
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff[T any](f func() backoff.BackOff) Option[T] {
	return func(col *Collection[T]) {
		col.backOff = f
	}
}

// WithLogger sets the logger for load failures.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(col *Collection[T]) {
		col.logger = l
	}
}

// New creates a collection.
func New[T any](name string, load Loader[T], opts ...Option[T]) *Collection[T] {
	col := &Collection[T]{
		name:     name,
		load:     load,
		ttl:      defaultTTL,
		staleTTL: defaultStaleTTL,
		maxTries: defaultMaxTries,
		timeout:  defaultFetchTimeout,
		logger:   slog.Default(),
		now:      time.Now,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(col)
	}
	return col
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Load returns the collection. It never fails outright while a stale copy
// or fallback items exist; concurrent calls share one fetch.
func (c *Collection[T]) Load(ctx context.Context) Result[T] {
	var cached entry[T]
	hit := false
	if c.cache != nil {
		var err error
		hit, err = c.cache.Get(ctx, c.key(), &cached)
		if err != nil {
			c.logger.Warn("collection cache read failed",
				slog.String("collection", c.name),
				slog.Any("error", err),
			)
			hit = false
		}
		if hit && c.now().Sub(cached.FetchedAt) < c.ttl {
			return Result[T]{Items: cached.Items}
		}
	}

	v, err, _ := c.group.Do(c.name, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx)
	})
	if err == nil {
		return Result[T]{Items: v.([]T)}
	}

	c.logger.Warn("collection load failed",
		slog.String("collection", c.name),
		slog.Any("error", err),
	)

	if hit {
		return Result[T]{Items: cached.Items, Stale: true, Err: err}
	}
	if c.fallback != nil {
		return Result[T]{Items: c.fallback, Fallback: true, Err: err}
	}
	return Result[T]{Err: err}
}

// Invalidate drops the cached copy so the next Load hits the source.
func (c *Collection[T]) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, c.key())
}

// fetch runs the loader with retries and stores a successful result.
func (c *Collection[T]) fetch(ctx context.Context) ([]T, error) {
	items, err := backoff.Retry(ctx, func() ([]T, error) {
		items, err := c.load(ctx)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return items, err
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", c.name, err)
	}
	if items == nil {
		items = []T{}
	}

	if c.cache != nil {
		e := entry[T]{Items: items, FetchedAt: c.now().UTC()}
		if err := c.cache.Set(ctx, c.key(), e, c.staleTTL); err != nil {
			c.logger.Warn("collection cache write failed",
				slog.String("collection", c.name),
				slog.Any("error", err),
			)
		}
	}
	return items, nil
}

func (c *Collection[T]) key() string {
	return keyPrefix + c.name
}

// retryable reports whether another attempt could succeed. Client errors
// from the backend are final; network failures and timeouts are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	appErr := apperror.As(err)
	if appErr == nil {
		return true
	}
	switch appErr.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return appErr.Code >= 500
}
