// Package dashboard serves aggregate clinic statistics, optionally cached in
// Redis for a short TTL.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/clinicdesk/clinic/internal/domain/scheduling"
	"github.com/clinicdesk/clinic/internal/platform/auth"
)

// Source is implemented by *scheduling.Directory.
type Source interface {
	Overview(ctx context.Context) (*scheduling.Overview, error)
	WeeklyStats(ctx context.Context) (map[string]scheduling.DayBucket, error)
	MonthlyStats(ctx context.Context) (*scheduling.MonthlyStats, error)
	RecentActivity(ctx context.Context, limit int) ([]*scheduling.Appointment, error)
}

// Cache stores rendered payloads by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisCache stores payloads in Redis behind a circuit breaker so a dead
// Redis costs one fast failure per request instead of a dial timeout.
type RedisCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// Consecutive Redis failures before the breaker opens.
const breakerTripAfter = 3

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "dashboard-cache",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTripAfter
			},
		}),
	}
}

const cachePrefix = "clinic:dashboard:"

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.breaker.Execute(func() ([]byte, error) {
		b, err := c.client.Get(ctx, cachePrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return nil, false, err
	}
	return b, b != nil, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, cachePrefix+key, value, c.ttl).Err()
	})
	return err
}

type Handler struct {
	src    Source
	cache  Cache
	logger zerolog.Logger
}

// NewHandler builds the dashboard handler; cache may be nil.
func NewHandler(src Source, cache Cache, logger zerolog.Logger) *Handler {
	return &Handler{src: src, cache: cache, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.RequireStaff())
	g.GET("/overview", h.Overview)
	g.GET("/weekly", h.Weekly)
	g.GET("/monthly", h.Monthly)
	g.GET("/activity", h.Activity)
}

func (h *Handler) Overview(c echo.Context) error {
	return h.serve(c, "overview", func(ctx context.Context) (any, error) {
		return h.src.Overview(ctx)
	})
}

func (h *Handler) Weekly(c echo.Context) error {
	return h.serve(c, "weekly", func(ctx context.Context) (any, error) {
		return h.src.WeeklyStats(ctx)
	})
}

func (h *Handler) Monthly(c echo.Context) error {
	return h.serve(c, "monthly", func(ctx context.Context) (any, error) {
		return h.src.MonthlyStats(ctx)
	})
}

// Activity is never cached.
func (h *Handler) Activity(c echo.Context) error {
	limit := scheduling.DefaultActivityLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, scheduling.MaxUpcomingLimit)
	}
	items, err := h.src.RecentActivity(c.Request().Context(), limit)
	if err != nil {
		return h.internal(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) serve(c echo.Context, key string, load func(ctx context.Context) (any, error)) error {
	ctx := c.Request().Context()
	if h.cache != nil {
		if b, ok, err := h.cache.Get(ctx, key); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read")
		} else if ok {
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	v, err := load(ctx)
	if err != nil {
		return h.internal(c, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return h.internal(c, err)
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, b); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write")
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *Handler) internal(c echo.Context, err error) error {
	h.logger.Error().Err(err).Str("path", c.Path()).Msg("dashboard request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
