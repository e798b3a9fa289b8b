package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the /health/ready view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// Pinger is satisfied by *pgxpool.Pool and pgxmock pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check probes one dependency; nil means healthy.
type Check func(ctx context.Context) error

// Readiness is the /health/ready response body.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Pool   *PoolStats        `json:"pool,omitempty"`
}

type statter interface {
	Stat() *pgxpool.Stat
}

func poolStats(p Pinger) *PoolStats {
	s, ok := p.(statter)
	if !ok {
		return nil
	}
	stat := s.Stat()
	if stat == nil {
		return nil
	}
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// ReadinessHandler pings the database plus any extra checks under one 5s
// deadline. Any failure turns the response into a 503.
func ReadinessHandler(pool Pinger, extra map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		r := Readiness{Status: "ready", Checks: map[string]string{}, Pool: poolStats(pool)}
		record := func(name string, err error) {
			if err != nil {
				r.Status = "unavailable"
				r.Checks[name] = err.Error()
				return
			}
			r.Checks[name] = "ok"
		}

		record("database", pool.Ping(ctx))
		for _, name := range names {
			record(name, extra[name](ctx))
		}

		if r.Status != "ready" {
			return c.JSON(http.StatusServiceUnavailable, r)
		}
		return c.JSON(http.StatusOK, r)
	}
}
