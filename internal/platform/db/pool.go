package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// Querier is the subset of pgx shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is a Querier that can also open transactions.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PoolConfig holds the connection settings for NewPool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// NewPool connects and pings. Queries are traced to logger at debug level;
// failures are logged at error level regardless.
func NewPool(ctx context.Context, pc PoolConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = pc.MaxConns
	cfg.MinConns = pc.MinConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger{logger: logger.With().Str("component", "pgx").Logger()},
		LogLevel: traceLevel(logger.GetLevel()),
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func traceLevel(l zerolog.Level) tracelog.LogLevel {
	switch {
	case l <= zerolog.TraceLevel:
		return tracelog.LogLevelTrace
	case l == zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	default:
		return tracelog.LogLevelError
	}
}

type queryLogger struct {
	logger zerolog.Logger
}

func (q queryLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var evt *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		evt = q.logger.Error()
	case tracelog.LogLevelWarn:
		evt = q.logger.Warn()
	case tracelog.LogLevelInfo:
		evt = q.logger.Info()
	case tracelog.LogLevelDebug:
		evt = q.logger.Debug()
	default:
		evt = q.logger.Trace()
	}
	// Bound arguments may hold patient data.
	delete(data, "args")
	evt.Fields(data).Msg(msg)
}
