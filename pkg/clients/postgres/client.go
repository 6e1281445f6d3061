// Package postgres is the admin database client: a pgx connection pool with
// OpenTelemetry spans and errors classified into sserr codes.
//
// # Connection Management
//
// The client wraps pgxpool. Pooling, reconnection and replacement of broken
// connections are handled by the pool, so callers do not retry
// connection-level failures themselves. [NewClient] pings once so a bad
// address or credential fails at startup rather than on the first request.
//
// # Configuration
//
//	client, err := postgres.NewClient(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rows, err := client.Query(ctx, `SELECT * FROM "produtos" WHERE "ativo" = $1`, true)
//
// For tests, [NewFromPool] takes a pgxmock pool:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, &postgres.Config{Database: "admin"})
//
// # Errors
//
// Query, QueryRow and Exec failures go through [WrapError]: no rows becomes
// NF_001, a deadline becomes TIMEOUT_002 and a unique violation CONF_001.
// Constraint and type violations become VAL_001, unknown columns VAL_003 and
// anything else INT_002.
//
// # OpenTelemetry Tracing
//
// Every Query, QueryRow, Exec and Health call opens a span carrying
// db.system, db.name and db.statement. Statements are truncated to 100
// characters in spans; bound values are never recorded.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/admingate/pkg/clients/postgres"

// SQLSTATE classes mapped to client-facing codes.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateNotNullViolation    = "23502"
	sqlStateCheckViolation      = "23514"
	sqlStateInvalidText         = "22P02"
	sqlStateUndefinedColumn     = "42703"
)

// Pool is the subset of *pgxpool.Pool the client uses. pgxmock pools
// satisfy it too.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client wraps a [Pool] with tracing and error classification. It is safe
// for concurrent use.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens a pool and pings the server.
//
// Error codes:
//   - [sserr.CodeValidation]: bad configuration
//   - [sserr.CodeInternalConfiguration]: TLS setup failed
//   - [sserr.CodeUnavailableDependency]: the server is unreachable
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName

	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "postgres: failed to configure TLS")
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to connect to database")
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: databaseName(&cfg),
	}, nil
}

// NewFromPool wraps an existing pool, typically a pgxmock pool in tests. A
// nil cfg is treated as empty.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: databaseName(cfg),
	}
}

func databaseName(cfg *Config) string {
	if cfg.URI != "" {
		if u, err := url.Parse(cfg.URI); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	return cfg.Database
}

// Query runs a statement returning rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: query failed")
	}
	return rows, nil
}

// QueryRow runs a statement returning at most one row. Errors surface from
// Scan and are not classified; pass them through [WrapError].
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Health pings the server, bounded by [DefaultHealthTimeout] when ctx has
// no deadline. Failures carry [sserr.CodeUnavailableDependency].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

// finishSpan records err, if any, and ends span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// WrapError classifies a database error:
//
//   - pgx.ErrNoRows: [sserr.CodeNotFound]
//   - unique violation: [sserr.CodeConflict]
//   - foreign key, not-null, check or bad input syntax: [sserr.CodeValidation]
//   - unknown column: [sserr.CodeValidationFormat]
//   - deadline or cancellation: [sserr.CodeTimeoutDatabase]
//   - anything else: [sserr.CodeInternalDatabase]
//
// WrapError returns nil for a nil err.
func WrapError(err error, message string) *sserr.Error {
	return wrapError(err, message)
}

func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return sserr.Wrap(err, sserr.CodeNotFound, message)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return sserr.Wrap(err, sserr.CodeConflict, message).
				WithDetail("constraint", pgErr.ConstraintName)
		case sqlStateForeignKeyViolation, sqlStateNotNullViolation, sqlStateCheckViolation, sqlStateInvalidText:
			return sserr.Wrap(err, sserr.CodeValidation, message).
				WithDetail("sqlstate", pgErr.Code)
		case sqlStateUndefinedColumn:
			return sserr.Wrap(err, sserr.CodeValidationFormat, message)
		}
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
