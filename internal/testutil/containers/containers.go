//go:build integration

// Package containers starts throwaway service containers for integration
// tests. It is compiled only with the "integration" build tag:
//
//	//go:build integration
//
//	pg, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer pg.Container.Terminate(ctx)
//
//	cfg := postgres.Config{URI: pg.ConnString, MaxConns: 5}
package containers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	// DefaultPostgresImage is the PostgreSQL image used by integration tests.
	DefaultPostgresImage = "docker.io/postgres:16-alpine"

	DefaultPostgresDatabase = "admingate_test"
	DefaultPostgresUser     = "testuser"
	DefaultPostgresPassword = "testpassword"

	DefaultRedisImage = "docker.io/redis:7-alpine"
)

// PostgresResult is a running PostgreSQL container. ConnString carries
// sslmode=disable since the container listens on localhost without TLS.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL container and waits until it accepts
// connections. The caller terminates the container.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}

	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// AdminSchema creates the tables served by the admin API: clientes,
// categorias and produtos, with the columns the record store writes.
const AdminSchema = `
CREATE TABLE IF NOT EXISTS clientes (
	id           BIGSERIAL PRIMARY KEY,
	nome         TEXT NOT NULL,
	slug         TEXT NOT NULL UNIQUE,
	whatsapp     TEXT,
	cidade       TEXT,
	tipo_negocio TEXT,
	endereco     TEXT,
	instagram    TEXT,
	logo_url     TEXT,
	email        TEXT,
	ativo        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS categorias (
	id           BIGSERIAL PRIMARY KEY,
	cliente_slug TEXT NOT NULL,
	nome         TEXT NOT NULL,
	ordem        INTEGER NOT NULL DEFAULT 0,
	ativo        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS produtos (
	id           BIGSERIAL PRIMARY KEY,
	cliente_slug TEXT NOT NULL,
	categoria_id BIGINT NOT NULL REFERENCES categorias(id),
	nome         TEXT NOT NULL,
	descricao    TEXT NOT NULL DEFAULT '',
	preco        NUMERIC(12,2) NOT NULL DEFAULT 0,
	imagem_url   TEXT NOT NULL DEFAULT '',
	ativo        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// ApplySchema runs schema against the database at connString.
func ApplySchema(ctx context.Context, connString, schema string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("containers: failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("containers: failed to apply schema: %w", err)
	}
	return nil
}

// RedisResult is a running Redis container without authentication.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts a Redis container. The caller terminates it.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}

	return &RedisResult{Container: container, ConnString: connStr}, nil
}
