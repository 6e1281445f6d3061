// Command admingate serves the admin CRUD API behind bearer-token
// administrator checks.
//
// Configuration is read from an optional YAML or JSON file (-config or
// ADMINGATE_CONFIG_FILE) and ADMINGATE_* environment variables:
//
//	ADMINGATE_AUTH_ISSUER_URL=https://project.example.co \
//	ADMINGATE_AUTH_ADMIN_EMAILS=owner@example.com \
//	ADMINGATE_POSTGRES_URI=postgres://admin@db/app \
//	ADMINGATE_REDIS_URI=redis://cache:6379/0 \
//	admingate
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/StricklySoft/admingate/pkg/adminapi"
	"github.com/StricklySoft/admingate/pkg/auth"
	"github.com/StricklySoft/admingate/pkg/clients/postgres"
	"github.com/StricklySoft/admingate/pkg/clients/redis"
	"github.com/StricklySoft/admingate/pkg/config"
	"github.com/StricklySoft/admingate/pkg/lifecycle"
	"github.com/StricklySoft/admingate/pkg/records"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv(envPrefix+"_CONFIG_FILE"), "path to a YAML or JSON config file")
	flag.Parse()

	cfg := config.MustLoad[ServerConfig](config.New().WithEnvPrefix(envPrefix).WithFile(*configPath))

	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("admingate: exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})).
		With("service", "admingate", "version", version)
}

// run serves until ctx is canceled or the listener fails.
func run(ctx context.Context, cfg ServerConfig, logger *slog.Logger) error {
	if err := cfg.Auth.Validate(); err != nil {
		return err
	}

	var cache *redis.Client
	opts := []auth.Option{auth.WithLogger(logger)}
	if cfg.Redis.Enabled() {
		var err error
		cache, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		opts = append(opts, auth.WithKeySetFetcher(newSharedFetcher(cfg, cache, logger)))
	}

	verifier, err := auth.NewVerifier(cfg.Auth, opts...)
	if err != nil {
		closeCache(cache)
		return err
	}
	logger.Info("admingate: verifier configured",
		"issuer", verifier.Issuer(),
		"jwks_url", cfg.Auth.KeySetURL(),
		"admins", verifier.Policy().Size(),
		"shared_key_set", cache != nil,
	)

	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		closeCache(cache)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	serveErr := make(chan error, 1)

	svc, err := lifecycle.NewServiceBuilder("admingate", version).
		WithLogger(logger).
		WithOnStart(func(ctx context.Context) error {
			// The cache also fills lazily, so an unreachable issuer at boot
			// is not fatal.
			if err := verifier.Warm(ctx); err != nil {
				logger.WarnContext(ctx, "admingate: key set warm-up failed", "error", err)
			}
			return nil
		}).
		WithOnStart(func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("admingate: listening", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
					cancel()
				}
			}()
			return nil
		}).
		WithOnStop(func(context.Context) error {
			db.Close()
			closeCache(cache)
			return nil
		}).
		WithOnStop(srv.Shutdown).
		Build()
	if err != nil {
		db.Close()
		closeCache(cache)
		return err
	}

	apiOpts := []adminapi.Option{
		adminapi.WithLogger(logger),
		adminapi.WithHealthCheck(db),
		adminapi.WithKeySetStats(verifier.KeySet()),
		adminapi.WithServiceState(svc),
	}
	if cache != nil {
		apiOpts = append(apiOpts, adminapi.WithCacheCheck(cache))
	}
	srv.Handler = adminapi.NewHandler(records.NewStore(db), verifier, apiOpts...)

	if err := svc.Run(ctx, cfg.ShutdownTimeout); err != nil {
		if svc.State() == lifecycle.StateFailed {
			db.Close()
			closeCache(cache)
		}
		return err
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// newSharedFetcher backs the issuer fetch with the Redis copy. The key is
// scoped by issuer.
func newSharedFetcher(cfg ServerConfig, cache *redis.Client, logger *slog.Logger) *auth.SharedKeySetFetcher {
	return auth.NewSharedKeySetFetcher(
		auth.NewHTTPKeySetFetcher(cfg.Auth.KeySetURL(), nil),
		cache,
		auth.SharedKeySetConfig{
			Key:    "admingate:jwks:" + cfg.Auth.Issuer(),
			TTL:    cfg.SharedKeySetTTL,
			Logger: logger,
		},
	)
}

func closeCache(cache *redis.Client) {
	if cache != nil {
		_ = cache.Close()
	}
}
