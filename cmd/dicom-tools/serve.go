package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/dicom-tools/internal/audit"
	"github.com/ehr/dicom-tools/internal/config"
	"github.com/ehr/dicom-tools/internal/metrics"
	"github.com/ehr/dicom-tools/internal/platform/auth"
	"github.com/ehr/dicom-tools/internal/platform/blobstore"
	"github.com/ehr/dicom-tools/internal/platform/db"
	"github.com/ehr/dicom-tools/internal/platform/middleware"
	"github.com/ehr/dicom-tools/internal/presetstore"
	"github.com/ehr/dicom-tools/internal/session"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// server is everything the HTTP API needs.
type server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	checks   map[string]db.Check
	sessions *session.Service
	presets  *presetstore.Service
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checks := map[string]db.Check{}

	// Session files
	blobOpts := blobstore.Options{
		TTL:         cfg.SessionTTL,
		MaxFileSize: middleware.ParseSize(cfg.MaxUploadSize),
		OnExpire:    session.ExpiryHook(m, logger),
	}
	var blobs blobstore.BlobStore
	if cfg.RedisURL != "" {
		client, err := blobstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		blobs = blobstore.NewRedisBlobStore(client, blobOpts)
		checks["redis"] = redisCheck(client)
		logger.Info().Msg("session files stored in redis")
	} else {
		blobs = blobstore.NewInMemoryBlobStore(blobOpts)
		logger.Info().Msg("session files stored in memory")
	}

	// Presets and audit
	var repo presetstore.Repository = presetstore.NewMemoryRepo()
	var recorder audit.Recorder = audit.NewLogRecorder(logger)
	if cfg.DatabaseURL != "" {
		pool, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		checks["db"] = db.PoolCheck(pool)
		repo = presetstore.NewRepoPG(pool)
		recorder = audit.Multi(recorder, audit.NewPGRecorder(pool))
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set; presets are kept in memory and audit events only logged")
	}
	presets := presetstore.NewService(repo, logger)

	sessions := session.NewService(blobs, logger,
		session.WithPresets(presets),
		session.WithRecorder(recorder),
		session.WithMetrics(m),
	)

	e := (&server{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		checks:   checks,
		sessions: sessions,
		presets:  presets,
	}).routes()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, failed := <-errCh:
		if failed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func redisCheck(client *redis.Client) db.Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// routes builds the Echo instance with global middleware and the API groups.
func (s *server) routes() *echo.Echo {
	cfg := s.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(middleware.ParseSize(cfg.MaxBodySize), middleware.ParseSize(cfg.MaxUploadSize)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		s.logger.Warn().Msg("development mode without AUTH_SIGNING_KEY: every request acts as an admin")
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Rate limiting runs after auth so authenticated callers get their own bucket.
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Costs:             middleware.SessionCosts(),
		IdleTTL:           10 * time.Minute,
	}))

	e.GET("/health", db.HealthHandler(s.checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")
	session.NewHandler(s.sessions).RegisterRoutes(apiV1)
	presetstore.NewHandler(s.presets).RegisterRoutes(apiV1)
	return e
}

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(a.out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Fprintf(a.out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(a.out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})
	return cmd
}

func tokenCmd(a *app) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Issue an API token signed with AUTH_SIGNING_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     a.cfg.AuthIssuer,
				Audience:   a.cfg.AuthAudience,
				SigningKey: []byte(a.cfg.AuthSigningKey),
			}, args[0], roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, tok)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAnonymizer}, "Roles granted by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
