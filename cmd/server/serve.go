package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the profiling port, never on the gin router
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lanehq/lanehq/internal/api"
	"github.com/lanehq/lanehq/internal/audit"
	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/auth/oidc"
	"github.com/lanehq/lanehq/internal/changelog"
	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/crypto"
	"github.com/lanehq/lanehq/internal/db"
	"github.com/lanehq/lanehq/internal/db/repositories"
	"github.com/lanehq/lanehq/internal/feedback"
	"github.com/lanehq/lanehq/internal/jobs"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/middleware"
	"github.com/lanehq/lanehq/internal/notify"
	"github.com/lanehq/lanehq/internal/roadmap"
	"github.com/lanehq/lanehq/internal/storage"
	_ "github.com/lanehq/lanehq/internal/storage/local"
	_ "github.com/lanehq/lanehq/internal/storage/s3"
	"github.com/lanehq/lanehq/internal/telemetry"
	"github.com/lanehq/lanehq/internal/tenancy"
)

const shutdownTimeout = 10 * time.Second

func serve(parent context.Context, cfg *config.Config) error {
	logger := telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if enabled, err := telemetry.InitSentry(cfg.Telemetry.Sentry, version); err != nil {
		logger.Warn("error reporting disabled", "error", err)
	} else if enabled {
		logger.Info("error reporting enabled", "environment", cfg.Telemetry.Sentry.Environment)
		defer telemetry.FlushSentry(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database.DB)

	v, dirty, err := db.Migrate(database.DB, "up")
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database schema ready", "version", v, "dirty", dirty)

	rdb, err := db.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("redis not configured; live events and rate limits are local to this instance")
	}

	blobs, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("attachment storage ready", "backend", cfg.Storage.DefaultBackend)

	verifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	hub := live.NewHub(rdb, cfg.Live.ChannelPrefix, logger)
	app, err := buildServices(cfg, database, blobs, hub, logger)
	if err != nil {
		return err
	}
	defer app.close()

	limiter, writeLimiter := buildLimiters(cfg, rdb)

	deps := api.Dependencies{
		DB:           database.DB,
		Storage:      blobs,
		Hub:          hub,
		Verifier:     verifier,
		Limiter:      limiter,
		WriteLimiter: writeLimiter,
		Resolver:     app.resolver,
		Roadmap:      app.roadmap,
		Feedback:     app.feedback,
		Changelog:    app.changelog,
		Directory:    app.directory,
		AuditLogs:    app.auditLogs,
		Version:      version,
		Logger:       logger,
	}
	if app.recorder != nil {
		deps.Audit = app.recorder
	}
	router := api.NewRouter(cfg, deps)

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })

	compactor := jobs.NewLaneCompactor(app.roadmap, cfg.Roadmap, logger)
	g.Go(func() error {
		compactor.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL, "tls", cfg.Security.TLS.Enabled)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startSideServer(gctx, g, "metrics", fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort), mux, logger)
	}
	if cfg.Telemetry.Profiling.Enabled {
		// net/http/pprof registers on http.DefaultServeMux at init time.
		startSideServer(gctx, g, "pprof", fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port), http.DefaultServeMux, logger)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		telemetry.CaptureError(err, "server")
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// startSideServer runs an internal listener that is closed with the group.
func startSideServer(ctx context.Context, g *errgroup.Group, name, addr string, handler http.Handler, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting "+name+" server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Side listeners never take the API down.
			logger.Error(name+" server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func buildVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	var chain auth.ChainVerifier

	if cfg.Auth.JWT.Secret != "" {
		hmac, err := auth.NewHMACVerifier(cfg.Auth.JWT)
		if err != nil {
			return nil, fmt.Errorf("security configuration error: %w", err)
		}
		chain = append(chain, hmac)
	}
	if cfg.Auth.OIDC.Enabled {
		v, err := oidc.NewVerifier(ctx, cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
		}
		chain = append(chain, v)
	}

	if len(chain) == 0 {
		slog.Warn("no token verifier configured; every request is anonymous and all writes are refused")
		return nil, nil
	}
	return chain, nil
}

func buildLimiters(cfg *config.Config, rdb *redis.Client) (middleware.Limiter, middleware.Limiter) {
	if !cfg.Security.RateLimiting.Enabled {
		return nil, nil
	}
	base := middleware.RateLimitConfigFrom(cfg.Security.RateLimiting)
	write := middleware.WriteRateLimitConfig(base)
	if rdb != nil {
		prefix := cfg.Live.ChannelPrefix + ":ratelimit:"
		return middleware.NewRedisLimiter(rdb, base, prefix), middleware.NewRedisLimiter(rdb, write, prefix+"write:")
	}
	return middleware.NewRateLimiter(base), middleware.NewRateLimiter(write)
}

// services holds the domain services built over one database handle.
type services struct {
	resolver  *tenancy.Resolver
	directory *tenancy.Directory
	roadmap   *roadmap.Service
	feedback  *feedback.Service
	changelog *changelog.Service
	recorder  *audit.Recorder
	auditLogs *repositories.AuditRepository
}

func (s *services) close() {
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			slog.Error("failed to close audit recorder", "error", err)
		}
	}
}

func buildServices(cfg *config.Config, database *sqlx.DB, blobs storage.Storage, hub *live.Hub, logger *slog.Logger) (*services, error) {
	orgRepo := repositories.NewOrganizationRepository(database)
	boardRepo := repositories.NewBoardRepository(database)
	feedbackRepo := repositories.NewFeedbackRepository(database)
	attachmentRepo := repositories.NewAttachmentRepository(database)
	releaseRepo := repositories.NewReleaseRepository(database)
	auditRepo := repositories.NewAuditRepository(database)

	lanes, err := roadmap.NewLanes(cfg.Roadmap.Lanes)
	if err != nil {
		return nil, fmt.Errorf("invalid roadmap lanes: %w", err)
	}

	// Notification URLs are sealed at rest; without a key they cannot be stored
	// or announced to.
	var (
		sealer    tenancy.Sealer
		announcer changelog.Announcer
	)
	key, err := crypto.ParseKey(config.EncryptionKey())
	switch {
	case err == nil:
		sealer = key
		announcer = notify.NewAnnouncer(orgRepo, key, changelog.NewRenderer(), cfg.Notifications, cfg.Server.GetPublicURL(), logger)
	case errors.Is(err, crypto.ErrNoKey):
		logger.Warn("ENCRYPTION_KEY not set; release notifications are disabled")
	default:
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}

	cl := changelog.NewService(releaseRepo, feedbackRepo, hub, announcer, cfg.Changelog.CacheTTL, logger)
	rm := roadmap.NewService(feedbackRepo, hub, lanes, logger, roadmap.WithChangelog(cl))

	var recorder *audit.Recorder
	if cfg.Audit.Enabled {
		recorder, err = audit.NewRecorder(auditRepo, cfg.Audit, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit log: %w", err)
		}
	}

	return &services{
		resolver:  tenancy.NewResolver(orgRepo, boardRepo),
		directory: tenancy.NewDirectory(orgRepo, boardRepo, sealer, notify.ValidateURL, logger),
		roadmap:   rm,
		feedback: feedback.NewService(feedbackRepo, attachmentRepo, blobs, rm, hub, feedback.Options{
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
			Changelog:      cl,
		}, logger),
		changelog: cl,
		recorder:  recorder,
		auditLogs: auditRepo,
	}, nil
}
