// Package api wires together all HTTP routes for the lanehq backend.
//
// Route grouping:
//   - Reads of boards, roadmaps, feedback and published changelogs are public.
//     A bearer token is verified when present so scoped reads (drafts) work, but
//     it is never required to look at a board.
//   - Writes need a token carrying the matching scope. Tenant resolution runs
//     before the scope check, so an unknown organization or board answers 404
//     the same way for every caller.
//   - Snapshot streams (/roadmap/stream, /changelog/stream) are long-lived
//     Server-Sent Events responses; they share the rate limit budget of one
//     request per connection.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/api/admin"
	"github.com/lanehq/lanehq/internal/api/board"
	"github.com/lanehq/lanehq/internal/api/releases"
	"github.com/lanehq/lanehq/internal/auth"
	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/live"
	"github.com/lanehq/lanehq/internal/middleware"
	"github.com/lanehq/lanehq/internal/storage"
)

// Dependencies are the services the router exposes. cmd/server builds them
// once at startup. Verifier, Limiter, WriteLimiter, Audit, AuditLogs and
// Storage may be nil.
type Dependencies struct {
	DB      *sql.DB
	Storage storage.Storage
	Hub     *live.Hub

	Verifier     auth.Verifier
	Limiter      middleware.Limiter
	WriteLimiter middleware.Limiter
	Audit        middleware.AuditRecorder

	Resolver  middleware.TenantResolver
	Roadmap   board.RoadmapService
	Feedback  board.FeedbackService
	Changelog releases.ChangelogService
	Directory admin.Directory
	AuditLogs admin.AuditLogs

	Version string
	Logger  *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Storage, deps.Hub))
	router.GET("/version", versionHandler(deps.Version))

	adminHandlers := admin.NewHandlers(deps.Directory, deps.AuditLogs, logger)
	boardHandlers := board.NewHandlers(deps.Roadmap, deps.Feedback, deps.Hub, cfg.Live.HeartbeatInterval, logger)
	releaseHandlers := releases.NewHandlers(deps.Changelog, deps.Hub, cfg.Live.HeartbeatInterval, logger)

	// write throttles mutations on top of the shared budget
	write := func(c *gin.Context) { c.Next() }
	if deps.WriteLimiter != nil {
		write = middleware.RateLimitMiddleware(deps.WriteLimiter, logger)
	}

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.OptionalAuthMiddleware(deps.Verifier))
	if deps.Limiter != nil {
		apiV1.Use(middleware.RateLimitMiddleware(deps.Limiter, logger))
	}
	apiV1.Use(middleware.AuditMiddleware(deps.Audit, cfg.Audit))
	{
		apiV1.GET("/orgs", middleware.RequireScope(auth.ScopeOrganizationsWrite), adminHandlers.ListOrganizationsHandler())
		apiV1.POST("/orgs", middleware.RequireScope(auth.ScopeOrganizationsWrite), write, adminHandlers.CreateOrganizationHandler())

		org := apiV1.Group("/orgs/:org")
		org.Use(middleware.TenantMiddleware(deps.Resolver, logger))
		{
			org.GET("", adminHandlers.GetOrganizationHandler())
			org.GET("/boards", adminHandlers.ListBoardsHandler())
			org.POST("/boards", middleware.RequireScope(auth.ScopeOrganizationsWrite), write, adminHandlers.CreateBoardHandler())
			org.PUT("/notifications", middleware.RequireScope(auth.ScopeOrganizationsWrite), write, adminHandlers.SetNotificationURLHandler())
			org.GET("/audit-logs", middleware.RequireScope(auth.ScopeAuditRead), adminHandlers.ListAuditLogsHandler())

			// Changelog
			org.GET("/changelog", releaseHandlers.ChangelogHandler())
			org.GET("/changelog/stream", releaseHandlers.ChangelogStreamHandler())
			org.GET("/releases/:release", releaseHandlers.GetReleaseHandler())

			releasesGroup := org.Group("/releases")
			releasesGroup.Use(middleware.RequireScope(auth.ScopeReleasesWrite), write)
			{
				releasesGroup.POST("", releaseHandlers.CreateReleaseHandler())
				releasesGroup.PUT("/:release", releaseHandlers.UpdateReleaseHandler())
				releasesGroup.DELETE("/:release", releaseHandlers.DeleteReleaseHandler())
				releasesGroup.POST("/:release/publish", releaseHandlers.PublishReleaseHandler())
				releasesGroup.POST("/:release/unpublish", releaseHandlers.UnpublishReleaseHandler())
				releasesGroup.POST("/:release/items", releaseHandlers.AddItemHandler())
				releasesGroup.DELETE("/:release/items/:item", releaseHandlers.RemoveItemHandler())
			}

			// Boards
			boardGroup := org.Group("/boards/:board")
			{
				boardGroup.GET("", adminHandlers.ResolveBoardHandler())
				boardGroup.GET("/lanes", boardHandlers.LanesHandler())
				boardGroup.GET("/roadmap", boardHandlers.RoadmapHandler())
				boardGroup.GET("/roadmap/stream", boardHandlers.RoadmapStreamHandler())
				boardGroup.GET("/feedback", boardHandlers.ListFeedbackHandler())
				boardGroup.GET("/feedback/:item", boardHandlers.GetFeedbackHandler())
				boardGroup.GET("/feedback/:item/attachments", boardHandlers.ListAttachmentsHandler())
				boardGroup.GET("/feedback/:item/attachments/:attachment", boardHandlers.DownloadAttachmentHandler())

				feedbackWrite := boardGroup.Group("")
				feedbackWrite.Use(middleware.RequireScope(auth.ScopeFeedbackWrite), write)
				{
					feedbackWrite.POST("/feedback", boardHandlers.CreateFeedbackHandler())
					feedbackWrite.POST("/feedback/:item/vote", boardHandlers.UpvoteHandler())
					feedbackWrite.POST("/feedback/:item/attachments", boardHandlers.UploadAttachmentHandler())
				}

				roadmapWrite := boardGroup.Group("")
				roadmapWrite.Use(middleware.RequireScope(auth.ScopeRoadmapWrite), write)
				{
					roadmapWrite.POST("/roadmap/moves", boardHandlers.MoveHandler())
					roadmapWrite.PUT("/feedback/:item", boardHandlers.UpdateFeedbackHandler())
					roadmapWrite.PUT("/feedback/:item/status", boardHandlers.ChangeStatusHandler())
					roadmapWrite.DELETE("/feedback/:item", boardHandlers.ArchiveFeedbackHandler())
				}
			}
		}
	}

	return router
}

// healthCheckHandler reports whether the database answers
// GET /health
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if db == nil || db.PingContext(ctx) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler checks every dependency a request may touch
// GET /ready
func readinessHandler(db *sql.DB, blobs storage.Storage, hub *live.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string)
		notReady := func(check, msg string) {
			checks[check] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if db == nil || db.PingContext(ctx) != nil {
			notReady("database", "database not ready")
			return
		}
		checks["database"] = "healthy"

		// A known-absent key exercises credentials and connectivity without
		// creating anything.
		if blobs != nil {
			body, err := blobs.Open(ctx, "readiness-probe")
			if err == nil {
				body.Close()
			} else if !errors.Is(err, storage.ErrObjectNotFound) {
				notReady("storage", "storage backend not ready")
				return
			}
			checks["storage"] = "healthy"
		}

		if hub != nil {
			select {
			case <-hub.Ready():
				checks["live"] = "healthy"
			default:
				notReady("live", "live event subscription not ready")
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the build and API version
// GET /version
func versionHandler(version string) gin.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}
