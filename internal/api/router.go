// Package api wires together all HTTP routes for the diligence portal backend.
//
// Only health, version and the sign-in endpoints are public. Everything under
// /api/v1 that touches deal data requires a session token, a CSRF token on
// mutating requests, and the capability the route names. Services repeat the
// capability and deal-scope checks, so a route guard is never the only line
// of defence.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/diligence-portal/portal/internal/api/admin"
	"github.com/diligence-portal/portal/internal/api/portal"
	"github.com/diligence-portal/portal/internal/audit"
	"github.com/diligence-portal/portal/internal/auth"
	"github.com/diligence-portal/portal/internal/auth/oidc"
	"github.com/diligence-portal/portal/internal/config"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/jobs"
	"github.com/diligence-portal/portal/internal/middleware"
	"github.com/diligence-portal/portal/internal/services"
	"github.com/diligence-portal/portal/internal/storage"
	"github.com/diligence-portal/portal/internal/telemetry"
	"github.com/diligence-portal/portal/internal/validation"

	// Import storage backends to register them
	_ "github.com/diligence-portal/portal/internal/storage/azure"
	_ "github.com/diligence-portal/portal/internal/storage/gcs"
	_ "github.com/diligence-portal/portal/internal/storage/local"
	_ "github.com/diligence-portal/portal/internal/storage/s3"
)

// Version is reported by GET /version. cmd/server sets it at startup.
var Version = "dev"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	cancel      context.CancelFunc
	reconciler  *jobs.CleanupReconciler
	limiters    []*middleware.MemoryLimiter
	unsubscribe func()
	closers     []io.Closer
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reconciler != nil {
		bg.reconciler.Stop()
	}
	for _, l := range bg.limiters {
		l.Stop()
	}
	if bg.unsubscribe != nil {
		bg.unsubscribe()
	}
	if bg.cancel != nil {
		bg.cancel()
	}
	for _, c := range bg.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource during shutdown", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter builds every dependency from cfg and db, starts the background
// jobs and returns the configured router.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	ctx, cancel := context.WithCancel(context.Background())
	bg := &BackgroundServices{cancel: cancel}
	fail := func(err error) (*gin.Engine, *BackgroundServices, error) {
		bg.Shutdown()
		return nil, nil, err
	}

	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize storage backend: %w", err))
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend, "container", cfg.Storage.Container)

	// Repositories
	profileRepo := repositories.NewProfileRepository(db)
	dealRepo := repositories.NewDealRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	documentRepo := repositories.NewDocumentRepository(db)
	responseRepo := repositories.NewResponseRepository(db)
	cleanupRepo := repositories.NewCleanupRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Aggregate and catalog queries go through sqlx
	sqlxDB := sqlx.NewDb(db, "postgres")
	templateRepo := repositories.NewTemplateRepository(sqlxDB)
	statsRepo := repositories.NewStatsRepository(sqlxDB)

	// Audit logging
	auditLogger := audit.Disabled()
	if cfg.Audit.Enabled {
		var shipper audit.Shipper
		if len(cfg.Audit.Shippers) > 0 {
			ms, err := audit.NewMultiShipper(cfg.Audit.Shippers)
			if err != nil {
				return fail(fmt.Errorf("failed to initialize audit shippers: %w", err))
			}
			if ms.Len() > 0 {
				shipper = ms
				bg.closers = append(bg.closers, ms)
			}
		}
		auditLogger = audit.NewLogger(auditRepo, shipper, cfg.Audit.DispatchTimeout)
	}

	var redisClient redis.UniversalClient
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.closers = append(bg.closers, redisClient)
	}

	// Sessions
	var revocations auth.RevocationStore
	if cfg.Auth.SessionStore == "redis" {
		revocations = auth.NewRedisRevocationStore(redisClient, cfg.Auth.SessionTTL)
	} else {
		revocations = auth.NewMemoryRevocationStore()
	}
	sessions := auth.NewSessionProvider(auth.NewResolver(profileRepo), revocations, cfg.Auth.SessionTTL)
	bg.unsubscribe = sessions.Subscribe(auditLogger.SessionSubscriber())

	var csrfStore validation.CSRFStore
	if cfg.Security.CSRF.Store == "redis" {
		csrfStore = validation.NewRedisCSRFStore(redisClient, cfg.Security.CSRF.RotationInterval)
	} else {
		csrfStore = validation.NewMemoryCSRFStore(cfg.Security.CSRF.RotationInterval)
	}

	var identityProvider portal.IdentityProvider
	if cfg.Auth.OIDC.Enabled {
		discoverCtx, cancelDiscover := context.WithTimeout(ctx, 15*time.Second)
		p, err := oidc.NewProvider(discoverCtx, cfg.Auth.OIDC)
		cancelDiscover()
		if err != nil {
			return fail(err)
		}
		identityProvider = p
		slog.Info("single sign-on enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	// Services
	maxUpload := int64(cfg.Server.MaxUploadMB) << 20
	authService := services.NewAuthService(profileRepo, sessions, auditLogger)
	dealService := services.NewDealService(dealRepo, auditLogger)
	profileService := services.NewProfileService(profileRepo, dealRepo, auditLogger)
	requestService := services.NewRequestService(requestRepo, dealRepo, profileRepo, documentRepo, responseRepo, cleanupRepo, storageBackend, auditLogger)
	documentService := services.NewDocumentService(documentRepo, requestRepo, cleanupRepo, storageBackend, auditLogger, maxUpload, cfg.Storage.SignedURLTTL)
	responseService := services.NewResponseService(responseRepo, requestRepo, auditLogger)
	templateService := services.NewTemplateService(templateRepo, requestRepo, dealRepo, auditLogger)
	statsService := services.NewStatsService(statsRepo, dealRepo)

	// Background jobs
	bg.reconciler = jobs.NewCleanupReconciler(cleanupRepo, documentRepo, storageBackend, &cfg.Jobs)
	go bg.reconciler.Start(ctx)
	telemetry.StartDBStatsCollector(ctx, db)

	// Rate limiters
	limiters := newLimiters(cfg, redisClient, bg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	h := routeHandlers{
		session:   portal.NewSessionHandlers(cfg, authService, csrfStore, identityProvider, auditLogger),
		deals:     portal.NewDealHandlers(dealService, statsService, templateService),
		requests:  portal.NewRequestHandlers(requestService, responseService, profileService),
		documents: portal.NewDocumentHandlers(documentService, maxUpload),
		profiles:  admin.NewProfileHandlers(profileService),
		audit:     admin.NewAuditHandlers(db),
	}

	var protect []gin.HandlerFunc
	protect = append(protect, middleware.AuthMiddleware(sessions))
	if limiters.api != nil {
		protect = append(protect, middleware.RateLimitMiddleware(limiters.api))
	}
	if cfg.Security.CSRF.Enabled {
		protect = append(protect, middleware.CSRFMiddleware(csrfStore, auditLogger))
	}
	if cfg.Audit.LogForbidden {
		protect = append(protect, middleware.ForbiddenAuditMiddleware(auditLogger))
	}

	registerRoutes(router.Group("/api/v1"), h, limiters, protect)
	return router, bg, nil
}

type routeHandlers struct {
	session   *portal.SessionHandlers
	deals     *portal.DealHandlers
	requests  *portal.RequestHandlers
	documents *portal.DocumentHandlers
	profiles  *admin.ProfileHandlers
	audit     *admin.AuditHandlers
}

type routeLimiters struct {
	api, login, upload middleware.Limiter
}

// newLimiters builds the API, login and upload limiters on the configured
// backend. They are all nil when rate limiting is disabled.
func newLimiters(cfg *config.Config, client redis.UniversalClient, bg *BackgroundServices) routeLimiters {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return routeLimiters{}
	}

	apiCfg := middleware.DefaultRateLimitConfig()
	if rl.RequestsPerMinute > 0 {
		apiCfg.RequestsPerMinute = rl.RequestsPerMinute
	}
	if rl.Burst > 0 {
		apiCfg.BurstSize = rl.Burst
	}

	build := func(c middleware.RateLimitConfig, prefix string) middleware.Limiter {
		if rl.Backend == "redis" {
			return middleware.NewRedisLimiter(client, c, prefix)
		}
		ml := middleware.NewMemoryLimiter(c)
		bg.limiters = append(bg.limiters, ml)
		return ml
	}
	return routeLimiters{
		api:    build(apiCfg, "api"),
		login:  build(middleware.AuthRateLimitConfig(), "login"),
		upload: build(middleware.UploadRateLimitConfig(), "upload"),
	}
}

func limited(l middleware.Limiter, h ...gin.HandlerFunc) []gin.HandlerFunc {
	if l == nil {
		return h
	}
	return append([]gin.HandlerFunc{middleware.RateLimitMiddleware(l)}, h...)
}

// registerRoutes attaches the /api/v1 routes. protect is the middleware
// chain (auth, rate limit, CSRF, forbidden auditing) every non-public route
// runs through.
func registerRoutes(v1 *gin.RouterGroup, h routeHandlers, l routeLimiters, protect []gin.HandlerFunc) {
	can := middleware.RequireCapability
	dealAccess := middleware.RequireDealAccess("id")

	// Public sign-in
	v1.POST("/auth/login", limited(l.login, h.session.LoginHandler())...)
	v1.GET("/auth/sso/login", limited(l.login, h.session.SSOLoginHandler())...)
	v1.GET("/auth/sso/callback", limited(l.login, h.session.SSOCallbackHandler())...)

	p := v1.Group("", protect...)

	// Session
	p.POST("/auth/logout", h.session.LogoutHandler())
	p.GET("/auth/me", h.session.MeHandler())
	p.GET("/auth/csrf", h.session.CSRFHandler())
	p.GET("/dashboard", h.session.DashboardHandler())

	// Deals
	p.GET("/deals", h.deals.ListDealsHandler())
	p.POST("/deals", can(auth.CapManageRequests), h.deals.CreateDealHandler())
	p.GET("/deals/:id", dealAccess, h.deals.GetDealHandler())
	p.PUT("/deals/:id", can(auth.CapManageRequests), h.deals.UpdateDealHandler())
	p.GET("/deals/:id/stats", dealAccess, h.deals.DealStatsHandler())
	p.GET("/stats", can(auth.CapViewAllDeals), h.deals.PortfolioStatsHandler())

	// Templates
	p.GET("/templates", can(auth.CapManageRequests), h.deals.ListTemplatesHandler())
	p.POST("/deals/:id/apply-template", can(auth.CapManageRequests), h.deals.ApplyTemplateHandler())
	p.GET("/deals/:id/template-applications", can(auth.CapManageRequests), h.deals.TemplateApplicationsHandler())

	// Requests
	p.GET("/deals/:id/requests", dealAccess, h.requests.ListRequestsHandler())
	p.POST("/deals/:id/requests", can(auth.CapManageRequests), h.requests.CreateRequestHandler())
	p.GET("/deals/:id/assignees", can(auth.CapManageRequests), h.requests.AssigneesHandler())
	p.POST("/requests/bulk/assign", can(auth.CapManageRequests), h.requests.BulkAssignHandler())
	p.POST("/requests/bulk/status", can(auth.CapManageRequests), h.requests.BulkStatusHandler())
	p.GET("/requests/:id", h.requests.GetRequestHandler())
	p.PUT("/requests/:id", can(auth.CapManageRequests), h.requests.UpdateRequestHandler())
	p.DELETE("/requests/:id", can(auth.CapManageRequests), h.requests.DeleteRequestHandler())
	p.PUT("/requests/:id/assign", can(auth.CapManageRequests), h.requests.AssignRequestHandler())
	p.PUT("/requests/:id/response", can(auth.CapSubmitResponses), h.requests.SubmitResponseHandler())

	// Documents
	p.GET("/requests/:id/documents", h.documents.ListDocumentsHandler())
	p.POST("/requests/:id/documents", limited(l.upload, can(auth.CapUploadDocuments), h.documents.UploadDocumentHandler())...)
	p.GET("/documents/:id/download", can(auth.CapDownloadDocuments), h.documents.DownloadDocumentHandler())
	p.DELETE("/documents/:id", can(auth.CapDeleteDocuments), h.documents.DeleteDocumentHandler())

	// Administration
	p.GET("/profiles", can(auth.CapManageProfiles), h.profiles.ListProfilesHandler())
	p.POST("/profiles", can(auth.CapManageProfiles), h.profiles.CreateProfileHandler())
	p.PUT("/profiles/:id", can(auth.CapManageProfiles), h.profiles.UpdateProfileHandler())
	p.GET("/audit-events", can(auth.CapReadAudit), h.audit.ListAuditEventsHandler())
	p.GET("/audit-events/:id", can(auth.CapReadAudit), h.audit.GetAuditEventHandler())
}

// healthCheckHandler answers liveness checks.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
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

// readinessHandler also checks the storage backend so that a readiness gate
// fails when uploads and downloads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists on a known-absent path exercises credentials and connectivity
		// without creating anything.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured line per request. The handler set up
// by telemetry.SetupLogger decides between JSON and text output.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "<no-route>"
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_id", c.GetString(middleware.UserIDKey)),
		)
	}
}
