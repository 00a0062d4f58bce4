package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/config"
	"github.com/emhr/emhr/internal/domain/admin"
	"github.com/emhr/emhr/internal/domain/billing"
	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/domain/client"
	"github.com/emhr/emhr/internal/domain/diagnosis"
	"github.com/emhr/emhr/internal/domain/documents"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/domain/insurance"
	"github.com/emhr/emhr/internal/domain/notes"
	"github.com/emhr/emhr/internal/domain/scheduling"
	"github.com/emhr/emhr/internal/domain/treatment"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/blobstore"
	"github.com/emhr/emhr/internal/platform/cache"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/internal/platform/middleware"
	"github.com/emhr/emhr/internal/platform/notification"
	"github.com/emhr/emhr/internal/platform/phi"
)

const (
	requestTimeout  = 30 * time.Second
	defaultBodySize = "1M"
	uploadBodySize  = "26M"
)

// serverDeps are the long-lived resources the HTTP server is built from.
type serverDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	cache    *cache.Cache
	store    blobstore.BlobStore
	notifier notification.Notifier
	metrics  *metrics.Metrics
}

func newCipher(cfg *config.Config) (*phi.Encryptor, error) {
	key, err := cfg.PHIKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		key = phi.DevKey(cfg.SessionSecret)
	}
	return phi.NewEncryptor(key)
}

// newServer wires every domain service onto an echo instance.
func newServer(d *serverDeps) (*echo.Echo, error) {
	cfg, logger, pool := d.cfg, d.logger, d.pool

	cipher, err := newCipher(cfg)
	if err != nil {
		return nil, fmt.Errorf("phi cipher: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		HSTS:             cfg.IsProduction(),
		DownloadPrefixes: []string{"/api/v1/documents/"},
	}))
	e.Use(middleware.Metrics(d.metrics))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
		AllowCredentials: len(cfg.CORSOrigins) > 0 && cfg.CORSOrigins[0] != "*",
	}))
	e.Use(middleware.BodyLimit(defaultBodySize, uploadBodySize))
	e.Use(middleware.SanitizeWithLogger(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Authentication
	tokens := auth.NewTokenIssuer(cfg.JWTKey(), cfg.TokenTTL)
	sessions := auth.NewSessionManager([]byte(cfg.SessionSecret), cfg.SessionMaxAge, cfg.IsProduction())
	authn := &auth.Authenticator{
		Tokens:   tokens,
		Sessions: sessions,
		Revoked:  auth.NewRevocationList(),
		Skipper:  auth.AuthSkipper,
		Logger:   logger,
	}
	if cfg.IsDev() {
		authn.DevPrincipal = auth.DevAdmin(cfg.DefaultTenant)
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}
	e.GET("/metrics", d.metrics.Handler())

	// Access log
	accessLog := admin.NewAccessLog(admin.NewAccessLogRepoPG(pool), cfg.DefaultTenant, logger)

	// Rate limiting keys on the tenant, so it runs after authentication.
	authGroup := e.Group("/auth",
		authn.Middleware(),
		middleware.RateLimit(rateLimitCfg),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		authn.Refresh(),
	)
	apiV1 := e.Group("/api/v1",
		authn.Middleware(),
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(requestTimeout),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		authn.Refresh(),
		middleware.Audit(logger, accessLog),
	)

	tx := db.NewTxRunner(pool)

	// Identity
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), logger)
	authn.Users = identitySvc.CurrentAccess
	identity.NewHandler(identitySvc, sessions, tokens, authn).RegisterRoutes(authGroup, apiV1)

	// Care team
	careTeamSvc := careteam.NewService(careteam.NewMemberRepoPG(pool))
	careteam.NewHandler(careTeamSvc).RegisterRoutes(apiV1)

	// Clients
	clientSvc := client.NewService(client.NewClientRepoPG(pool), cipher, careTeamSvc, tx, logger)
	client.NewHandler(clientSvc).RegisterRoutes(apiV1)

	// Scheduling
	schedulingSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool), careTeamSvc, clientSvc, identitySvc,
		d.notifier, tx, d.metrics, logger,
	)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	// Diagnoses
	diagnosisSvc := diagnosis.NewService(diagnosis.NewDiagnosisRepoPG(pool), careTeamSvc, tx, d.metrics, logger)
	diagnosis.NewHandler(diagnosisSvc).RegisterRoutes(apiV1)

	// Clinical notes
	notesSvc := notes.NewService(
		notes.NewNoteRepoPG(pool), notes.NewDraftRepoPG(pool), careTeamSvc, identitySvc, diagnosisSvc,
		d.notifier, tx, d.metrics, logger,
	)
	notes.NewHandler(notesSvc).RegisterRoutes(apiV1)

	// Treatment plans
	treatmentSvc := treatment.NewService(treatment.NewGoalRepoPG(pool), treatment.NewInterventionRepoPG(pool), careTeamSvc, logger)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)

	// Insurance and billing
	insuranceSvc := insurance.NewService(insurance.NewRepoPG(pool), careTeamSvc, tx, logger)
	insurance.NewHandler(insuranceSvc).RegisterRoutes(apiV1)

	billingSvc := billing.NewService(billing.NewChargeRepoPG(pool), notesSvc, insuranceSvc, tx, logger)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Documents
	documentsSvc := documents.NewService(documents.NewRepoPG(pool), d.store, careTeamSvc, logger)
	documents.NewHandler(documentsSvc).RegisterRoutes(apiV1)

	// Administration
	adminSvc := admin.NewService(admin.NewFacilityRepoPG(pool), admin.NewListOptionRepoPG(pool), logger)
	settings := admin.NewSettings(admin.NewSettingRepoPG(pool), d.cache, logger)
	admin.NewHandler(adminSvc, settings, accessLog).RegisterRoutes(apiV1)

	return e, nil
}
