package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	accesshandler "github.com/zenGate-Global/aso-insight/domains/access/be/handler"
	accessservice "github.com/zenGate-Global/aso-insight/domains/access/be/service"
	agencieshandler "github.com/zenGate-Global/aso-insight/domains/agencies/be/handler"
	agenciesrepo "github.com/zenGate-Global/aso-insight/domains/agencies/be/repo"
	agenciesservice "github.com/zenGate-Global/aso-insight/domains/agencies/be/service"
	appaccesshandler "github.com/zenGate-Global/aso-insight/domains/appaccess/be/handler"
	appaccessrepo "github.com/zenGate-Global/aso-insight/domains/appaccess/be/repo"
	appaccessservice "github.com/zenGate-Global/aso-insight/domains/appaccess/be/service"
	audithandler "github.com/zenGate-Global/aso-insight/domains/audit/be/handler"
	auditrepo "github.com/zenGate-Global/aso-insight/domains/audit/be/repo"
	auditservice "github.com/zenGate-Global/aso-insight/domains/audit/be/service"
	organizationshandler "github.com/zenGate-Global/aso-insight/domains/organizations/be/handler"
	organizationsrepo "github.com/zenGate-Global/aso-insight/domains/organizations/be/repo"
	organizationsservice "github.com/zenGate-Global/aso-insight/domains/organizations/be/service"
	roleshandler "github.com/zenGate-Global/aso-insight/domains/roles/be/handler"
	rolesrepo "github.com/zenGate-Global/aso-insight/domains/roles/be/repo"
	rolesservice "github.com/zenGate-Global/aso-insight/domains/roles/be/service"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/gcp"
	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

type config struct {
	Port                string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL         string        `env:"DATABASE_URL,required"`
	DatabaseMaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"20"`
	AuthProvider        string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // jwt | firebase | dev
	AuthJWTSecret       string        `env:"AUTH_JWT_SECRET"`
	AuthJWTIssuer       string        `env:"AUTH_JWT_ISSUER"`
	PermissionCacheTTL  time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"30s"`
	PermissionCacheSize int           `env:"PERMISSION_CACHE_SIZE" envDefault:"10000"`
	IdentitySyncTTL     time.Duration `env:"IDENTITY_SYNC_TTL" envDefault:"10m"`
	MetricsEnabled      bool          `env:"METRICS_ENABLED" envDefault:"true"`
	AgencySelfServe     bool          `env:"AGENCY_SELF_SERVE" envDefault:"false"`
	CORSOrigins         []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	Firebase            gcp.FirebaseConfig
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		MaxConns:        cfg.DatabaseMaxConns,
		ApplicationName: "aso-insight-api",
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	var (
		m           *metrics.Metrics
		metricsHTTP http.Handler
	)
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(registry)
		metricsHTTP = metrics.Handler(registry)
	}

	stores := mustOpenStores(ctx, pool, logger)

	evaluator := authz.NewEvaluator(stores.permissions, authz.Config{
		CacheSize: cfg.PermissionCacheSize,
		CacheTTL:  cfg.PermissionCacheTTL,
		Metrics:   m,
	})
	roleChanges, err := persistence.NewRoleChangeListener(pool, evaluator, logger)
	if err != nil {
		logger.Fatal("init role change listener", zap.Error(err))
	}
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go roleChanges.Run(listenCtx)

	recorder := auditlog.NewRecorder(stores.audit, logger, m)
	respond := problem.NewResponder(logger, m)

	settingsValidator, err := persistence.NewSettingsValidator()
	if err != nil {
		logger.Fatal("init settings validator", zap.Error(err))
	}

	organizationService := organizationsservice.New(
		organizationsrepo.NewPostgresRepository(stores.organizations),
		evaluator,
		settingsValidator,
		recorder,
	)
	roleService := rolesservice.New(
		rolesrepo.NewPostgresRepository(stores.roles, stores.identities),
		evaluator,
		recorder,
	)
	agencyService := agenciesservice.New(
		agenciesrepo.NewPostgresRepository(stores.agencies),
		evaluator,
		recorder,
		agenciesservice.Config{SelfServe: cfg.AgencySelfServe},
	)
	appAccessService := appaccessservice.New(
		appaccessrepo.NewPostgresRepository(stores.apps),
		evaluator,
		recorder,
	)
	auditService := auditservice.New(auditrepo.NewPostgresRepository(stores.audit), evaluator)
	accessService := accessservice.New(evaluator, stores.organizations, recorder)

	handler := newRouter(routerDeps{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		Verify:         buildVerifier(ctx, cfg, logger),
		Identities:     stores.identities,
		IdentityTTL:    cfg.IdentitySyncTTL,
		DB:             pool,
		Metrics:        metricsHTTP,
		Handlers: []routeMounter{
			organizationshandler.New(organizationService, respond),
			roleshandler.New(roleService, respond),
			agencieshandler.New(agencyService, respond),
			appaccesshandler.New(appAccessService, respond),
			audithandler.New(auditService, respond),
			accesshandler.New(accessService, respond),
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.Bool("agency_self_serve", cfg.AgencySelfServe),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	stopListening()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

type storeSet struct {
	organizations *persistence.OrganizationStore
	roles         *persistence.RoleStore
	identities    *persistence.IdentityStore
	agencies      *persistence.AgencyStore
	apps          *persistence.AppAccessStore
	audit         *persistence.AuditStore
	permissions   *persistence.PermissionStore
}

func mustOpenStores(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) storeSet {
	var (
		s   storeSet
		err error
	)
	if s.organizations, err = persistence.NewOrganizationStore(ctx, pool); err != nil {
		logger.Fatal("init organization store", zap.Error(err))
	}
	if s.roles, err = persistence.NewRoleStore(ctx, pool); err != nil {
		logger.Fatal("init role store", zap.Error(err))
	}
	if s.identities, err = persistence.NewIdentityStore(ctx, pool); err != nil {
		logger.Fatal("init identity store", zap.Error(err))
	}
	if s.agencies, err = persistence.NewAgencyStore(ctx, pool); err != nil {
		logger.Fatal("init agency store", zap.Error(err))
	}
	if s.apps, err = persistence.NewAppAccessStore(ctx, pool); err != nil {
		logger.Fatal("init app access store", zap.Error(err))
	}
	if s.audit, err = persistence.NewAuditStore(ctx, pool); err != nil {
		logger.Fatal("init audit store", zap.Error(err))
	}
	if s.permissions, err = persistence.NewPermissionStore(ctx, pool); err != nil {
		logger.Fatal("init permission store", zap.Error(err))
	}
	return s
}
