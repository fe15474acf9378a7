package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/aso-insight/platform/go/middleware"
)

// routeMounter is implemented by every domain handler.
type routeMounter interface {
	Routes(r chi.Router)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	CORSOrigins    []string
	Verify         platformauth.VerifyFunc
	Identities     platformmiddleware.IdentityEnsurer
	IdentityTTL    time.Duration
	DB             pinger
	Metrics        http.Handler
	Handlers       []routeMounter
}

func newRouter(deps routerDeps) http.Handler {
	root := chi.NewRouter()
	root.Use(
		chimw.RequestID,
		chimw.RealIP,
		platformlogging.RequestLogger(deps.Logger, "/healthz", "/readyz", "/metrics"),
		chimw.Recoverer,
		chimw.Timeout(deps.RequestTimeout),
		platformmiddleware.CORS(deps.CORSOrigins),
	)

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			platformlogging.FromRequest(r, deps.Logger).Warn("readiness ping failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		root.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	api := chi.NewRouter()
	api.Use(
		platformauth.JWT(deps.Verify, nil),
		platformmiddleware.RequestTrace,
		platformauth.RequireAuthenticated,
		platformmiddleware.IdentitySync(deps.Identities, 0, deps.IdentityTTL),
	)
	for _, h := range deps.Handlers {
		h.Routes(api)
	}

	root.Mount("/api/v1", api)
	return root
}
