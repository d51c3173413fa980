package router

import (
	"net/http"

	"github.com/BandwidthOnDemand/nsi-auth/internal/api/handler"
	m "github.com/BandwidthOnDemand/nsi-auth/internal/api/middleware"
	"github.com/BandwidthOnDemand/nsi-auth/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// SetupRouter limiter 可為 nil, 只套用在 /validate
func SetupRouter(validateHandler *handler.ValidateHandler, limiter ratelimit.Limiter, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// 全局中間件
	r.Use(m.RequestIdMiddleware)
	r.Use(middleware.RealIP)
	r.Use(m.LoggerMiddleware(logger))
	r.Use(m.RecoverMiddleware(logger))
	// HEAD 與 GET 相同處理
	r.Use(middleware.GetHead)

	r.With(ratelimit.Middleware(limiter)).Get("/validate", validateHandler.Validate)
	r.Get("/healthz", validateHandler.Health)

	chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug().Str("method", method).Str("route", route).Msg("route registered")
		return nil
	})
	return r
}
