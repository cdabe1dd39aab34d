package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/tmhi/internal/middleware"
)

// NewRouter builds the simulator's HTTP handler.
//
// Routes:
//
//	GET  /login_web_app.cgi?nonce          → authHandler.Nonce
//	POST /login_web_app.cgi                → authHandler.Login
//	GET  /check_expire_web_app.cgi         → sessionHandler.CheckExpire
//	POST /reboot_web_app.cgi               → sessionHandler.Reboot (SessionAuth)
//	GET  /fastmile_radio_status_web_app.cgi → RadioStatus
//	GET  /metrics                          → Prometheus exposition of gatherer
//
// Middleware chain (applied in order):
//  1. RequestID and Recoverer
//  2. WithRequestLogging(logger)
//  3. AllowContentType(form) on POST routes
func NewRouter(
	authHandler *AuthHandler,
	sessionHandler *SessionHandler,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/login_web_app.cgi", authHandler.Nonce)
	r.Get("/check_expire_web_app.cgi", sessionHandler.CheckExpire)
	r.Get("/fastmile_radio_status_web_app.cgi", RadioStatus)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/x-www-form-urlencoded"))
		r.Post("/login_web_app.cgi", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(sessionHandler.SessionService, IsNoSession))
			r.Post("/reboot_web_app.cgi", sessionHandler.Reboot)
		})
	})

	return r
}
