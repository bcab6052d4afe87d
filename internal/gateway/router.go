// ABOUTME: HTTP route table for the gateway
// ABOUTME: Health probes are public; the provisioning API and event stream require a bearer credential

package gateway

import (
	"net/http"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/devicefarm-gateway/internal/auth"
)

// maxBodySize bounds request bodies; public keys are a few hundred bytes.
const maxBodySize = 64 * 1024

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(g.httpLogger)

	// Health endpoints - no auth required
	mux.Get("/health", g.handleHealth)
	mux.Get("/health/ready", g.handleReady)

	mux.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.authenticator))

		r.Get("/events", g.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(g.config.Server.RequestTimeout))

			r.Get("/me", g.handleMe)

			// Admin gating for these happens inside the service so each
			// operation reports its own denial message.
			r.Route("/admin", func(r chi.Router) {
				r.Post("/access-tokens", g.handleCreateAccessToken)
				r.Delete("/access-tokens", g.handleDeleteAccessToken)
				r.Post("/adb-keys", g.handleAddAdbKey)
				r.Delete("/adb-keys", g.handleDeleteAdbKey)
			})
		})
	})

	mux.Route("/admin", func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.authenticator))
		r.Use(auth.RequireAdminHTTP(g.policy))
		r.Post("/drain", g.handleDrain)
		r.Post("/undrain", g.handleUndrain)
	})

	return mux
}

// httpLogger logs each request. The event stream is skipped: the logging
// writer hides http.Flusher.
func (g *Gateway) httpLogger(next http.Handler) http.Handler {
	logged := httplogger.LoggingMiddlewareSlog(g.logger, next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == eventsPath {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}
