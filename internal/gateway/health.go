// ABOUTME: Liveness, readiness, and drain endpoints
// ABOUTME: Readiness fails while draining or when the store is unreachable

package gateway

import (
	"net/http"
)

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 when the gateway accepts traffic.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleDrain marks the gateway not ready so load balancers stop routing to it.
func (g *Gateway) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !g.isReady.Swap(false) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}
	g.logger.Info("gateway marked as not ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "draining"})
}

// handleUndrain marks the gateway ready again.
func (g *Gateway) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if g.isReady.Swap(true) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}
	g.logger.Info("gateway marked as ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
