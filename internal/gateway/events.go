// ABOUTME: Server-sent event stream of bus notifications for the caller's group
// ABOUTME: Device providers hold this open to learn when authorized adb keys change

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/bus"
)

// eventsPath is the streaming route. It bypasses the request logger and the
// request timeout because the response never completes on its own.
const eventsPath = "/api/v1/events"

// keepaliveInterval spaces SSE comments that keep idle proxies from
// closing the stream.
const keepaliveInterval = 25 * time.Second

// EventData is the JSON payload of each streamed bus envelope.
type EventData struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	CreatedAt int64  `json:"created_at"`
}

// handleEvents handles GET /api/v1/events.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized, APIResponse{Message: "not authenticated"})
		return
	}
	if caller.Group == "" {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "caller has no notification group"})
		return
	}

	// Check streaming support before subscribing (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		writeJSON(w, http.StatusInternalServerError, APIResponse{Message: "streaming not supported"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	frames, subID := g.bus.Subscribe(ctx, caller.Group)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.logger.Info("event stream opened",
		"caller", caller.Email,
		"group", caller.Group,
		"sub_id", subID,
		"subscribers", g.bus.SubscriberCount(caller.Group))
	g.writeSSEEvent(w, "subscribed", map[string]string{"group": caller.Group})
	flusher.Flush()

	g.streamFrames(ctx, w, flusher, frames)
	g.logger.Info("event stream closed", "caller", caller.Email, "sub_id", subID)
}

// streamFrames decodes bus frames and writes them as SSE events until the
// client goes away or the bus shuts down.
func (g *Gateway) streamFrames(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, frames <-chan []byte) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case frame, ok := <-frames:
			if !ok {
				return
			}
			env, err := bus.Decode(frame)
			if err != nil {
				g.logger.Warn("dropping undecodable frame", "error", err)
				continue
			}
			g.writeSSEEvent(w, env.Type, EventData{
				ID:        env.ID,
				Channel:   env.Channel,
				CreatedAt: env.CreatedAt,
			})
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single server-sent event.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
