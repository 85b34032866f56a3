package ws

import "github.com/Buchi-dev/puretrack/internal/models"

// Shutdown closes every connected socket with a shutdown notice, as the
// second step of the component shutdown order, after the broadcast
// schedulers stop.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		h.disconnect(cl, models.WSErrorPayload{Message: "server shutting down", Code: "SERVER_SHUTDOWN"})
	}
}
