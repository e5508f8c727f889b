package handlers

import (
	"log/slog"
	"sort"
	"sync"

	"tacgrid/server/messages"
)

// ClientManager is the registry of websocket sessions. Each session carries
// its own viewport and running ingestions.
type ClientManager struct {
	sessions map[string]*ClientHandler // session ID to handler
	mutex    sync.RWMutex
}

// NewClientManager creates an empty session registry
func NewClientManager() *ClientManager {
	return &ClientManager{
		sessions: make(map[string]*ClientHandler),
	}
}

// AddClient registers a session under its ID
func (cm *ClientManager) AddClient(handler *ClientHandler) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.sessions[handler.id] = handler
}

// RemoveClient drops a session
func (cm *ClientManager) RemoveClient(clientID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.sessions, clientID)
}

// Count returns the number of connected sessions
func (cm *ClientManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.sessions)
}

// Sessions describes every connected session, ordered by ID
func (cm *ClientManager) Sessions() []messages.SessionMessage {
	cm.mutex.RLock()
	out := make([]messages.SessionMessage, 0, len(cm.sessions))
	for id, h := range cm.sessions {
		out = append(out, messages.SessionMessage{
			ID:         id,
			Viewport:   viewportMessage(h.viewport),
			Ingestions: h.runningIngestions(),
		})
	}
	cm.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NotifyGridUpdated pushes grid_updated to every session together with the
// rect that session currently shows, so it can refetch just its view.
func (cm *ClientManager) NotifyGridUpdated(generation uint64) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for id, h := range cm.sessions {
		msg := messages.Response{
			Type: messages.MessageTypeGridUpdated,
			Payload: messages.GridUpdatedMessage{
				Generation: generation,
				Visible:    h.viewport.Rect(),
			},
		}
		if err := h.conn.SendMessage(msg); err != nil {
			slog.Warn("error notifying session", "client", id, "generation", generation, "error", err)
		}
	}
}
