package api

import (
	"context"
	"sync"

	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/rs/zerolog"
)

// allJobs is the subscription key of clients following every job.
const allJobs = "all"

// Hub fans job events out to WebSocket clients subscribed to a job or to all jobs.
// It implements jobs.Notifier.
type Hub struct {
	// Registered clients mapped by job ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan jobs.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger zerolog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan jobs.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.NewLogger("ws-hub"),
	}
}

// Run is the hub's event loop. It returns when ctx is done and closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for key, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, key)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.jobID] == nil {
				h.clients[client.jobID] = make(map[*Client]bool)
			}
			h.clients[client.jobID][client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("job_id", client.jobID).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.logger.Debug().Str("job_id", client.jobID).Msg("WebSocket client disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			h.sendLocked(event.JobID, event)
			h.sendLocked(allJobs, event)
			h.mu.Unlock()
		}
	}
}

// sendLocked delivers event to the clients under key, dropping slow clients.
func (h *Hub) sendLocked(key string, event jobs.Event) {
	for client := range h.clients[key] {
		select {
		case client.send <- event:
		default:
			h.logger.Warn().Str("job_id", key).Msg("WebSocket client too slow, disconnecting")
			h.removeLocked(client)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.jobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.jobID)
	}
}

// Publish implements jobs.Notifier. It never blocks; events are dropped when
// the hub is saturated.
func (h *Hub) Publish(event jobs.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("job_id", event.JobID).Msg("WebSocket broadcast channel full, dropping event")
	}
}

// RegisterClient adds client to the hub.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient removes client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}
