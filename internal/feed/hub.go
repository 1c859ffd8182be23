// Package feed pushes marketplace events and active listing snapshots to
// websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/models"
)

const writeTimeout = 5 * time.Second

const (
	KindEvent    = "event"
	KindSnapshot = "snapshot"
)

// Message is what clients receive: either one event or the full set of
// active listings.
type Message struct {
	Kind     string           `json:"kind"`
	Event    *events.Event    `json:"event,omitempty"`
	Listings []models.Listing `json:"listings,omitempty"`
	SentAt   time.Time        `json:"sent_at"`
}

type ListingSource interface {
	ListActiveListings(ctx context.Context) ([]models.Listing, error)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type Hub struct {
	listings ListingSource
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(listings ListingSource, logger *slog.Logger) *Hub {
	return &Hub{
		listings: listings,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// The feed is read-only public data
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection, sends the current snapshot and keeps the
// client registered until it disconnects. Anything the client sends is ignored.
// Events published while the snapshot is being sent are not delivered to the
// new client; the next periodic snapshot from Run covers them.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", "error", err)
		return
	}
	c := &client{conn: conn}

	// Registered only after the snapshot so no event overtakes it.
	if data, err := h.snapshot(r.Context()); err != nil {
		h.logger.Warn("failed to build listing snapshot", "error", err)
	} else if err := c.write(data); err != nil {
		conn.Close()
		return
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

// Publish forwards ev to every connected client. Slow or broken clients are
// dropped; Publish itself only fails if ev cannot be encoded.
func (h *Hub) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(Message{Kind: KindEvent, Event: &ev, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode feed event: %w", err)
	}
	h.broadcast(data)
	return nil
}

// Run broadcasts the active listing snapshot every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			data, err := h.snapshot(ctx)
			if err != nil {
				h.logger.Warn("failed to build listing snapshot", "error", err)
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) snapshot(ctx context.Context) ([]byte, error) {
	listings, err := h.listings.ListActiveListings(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Kind: KindSnapshot, Listings: listings, SentAt: time.Now().UTC()})
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}
