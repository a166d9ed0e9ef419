// Package tracking streams trip changes to WebSocket subscribers. Changes
// arrive as TripEvents on the trip topics, so every instance behind a load
// balancer sees every change.
package tracking

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"covoiturage/internal/events"
	"covoiturage/pkg/httpx"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Snapshots loads the current state of a trip. trips.Service satisfies it.
type Snapshots interface {
	Snapshot(ctx context.Context, tripID string) (events.TripEvent, error)
}

// Subscriber delivers raw messages from a topic. kafka.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, groupID string, handler func([]byte) error)
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) close() { c.ws.Close() }

// Hub manages WebSocket connections per trip.
type Hub struct {
	trips Snapshots

	mu    sync.RWMutex
	conns map[string][]*safeConn
}

// NewHub creates a tracking hub.
func NewHub(trips Snapshots) *Hub {
	return &Hub{trips: trips, conns: make(map[string][]*safeConn)}
}

// Routes returns a chi.Router for the /ws mount point.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/trips/{id}", h.HandleWS)
	return r
}

// Consume subscribes to every trip topic and fans events out to the
// connections watching each trip. groupID should be unique per instance.
func (h *Hub) Consume(ctx context.Context, sub Subscriber, groupID string) {
	for _, topic := range events.TripTopics {
		sub.Subscribe(ctx, topic, groupID, h.handleMessage)
	}
}

func (h *Hub) handleMessage(data []byte) error {
	var ev events.TripEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	h.Broadcast(ev)
	return nil
}

// HandleWS upgrades the connection, sends the trip's current state and then
// streams every change until the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "id")
	snap, err := h.trips.Snapshot(r.Context(), tripID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns[tripID] = append(h.conns[tripID], conn)
	h.mu.Unlock()

	log.Printf("[ws] client connected to trip %s", tripID)

	if err := conn.writeJSON(snap); err != nil {
		log.Printf("[ws] write error: %v", err)
	}

	// Block until the client disconnects
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.removeConn(tripID, conn)
	conn.close()
	log.Printf("[ws] client disconnected from trip %s", tripID)
}

// Broadcast pushes ev to all subscribers of its trip.
// Safe for concurrent calls; each safeConn serialises its own writes.
func (h *Hub) Broadcast(ev events.TripEvent) {
	h.mu.RLock()
	conns := append([]*safeConn(nil), h.conns[ev.TripID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.writeJSON(ev); err != nil {
			log.Printf("[ws] write error: %v", err)
		}
	}
}

// Watchers returns how many connections follow tripID.
func (h *Hub) Watchers(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[tripID])
}

func (h *Hub) removeConn(tripID string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[tripID]
	for i, c := range conns {
		if c == conn {
			h.conns[tripID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[tripID]) == 0 {
		delete(h.conns, tripID)
	}
}
