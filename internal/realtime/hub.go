// Package realtime pushes per-user progress events (XP changes, level-ups,
// unlocked achievements) to connected websocket clients.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lg/fitquest-api/internal/logger"
)

const (
	EventXPChanged           = "xp.changed"
	EventLevelUp             = "level.up"
	EventAchievementUnlocked = "achievement.unlocked"
	EventDailyCheck          = "daily_check.completed"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ConnObserver is told when clients connect and disconnect.
type ConnObserver interface {
	ClientConnected()
	ClientDisconnected()
}

type client struct {
	userID int
	conn   *websocket.Conn
	wmu    sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[int]map[*client]struct{}
	upgrader websocket.Upgrader
	observer ConnObserver
	log      *logger.Logger
	ping     time.Duration
}

func NewHub(log *logger.Logger, observer ConnObserver) *Hub {
	return &Hub{
		clients: make(map[int]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		observer: observer,
		log:      log.With("service", "RealtimeHub"),
		ping:     25 * time.Second,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.ClientConnected()
	}
}

// unregister is safe to call more than once for the same client.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, present := set[c]
	if present {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	if !present {
		return
	}
	_ = c.conn.Close()
	if h.observer != nil {
		h.observer.ClientDisconnected()
	}
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Publish sends ev to every connection of userID. Connections that fail to
// accept the write are dropped.
func (h *Hub) Publish(userID int, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal realtime event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			h.log.Debug("dropping realtime client", "user_id", userID, "error", err)
			h.unregister(c)
		}
	}
}

// Serve upgrades the request and holds the connection open for userID until
// the client goes away. Incoming messages are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{userID: userID, conn: conn}
	h.register(c)

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(h.ping)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					h.unregister(c)
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			close(done)
			h.unregister(c)
			return
		}
	}
}
