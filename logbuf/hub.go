package logbuf

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// subscriberCapacity is the bounded per-subscriber queue depth; a client
// that falls this far behind is dropped rather than allowed to accumulate
// unbounded memory (spec.md §5 "WebSocket broadcast queue: 50 records per
// subscriber").
const subscriberCapacity = 50

// Hub fans every appended Record out to every subscribed WebSocket
// connection, in append order, dropping (disconnecting) subscribers whose
// queue is full (spec.md §4.6, §5, scenario S6).
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	send chan Record
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{})}
}

// Broadcast delivers rec to every current subscriber. A subscriber whose
// queue is already full is removed and its connection closed instead of
// blocking the broadcaster.
func (h *Hub) Broadcast(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- rec:
		default:
			delete(h.subscribers, sub)
			close(sub.send)
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Serve upgrades conn's owning HTTP request's connection to a log stream:
// it registers a subscriber, pumps broadcast records to conn until the
// subscriber is dropped or the connection errors, and always unregisters
// on return.
func (h *Hub) Serve(conn *websocket.Conn) {
	sub := &subscriber{send: make(chan Record, subscriberCapacity)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.subscribers[sub]; ok {
			delete(h.subscribers, sub)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	go h.readLoop(conn)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains and discards client frames so pong control frames are
// processed and the connection's read deadline keeps advancing; the log
// stream is one-directional from the agent's point of view.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
