package logbuf

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		h.Serve(conn)
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// TestHub_BroadcastReachesAllSubscribersInOrder covers spec.md §8 scenario
// S6: two clients, same records, append order preserved.
func TestHub_BroadcastReachesAllSubscribersInOrder(t *testing.T) {
	h := NewHub()
	srv, url := newTestServer(t, h)
	defer srv.Close()

	c1 := dial(t, url)
	defer c1.Close()
	c2 := dial(t, url)
	defer c2.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 2 }, time.Second, 10*time.Millisecond)

	h.Broadcast(Record{Timestamp: time.Now(), Message: "one"})
	h.Broadcast(Record{Timestamp: time.Now(), Message: "two"})

	for _, c := range []*websocket.Conn{c1, c2} {
		_, first, err := c.ReadMessage()
		require.NoError(t, err)
		require.Contains(t, string(first), "one")

		_, second, err := c.ReadMessage()
		require.NoError(t, err)
		require.Contains(t, string(second), "two")
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub()
	srv, url := newTestServer(t, h)
	defer srv.Close()

	c := dial(t, url)
	defer c.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	for i := 0; i < subscriberCapacity+10; i++ {
		h.Broadcast(Record{Timestamp: time.Now(), Message: "flood"})
	}

	require.Eventually(t, func() bool { return h.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}
