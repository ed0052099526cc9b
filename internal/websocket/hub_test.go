package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/nudge/internal/auth"
	"github.com/dukerupert/nudge/internal/model"
)

type beat struct {
	userID int64
	online bool
	conv   *int64
}

type fakePresence struct {
	mu    sync.Mutex
	beats []beat
}

func (f *fakePresence) Heartbeat(ctx context.Context, userID int64, online bool, conversationID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, beat{userID, online, conversationID})
	return nil
}

func (f *fakePresence) snapshot() []beat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]beat(nil), f.beats...)
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregisterTracksPresence(t *testing.T) {
	p := &fakePresence{}
	hub := NewHub(p, slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if !hub.IsConnected(1) {
		t.Fatal("user should still be connected through c2")
	}

	hub.Unregister(c2)
	if hub.IsConnected(1) {
		t.Fatal("user should be disconnected")
	}

	beats := p.snapshot()
	if len(beats) != 2 || !beats[0].online || beats[1].online {
		t.Errorf("beats = %+v, want one online then one offline", beats)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(nil, slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestSendToUserOnlyReachesThatUser(t *testing.T) {
	hub := NewHub(nil, slog.Default())

	mine := mockClient(hub, 1)
	other := mockClient(hub, 2)
	hub.Register(mine)
	hub.Register(other)

	hub.PublishNotification(1, &model.Notification{ID: 42, UserID: 1, Title: "Meeting: sync"})

	select {
	case data := <-mine.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "notification_created" {
			t.Errorf("expected type notification_created, got %s", got.Type)
		}
		if got.ID != 42 {
			t.Errorf("expected id 42, got %d", got.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-other.send:
		t.Error("other user should not receive the notification")
	default:
	}

	hub.Unregister(mine)
	hub.Unregister(other)
}

func TestSendToUserFullBuffer(t *testing.T) {
	hub := NewHub(nil, slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.SendToUser(1, NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.SendToUser(1, NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, got)
	}

	hub.Unregister(c)
}

func TestHeartbeatFrame(t *testing.T) {
	p := &fakePresence{}
	hub := NewHub(p, slog.Default())
	c := mockClient(hub, 3)

	c.handleFrame([]byte(`{"type":"heartbeat","conversation_id":8}`))
	c.handleFrame([]byte(`{"type":"heartbeat","online":false}`))
	c.handleFrame([]byte(`{"type":"typing"}`))
	c.handleFrame([]byte(`not json`))

	beats := p.snapshot()
	if len(beats) != 2 {
		t.Fatalf("beats = %d, want 2", len(beats))
	}
	if !beats[0].online || beats[0].conv == nil || *beats[0].conv != 8 {
		t.Errorf("first beat = %+v", beats[0])
	}
	if beats[1].online {
		t.Errorf("second beat should be offline")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(&fakePresence{}, slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			c := mockClient(hub, uid)
			hub.Register(c)
			hub.SendToUser(uid, NewMessage("test", "concurrent", 0, nil))
			hub.Unregister(c)
		}(int64(i % 4))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocketEndToEnd(t *testing.T) {
	p := &fakePresence{}
	hub := NewHub(p, slog.Default())

	h := HandleWebSocket(hub, nil, slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: 5})))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return hub.IsConnected(5) })
	hub.PublishNotification(5, &model.Notification{ID: 7, UserID: 5})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "notification_created" || got.ID != 7 {
		t.Errorf("message = %+v", got)
	}

	conn.Close(ws.StatusNormalClosure, "")
	waitFor(t, func() bool { return !hub.IsConnected(5) })

	beats := p.snapshot()
	if len(beats) < 2 || !beats[0].online || beats[len(beats)-1].online {
		t.Errorf("beats = %+v, want online first and offline last", beats)
	}
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	hub := NewHub(nil, slog.Default())
	rec := httptest.NewRecorder()
	HandleWebSocket(hub, nil, slog.Default())(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
