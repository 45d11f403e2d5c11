package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(TopicReauth)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(TopicReauth) != 1 {
		t.Fatalf("expected 1 client on reauth, got %d/%d", hub.ClientCount(), hub.TopicCount(TopicReauth))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicReauth) != 0 {
		t.Fatalf("expected no clients, got %d/%d", hub.ClientCount(), hub.TopicCount(TopicReauth))
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}

	// A second unregister must not panic on the closed channel.
	hub.Unregister(client)
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return fixed }

	sub := NewClient("patients")
	other := NewClient("laboratory/lab-tests")
	hub.Register(sub)
	hub.Register(other)

	hub.Publish("patients", "record.saved", "17", map[string]string{"op": "create"})

	ev := receive(t, sub)
	if ev.Type != "record.saved" || ev.Topic != "patients" || ev.ResourceID != "17" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.Timestamp.Equal(fixed) {
		t.Errorf("expected timestamp %s, got %s", fixed, ev.Timestamp)
	}
	if string(ev.Data) != `{"op":"create"}` {
		t.Errorf("unexpected data %s", ev.Data)
	}

	select {
	case msg := <-other.Send:
		t.Errorf("non-subscriber received %s", msg)
	default:
	}
}

func TestHub_PublishEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Publish("nobody", "noop", "", nil)
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient(TopicReauth)
	hub.Register(client)

	for i := 0; i < sendBuffer+5; i++ {
		hub.Publish(TopicReauth, "reauth.state", "", nil)
	}
	if len(client.Send) != sendBuffer {
		t.Errorf("expected buffer to stay at %d, got %d", sendBuffer, len(client.Send))
	}
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"patients", TopicReauth}})
	if hub.TopicCount("patients") != 1 || hub.TopicCount(TopicReauth) != 1 {
		t.Fatal("expected subscriptions to be added")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"patients"}})
	if hub.TopicCount("patients") != 0 || hub.TopicCount(TopicReauth) != 1 {
		t.Fatal("expected only patients to be removed")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "shout", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Error("unknown actions must be ignored")
	}

	hub.Unregister(client)
	if hub.TopicCount(TopicReauth) != 0 {
		t.Error("unregister should clear dynamic subscriptions")
	}
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := NewClient(TopicReauth)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.Publish(TopicReauth, "reauth.state", "", nil)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "http://console.local:3000", true},
		{"other host", "http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://console.local:3000/home/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := sameOrigin(req); got != tt.want {
				t.Errorf("sameOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler_RequiresUpgrade(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop())).RegisterRoutes(e.Group(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a plain GET, got %d", rec.Code)
	}
}

func TestHandler_DialSubscribeReceive(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub).RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topic=" + TopicReauth
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"patients"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("patients") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(TopicReauth) != 1 || hub.TopicCount("patients") != 1 {
		t.Fatalf("expected both subscriptions, got reauth=%d patients=%d", hub.TopicCount(TopicReauth), hub.TopicCount("patients"))
	}

	hub.Publish("patients", "record.deleted", "4", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "record.deleted" || ev.ResourceID != "4" {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("expected client to be unregistered after close")
	}
}
