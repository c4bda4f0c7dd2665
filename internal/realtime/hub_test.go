package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testHub(opts ...HubOption) *Hub {
	return NewHub(slog.New(slog.DiscardHandler), opts...)
}

func startHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	h := testHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func testClient(h *Hub, sub Subscription, buf int) *Client {
	return &Client{hub: h, send: make(chan []byte, buf), sub: sub}
}

func TestShouldSend_AllEvents(t *testing.T) {
	client := &Client{sub: Subscription{AllEvents: true}}
	if !shouldSend(client, &Event{Type: EventToolCall}) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventTxSent, EventTxConfirmed},
	}}

	if !shouldSend(client, &Event{Type: EventTxSent}) {
		t.Error("should receive tx_sent")
	}
	if !shouldSend(client, &Event{Type: EventTxConfirmed}) {
		t.Error("should receive tx_confirmed")
	}
	if shouldSend(client, &Event{Type: EventToolCall}) {
		t.Error("should NOT receive tool_call")
	}
}

func TestShouldSend_AddressFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		Addresses: []string{"0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
	}}

	matching := &Event{Type: EventTxSent, Addresses: []string{"0xf39f", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"}}
	if !shouldSend(client, matching) {
		t.Error("address match should be case-insensitive")
	}

	other := &Event{Type: EventTxSent, Addresses: []string{"0xf39f", "0x3c44"}}
	if shouldSend(client, other) {
		t.Error("unrelated addresses should be filtered")
	}

	// Tool calls carry no addresses, so an address filter excludes them.
	if shouldSend(client, &Event{Type: EventToolCall}) {
		t.Error("address filter should exclude events without addresses")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	client := &Client{sub: Subscription{}}
	if !shouldSend(client, &Event{Type: EventSwapSent}) {
		t.Error("empty subscription should pass everything")
	}
}

func TestHub_Stats_Initial(t *testing.T) {
	stats := testHub().Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_PublishSetsTimestamp(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	h := testHub()
	h.now = func() time.Time { return fixed }

	ev := &Event{Type: EventToolCall}
	h.Publish(ev)
	if !ev.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, fixed)
	}
	if !strings.HasPrefix(ev.ID, "evt_") {
		t.Errorf("id = %q, want evt_ prefix", ev.ID)
	}
}

func TestHub_PublishDropsWhenFull(t *testing.T) {
	h := testHub() // Run never started, so the queue fills
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.PublishToolCall("balance", "ok", time.Millisecond)
	}
	if got := h.Stats()["droppedEvents"].(int64); got != 3 {
		t.Errorf("droppedEvents = %d, want 3", got)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t)
	client := testClient(h, Subscription{AllEvents: true}, 8)

	h.register <- client
	time.Sleep(20 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("expected 1 connected client, got %v", stats["connectedClients"])
	}

	h.unregister <- client
	time.Sleep(20 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("expected peak 1, got %v", stats["peakClients"])
	}
}

func TestHub_PublishTxToClient(t *testing.T) {
	h := startHub(t)
	client := testClient(h, Subscription{AllEvents: true}, 8)
	h.register <- client

	h.PublishTx(EventTxSent, Tx{Hash: "0xabc", From: "0xa", To: "0xb", Value: "1000"})

	select {
	case msg := <-client.send:
		var ev struct {
			Type      EventType `json:"type"`
			Data      Tx        `json:"data"`
			Addresses []string  `json:"addresses"`
		}
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != EventTxSent || ev.Data.Hash != "0xabc" {
			t.Errorf("unexpected event %+v", ev)
		}
		if len(ev.Addresses) != 2 {
			t.Errorf("addresses = %v", ev.Addresses)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := startHub(t)
	slow := testClient(h, Subscription{AllEvents: true}, 1)
	h.register <- slow

	h.PublishToolCall("balance", "ok", 0)
	h.PublishToolCall("balance", "ok", 0)
	time.Sleep(50 * time.Millisecond)

	if n := h.Stats()["connectedClients"].(int); n != 0 {
		t.Errorf("slow client should be dropped, %d still connected", n)
	}
	// The first message was buffered, then the channel was closed.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_FilteredPublish(t *testing.T) {
	h := startHub(t)
	client := testClient(h, Subscription{EventTypes: []EventType{EventSwapSent}}, 8)
	h.register <- client

	h.PublishToolCall("swap_tokens", "ok", 0)
	time.Sleep(50 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("client should NOT receive tool_call")
	default:
	}

	h.PublishTx(EventSwapSent, Tx{Hash: "0x1"})
	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Error("client should receive swap_sent")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("hub did not stop after context cancellation")
	}
}

func TestHandleWebSocket_EndToEnd(t *testing.T) {
	h := startHub(t)
	ts := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Subscription{EventTypes: []EventType{EventTxConfirmed}}); err != nil {
		t.Fatalf("write subscription: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	h.PublishToolCall("balance", "ok", 0)
	h.PublishTx(EventTxConfirmed, Tx{Hash: "0xdead", Status: "success", Block: 7})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventTxConfirmed {
		t.Errorf("type = %s, want tx_confirmed", ev.Type)
	}
}

func TestHandleWebSocket_MaxClients(t *testing.T) {
	h := startHub(t, WithMaxClients(0))
	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
