package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// scriptedBus is an in-memory SignalBus whose subscriptions tests can feed
// deliveries into directly.
type scriptedBus struct {
	mu   sync.Mutex
	subs map[string]chan domain.BusMessage
}

func newScriptedBus() *scriptedBus {
	return &scriptedBus{subs: make(map[string]chan domain.BusMessage)}
}

func (b *scriptedBus) Publish(_ context.Context, _ string, _ []byte) error { return nil }

func (b *scriptedBus) Subscribe(_ context.Context, channel string) (<-chan domain.BusMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.BusMessage, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *scriptedBus) StreamAppend(_ context.Context, _ string, _ []byte) error { return nil }

func (b *scriptedBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

var _ domain.SignalBus = (*scriptedBus)(nil)

// deliver feeds one message into the hub's bus subscription, waiting for the
// subscription to be established first.
func (b *scriptedBus) deliver(t *testing.T, subscription, channel string, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		ch, ok := b.subs[subscription]
		b.mu.Unlock()
		if ok {
			ch <- domain.BusMessage{Channel: channel, Payload: payload}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("bus subscription %s never established", subscription)
}

// dialTestHub starts a hub over the scripted bus, connects a real WebSocket
// client to it, and consumes the initial status frame.
func dialTestHub(t *testing.T) (*scriptedBus, *websocket.Conn) {
	t.Helper()

	bus := newScriptedBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, status, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(status, &envelope); err != nil || envelope.Type != "service_status" {
		t.Fatalf("first frame = %s, want a service_status envelope", status)
	}

	return bus, conn
}

// readFrame reads one frame within the timeout; ok is false when none arrives.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) ([]byte, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	return data, true
}

func sendSubscription(t *testing.T, conn *websocket.Conn, action string, channels ...string) {
	t.Helper()
	msg, err := json.Marshal(subscribeMsg{Action: action, Channels: channels})
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write subscription: %v", err)
	}
	// Subscription changes are applied asynchronously by the read pump.
	time.Sleep(100 * time.Millisecond)
}

func TestPerPortfolioChannelDelivery(t *testing.T) {
	bus, conn := dialTestHub(t)

	sendSubscription(t, conn, "subscribe", "portfolio:abc")

	payload := []byte(`{"portfolio_id":"abc","sequence_no":1}`)
	bus.deliver(t, portfolioPattern, "portfolio:abc", payload)

	data, ok := readFrame(t, conn, 2*time.Second)
	if !ok {
		t.Fatal("no delivery on subscribed portfolio channel")
	}
	if string(data) != string(payload) {
		t.Errorf("payload = %s, want %s", data, payload)
	}

	// Events for other portfolios do not reach this client.
	bus.deliver(t, portfolioPattern, "portfolio:other", []byte(`{"portfolio_id":"other"}`))
	if data, ok := readFrame(t, conn, 300*time.Millisecond); ok {
		t.Errorf("unexpected delivery for foreign portfolio: %s", data)
	}
}

func TestBroadcastChannelDeliveredOnce(t *testing.T) {
	bus, conn := dialTestHub(t)

	// Every client starts subscribed to the broadcast channel.
	payload := []byte(`{"portfolio_id":"abc","sequence_no":2}`)
	bus.deliver(t, portfolioPattern, "portfolio:events", payload)

	data, ok := readFrame(t, conn, 2*time.Second)
	if !ok {
		t.Fatal("no delivery on broadcast channel")
	}
	if string(data) != string(payload) {
		t.Errorf("payload = %s, want %s", data, payload)
	}

	if extra, ok := readFrame(t, conn, 300*time.Millisecond); ok {
		t.Errorf("broadcast delivered more than once: %s", extra)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus, conn := dialTestHub(t)

	sendSubscription(t, conn, "unsubscribe", "portfolio:events")

	bus.deliver(t, portfolioPattern, "portfolio:events", []byte(`{"sequence_no":3}`))
	if data, ok := readFrame(t, conn, 300*time.Millisecond); ok {
		t.Errorf("delivery after unsubscribe: %s", data)
	}
}
