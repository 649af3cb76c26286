package push

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

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

type receivedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// eventServer accepts one websocket client at a time, records inbound
// frames, and lets the test push envelopes to the client.
type eventServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []receivedFrame
	dials  int
}

func newEventServer(t *testing.T) *eventServer {
	t.Helper()
	es := &eventServer{t: t}
	es.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := es.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.conn = conn
		es.dials++
		es.mu.Unlock()
		for {
			var frame receivedFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			es.mu.Lock()
			es.frames = append(es.frames, frame)
			es.mu.Unlock()
		}
	}))
	t.Cleanup(es.server.Close)
	return es
}

func (es *eventServer) url() string {
	return "ws" + strings.TrimPrefix(es.server.URL, "http")
}

func (es *eventServer) waitFrames(n int, timeout time.Duration) []receivedFrame {
	es.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		es.mu.Lock()
		if len(es.frames) >= n {
			out := make([]receivedFrame, len(es.frames))
			copy(out, es.frames)
			es.mu.Unlock()
			return out
		}
		es.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	es.t.Fatalf("timed out waiting for %d frames", n)
	return nil
}

func (es *eventServer) send(payload any) {
	es.t.Helper()
	es.mu.Lock()
	conn := es.conn
	es.mu.Unlock()
	if conn == nil {
		es.t.Fatal("no connected client")
	}
	if err := conn.WriteJSON(payload); err != nil {
		es.t.Fatalf("server write: %v", err)
	}
}

func (es *eventServer) dropClient() {
	es.mu.Lock()
	conn := es.conn
	es.conn = nil
	es.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (es *eventServer) dialCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.dials
}

func newTestChannel(url string, deviceIDs []string, onEvent EventFunc) *Channel {
	channel := New(url, func() string { return "session-token" }, deviceIDs, onEvent, slog.New(slog.NewTextHandler(io.Discard, nil)))
	channel.authGrace = 10 * time.Millisecond
	channel.subscribeGrace = 10 * time.Millisecond
	channel.backoffMin = 20 * time.Millisecond
	channel.backoffMax = 100 * time.Millisecond
	return channel
}

func TestHandshakeAuthenticatesThenSubscribes(t *testing.T) {
	es := newEventServer(t)
	channel := newTestChannel(es.url(), []string{"device-a", "device-b"}, nil)

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer channel.Disconnect()

	frames := es.waitFrames(3, 2*time.Second)
	if frames[0].Event != "authenticate" {
		t.Fatalf("frames[0].Event = %q, want authenticate", frames[0].Event)
	}
	var token string
	if err := json.Unmarshal(frames[0].Data, &token); err != nil || token != "session-token" {
		t.Fatalf("authenticate data = %s, want session-token", frames[0].Data)
	}
	for i, want := range []string{"device-a", "device-b"} {
		frame := frames[i+1]
		if frame.Event != "subscribe" {
			t.Fatalf("frames[%d].Event = %q, want subscribe", i+1, frame.Event)
		}
		var deviceID string
		if err := json.Unmarshal(frame.Data, &deviceID); err != nil || deviceID != want {
			t.Fatalf("subscribe data = %s, want %q", frame.Data, want)
		}
	}
}

func TestEventDispatchedWithRequestID(t *testing.T) {
	events := make(chan model.Box, 1)
	requestIDs := make(chan string, 1)
	es := newEventServer(t)
	channel := newTestChannel(es.url(), []string{"device-a"}, func(box model.Box, requestID string) {
		events <- box
		requestIDs <- requestID
	})

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer channel.Disconnect()
	es.waitFrames(2, 2*time.Second)

	es.send(map[string]any{
		"type":               "ws_event",
		"data":               map[string]any{"device_key": 7, "fan_volume": 55},
		"restful_request_id": "req-1",
	})

	select {
	case box := <-events:
		if box.DeviceKey != 7 || box.FanVolume != 55 {
			t.Fatalf("event box = %+v, want device 7 volume 55", box)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched event")
	}
	if got := <-requestIDs; got != "req-1" {
		t.Fatalf("requestID = %q, want %q", got, "req-1")
	}
}

func TestMalformedAndEmptyPayloadsDropped(t *testing.T) {
	events := make(chan model.Box, 4)
	es := newEventServer(t)
	channel := newTestChannel(es.url(), []string{"device-a"}, func(box model.Box, _ string) {
		events <- box
	})

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer channel.Disconnect()
	es.waitFrames(2, 2*time.Second)

	es.send(map[string]any{"type": "ws_event"})
	es.send(map[string]any{"type": "ws_event", "data": "not-an-object"})
	es.send(map[string]any{"type": "ws_event", "data": map[string]any{"device_key": 9}})

	select {
	case box := <-events:
		if box.DeviceKey != 9 {
			t.Fatalf("dispatched box = %+v, want only the valid payload", box)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid event")
	}
	select {
	case box := <-events:
		t.Fatalf("unexpected extra event %+v, want malformed payloads dropped", box)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	es := newEventServer(t)
	channel := newTestChannel(es.url(), []string{"device-a"}, nil)

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer channel.Disconnect()
	es.waitFrames(2, 2*time.Second)

	es.dropClient()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if es.dialCount() >= 2 {
			es.waitFrames(4, 2*time.Second)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("channel did not reconnect after server drop")
}

func TestConnectFailureLeavesChannelDisconnected(t *testing.T) {
	channel := newTestChannel("ws://127.0.0.1:1", nil, nil)

	if err := channel.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil, want dial failure")
	}
	if got := channel.State(); got != StateDisconnected {
		t.Fatalf("State() = %q, want %q", got, StateDisconnected)
	}
	// A failed connect must not leave a supervising goroutine behind.
	channel.Disconnect()
}

func TestDisconnectStopsReconnection(t *testing.T) {
	es := newEventServer(t)
	channel := newTestChannel(es.url(), []string{"device-a"}, nil)

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	es.waitFrames(2, 2*time.Second)

	channel.Disconnect()
	if got := channel.State(); got != StateDisconnected {
		t.Fatalf("State() = %q, want %q", got, StateDisconnected)
	}

	dialsAfter := es.dialCount()
	time.Sleep(200 * time.Millisecond)
	if es.dialCount() != dialsAfter {
		t.Fatal("channel kept reconnecting after Disconnect")
	}
}
