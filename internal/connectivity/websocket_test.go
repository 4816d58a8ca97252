package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsDevice is a WebSocket server that runs script against each client.
func wsDevice(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func wsService(url string) *Service {
	return NewService(Config{
		Transport: TransportWebSocket,
		WSURL:     url,
		DeviceID:  "pot-ws",
		Timing:    fastTiming,
	}, ServiceOptions{})
}

// holdOpen keeps the server side open until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// =============================================================================
// WebSocket Driver Tests
// =============================================================================

func TestWebSocket_ReceivesTelemetry(t *testing.T) {
	server := wsDevice(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"moisture":55,"temperature":21,"light":300}`))
		holdOpen(conn)
	})
	svc := wsService(wsURL(server))
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	want := Status{State: StateConnected, Detail: "WebSocket connected"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}

	waitFor(t, 2*time.Second, "sample", func() bool { return rec.sampleCount() == 1 })
	rec.mu.Lock()
	s := rec.samples[0]
	rec.mu.Unlock()
	if s.DeviceID != "pot-ws" || *s.Moisture != 55 {
		t.Errorf("sample = %+v", s)
	}
	if s.Timestamp.IsZero() {
		t.Error("missing ts not defaulted to receive time")
	}
}

func TestWebSocket_MalformedMessage(t *testing.T) {
	server := wsDevice(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("definitely not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"light":900}`))
		holdOpen(conn)
	})
	svc := wsService(wsURL(server))
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	waitFor(t, 2*time.Second, "sample after malformed message", func() bool { return rec.sampleCount() == 1 })

	errs := rec.errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	var se *StreamError
	if !errors.As(errs[0], &se) {
		t.Errorf("error = %T, want *StreamError", errs[0])
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
	if got := rec.count(StateDisconnected); got != 0 {
		t.Errorf("disconnected emitted %d times, want 0", got)
	}
}

func TestWebSocket_RemoteClose(t *testing.T) {
	server := wsDevice(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "rebooting"))
	})
	svc := wsService(wsURL(server))

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	want := Status{State: StateDisconnected, Detail: "WebSocket closed"}
	waitFor(t, 2*time.Second, "remote close", func() bool { return svc.Status() == want })
}

func TestWebSocket_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	svc := wsService(wsURL(server))
	err := svc.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	want := Status{State: StateError, Detail: "WebSocket failed"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
}

func TestWebSocket_DisconnectClosesSocket(t *testing.T) {
	serverDone := make(chan struct{})
	server := wsDevice(t, func(conn *websocket.Conn) {
		defer close(serverDone)
		holdOpen(conn)
	})
	svc := wsService(wsURL(server))
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	svc.Disconnect()

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the socket closing")
	}

	want := Status{State: StateDisconnected}
	if got := rec.lastStatus(); got != want {
		t.Errorf("last status = %+v, want %+v (no WebSocket closed detail on manual disconnect)", got, want)
	}
}
