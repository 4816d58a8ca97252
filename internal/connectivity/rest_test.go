package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeDevice serves /health and /telemetry like a pot on the LAN.
type fakeDevice struct {
	mu              sync.Mutex
	healthStatus    int
	telemetryStatus int
	body            string
	polls           int
}

func newFakeDevice(t *testing.T) (*fakeDevice, *httptest.Server) {
	t.Helper()
	d := &fakeDevice{
		healthStatus:    http.StatusOK,
		telemetryStatus: http.StatusOK,
		body:            `{"deviceId":"pot-7","moisture":42,"temperature":23.5,"light":640}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(d.healthStatus)
		case "/telemetry":
			d.polls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(d.telemetryStatus)
			_, _ = w.Write([]byte(d.body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return d, server
}

func (d *fakeDevice) set(fn func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDevice) pollCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

func restService(url string) *Service {
	return NewService(Config{
		Transport:   TransportREST,
		RESTBaseURL: url,
		Timing:      fastTiming,
	}, ServiceOptions{})
}

// =============================================================================
// REST Driver Tests
// =============================================================================

func TestREST_ConnectAndPoll(t *testing.T) {
	_, server := newFakeDevice(t)
	svc := restService(server.URL + "/")
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	want := Status{State: StateConnected, Detail: "REST device reachable"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}

	waitFor(t, 2*time.Second, "several polls", func() bool { return rec.sampleCount() >= 3 })

	rec.mu.Lock()
	s := rec.samples[0]
	rec.mu.Unlock()
	if s.DeviceID != "pot-7" || *s.Moisture != 42 || *s.Light != 640 {
		t.Errorf("sample = %+v", s)
	}
}

func TestREST_HealthCheckFailure(t *testing.T) {
	dev, server := newFakeDevice(t)
	dev.set(func(d *fakeDevice) { d.healthStatus = http.StatusServiceUnavailable })
	svc := restService(server.URL)

	err := svc.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	want := Status{State: StateError, Detail: "health check failed: HTTP 503"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
	if got := dev.pollCount(); got != 0 {
		t.Errorf("telemetry polled %d times after failed health check", got)
	}
}

func TestREST_Unreachable(t *testing.T) {
	_, server := newFakeDevice(t)
	url := server.URL
	server.Close()

	svc := restService(url)
	err := svc.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	if got := svc.Status().Detail; got != "health check failed" {
		t.Errorf("Status().Detail = %q", got)
	}
}

func TestREST_PollFailureIsStreamError(t *testing.T) {
	dev, server := newFakeDevice(t)
	dev.set(func(d *fakeDevice) { d.telemetryStatus = http.StatusInternalServerError })
	svc := restService(server.URL)
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	waitFor(t, 2*time.Second, "stream error", func() bool { return len(rec.errors()) >= 1 })

	err := rec.errors()[0]
	if !errors.Is(err, ErrStream) {
		t.Errorf("error = %v, want ErrStream", err)
	}
	if err.Error() != "telemetry failed: HTTP 500" {
		t.Errorf("error = %q", err.Error())
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
}

func TestREST_MalformedTelemetry(t *testing.T) {
	dev, server := newFakeDevice(t)
	dev.set(func(d *fakeDevice) { d.body = "<html>" })
	svc := restService(server.URL)
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	waitFor(t, 2*time.Second, "stream error", func() bool { return len(rec.errors()) >= 1 })
	if !errors.Is(rec.errors()[0], ErrStream) {
		t.Errorf("error = %v, want ErrStream", rec.errors()[0])
	}
	if rec.sampleCount() != 0 {
		t.Errorf("samples = %d, want 0", rec.sampleCount())
	}
}

func TestREST_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	dev, server := newFakeDevice(t)
	dev.set(func(d *fakeDevice) { d.telemetryStatus = http.StatusBadGateway })
	svc := restService(server.URL)
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	waitFor(t, 3*time.Second, "errors past the breaker threshold", func() bool {
		return len(rec.errors()) >= breakerFailureThreshold+2
	})

	// Once open, polls fail fast without reaching the device.
	if got := dev.pollCount(); got != breakerFailureThreshold {
		t.Errorf("device polled %d times, want %d", got, breakerFailureThreshold)
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
}

func TestREST_DisconnectStopsPolling(t *testing.T) {
	dev, server := newFakeDevice(t)
	svc := restService(server.URL)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, 2*time.Second, "a poll", func() bool { return dev.pollCount() >= 1 })

	svc.Disconnect()
	after := dev.pollCount()
	time.Sleep(100 * time.Millisecond)

	if got := dev.pollCount(); got != after {
		t.Errorf("polls continued after Disconnect: %d -> %d", after, got)
	}
}
