package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// =============================================================================
// Connect Tests
// =============================================================================

func TestService_MockConnect(t *testing.T) {
	svc := NewService(Config{Transport: TransportMock, Timing: fastTiming}, ServiceOptions{})
	rec := watchService(svc)

	if got := svc.Status().State; got != StateIdle {
		t.Fatalf("initial Status() = %v, want idle", got)
	}

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	want := []State{StateConnecting, StateConnected}
	if got := rec.states(); !equalStates(got, want) {
		t.Errorf("status sequence = %v, want %v", got, want)
	}
	if got := svc.Status(); got.Detail != "Mock device connected" {
		t.Errorf("Status().Detail = %q", got.Detail)
	}

	waitFor(t, 2*time.Second, "two samples", func() bool { return rec.sampleCount() >= 2 })

	rec.mu.Lock()
	s := rec.samples[0]
	rec.mu.Unlock()
	if !s.IsComplete() {
		t.Fatalf("mock sample incomplete: %+v", s)
	}
	if *s.Moisture < 0 || *s.Moisture > 100 {
		t.Errorf("moisture = %v, want [0,100]", *s.Moisture)
	}
	if *s.Temperature < -10 || *s.Temperature > 80 {
		t.Errorf("temperature = %v, want [-10,80]", *s.Temperature)
	}
	if *s.Light < 0 || *s.Light > 5000 {
		t.Errorf("light = %v, want [0,5000]", *s.Light)
	}
}

func TestService_ConnectWhenConnectedIsNoOp(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	for i := 0; i < 2; i++ {
		if err := svc.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() #%d error = %v", i+1, err)
		}
	}

	if got := drv.openCount(); got != 1 {
		t.Errorf("driver opened %d times, want 1", got)
	}
	if got := rec.count(StateConnecting); got != 1 {
		t.Errorf("connecting emitted %d times, want 1", got)
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
}

func TestService_ConnectInProgress(t *testing.T) {
	drv := newFakeDriver()
	drv.block = make(chan struct{})
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})

	done := make(chan error, 1)
	go func() { done <- svc.Connect(context.Background()) }()
	waitFor(t, time.Second, "first Open", func() bool { return drv.openCount() == 1 })

	if err := svc.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("concurrent Connect() error = %v, want ErrConnectInProgress", err)
	}

	close(drv.block)
	if err := <-done; err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if got := drv.openCount(); got != 1 {
		t.Errorf("driver opened %d times, want 1", got)
	}
}

func TestService_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"rest without url", Config{Transport: TransportREST}, ErrMissingRESTURL},
		{"ws without url", Config{Transport: TransportWebSocket}, ErrMissingWebSocketURL},
		{"mqtt without broker", Config{Transport: TransportMQTT}, ErrMissingBrokerURL},
		{"unknown transport", Config{Transport: "carrier-pigeon"}, ErrUnknownTransport},
		{"unsupported broker scheme", Config{Transport: TransportMQTT, MQTTBrokerURL: "http://broker:1883"}, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.cfg, ServiceOptions{})
			rec := watchService(svc)

			err := svc.Connect(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Connect() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Connect() error = %v, want ErrConfiguration", err)
			}
			if got := svc.Status().State; got != StateError {
				t.Errorf("Status() = %v, want error", got)
			}
			want := []State{StateConnecting, StateError}
			if got := rec.states(); !equalStates(got, want) {
				t.Errorf("status sequence = %v, want %v", got, want)
			}
		})
	}
}

func TestService_MockModeOverridesTransport(t *testing.T) {
	cfg := Config{Transport: TransportREST, MockMode: true, Timing: fastTiming}
	svc := NewService(cfg, ServiceOptions{})

	if got := svc.Transport(); got != TransportMock {
		t.Errorf("Transport() = %v, want mock", got)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	svc.Disconnect()

	if svc.Config() != cfg {
		t.Errorf("Config() = %+v, want %+v", svc.Config(), cfg)
	}
}

func TestService_ConnectFailureDetail(t *testing.T) {
	drv := newFakeDriver()
	drv.failures = []error{&ConnectError{Detail: "health check failed: HTTP 503"}}
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})

	err := svc.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	want := Status{State: StateError, Detail: "health check failed: HTTP 503"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestService_DisconnectIdempotent(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	emit := drv.emitter(0)

	svc.Disconnect()
	svc.Disconnect()

	if got := rec.count(StateDisconnected); got != 1 {
		t.Errorf("disconnected emitted %d times, want 1", got)
	}
	if got := drv.link(0).closes.Load(); got != 1 {
		t.Errorf("link closed %d times, want 1", got)
	}

	emit.Data(telemetry.Sample{Moisture: telemetry.Float(40)})
	if got := rec.sampleCount(); got != 0 {
		t.Errorf("received %d samples after Disconnect, want 0", got)
	}
}

func TestService_DisconnectWhenIdle(t *testing.T) {
	svc := NewService(Config{}, ServiceOptions{Drivers: newFakeDriver().factory()})
	rec := watchService(svc)

	svc.Disconnect()

	if got := rec.states(); !equalStates(got, []State{StateDisconnected}) {
		t.Errorf("status sequence = %v, want [disconnected]", got)
	}
}

func TestService_LateEventsDropped(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	emit := drv.emitter(0)
	svc.Disconnect()
	before := len(rec.states())

	emit.Connected("late")
	emit.Lost("late")
	emit.Data(telemetry.Sample{Light: telemetry.Float(1)})
	emit.Error(&StreamError{Detail: "late"})

	if got := len(rec.states()); got != before {
		t.Errorf("late status events delivered: %v", rec.states()[before:])
	}
	if rec.sampleCount() != 0 || len(rec.errors()) != 0 {
		t.Error("late data or error events delivered")
	}
	if got := svc.Status().State; got != StateDisconnected {
		t.Errorf("Status() = %v, want disconnected", got)
	}
}

func TestService_DisconnectDuringConnect(t *testing.T) {
	drv := newFakeDriver()
	drv.block = make(chan struct{})
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	done := make(chan error, 1)
	go func() { done <- svc.Connect(context.Background()) }()
	waitFor(t, time.Second, "Open", func() bool { return drv.openCount() == 1 })

	svc.Disconnect()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnect) {
			t.Errorf("Connect() error = %v, want ErrConnect", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect() did not return after Disconnect")
	}

	if got := rec.states(); !equalStates(got, []State{StateConnecting, StateDisconnected}) {
		t.Errorf("status sequence = %v, want [connecting disconnected]", got)
	}
}

func TestService_ConnectContextCancelled(t *testing.T) {
	svc := NewService(Config{Timing: Timing{MockHandshake: time.Hour}}, ServiceOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.Connect(ctx)
	var ce *ConnectError
	if !errors.As(err, &ce) || ce.Detail != "Mock handshake aborted" {
		t.Fatalf("Connect() error = %v, want Mock handshake aborted", err)
	}
	if got := svc.Status(); got.State != StateError || got.Detail != "Mock handshake aborted" {
		t.Errorf("Status() = %+v", got)
	}
}

// =============================================================================
// Stream Event Tests
// =============================================================================

func TestService_LostThenReconnect(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	drv.emitter(0).Lost("WebSocket closed")

	want := Status{State: StateDisconnected, Detail: "WebSocket closed"}
	if got := svc.Status(); got != want {
		t.Fatalf("Status() = %+v, want %+v", got, want)
	}

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if got := drv.link(0).closes.Load(); got != 1 {
		t.Errorf("stale link closed %d times, want 1", got)
	}
	if got := drv.openCount(); got != 2 {
		t.Errorf("driver opened %d times, want 2", got)
	}

	// The replaced link can no longer emit.
	drv.emitter(0).Data(telemetry.Sample{Moisture: telemetry.Float(1)})
	drv.emitter(1).Data(telemetry.Sample{Moisture: telemetry.Float(2)})
	if got := rec.sampleCount(); got != 1 {
		t.Errorf("samples = %d, want 1", got)
	}

	svc.Disconnect()
	if got := rec.count(StateDisconnected); got != 2 {
		t.Errorf("disconnected emitted %d times, want 2", got)
	}
}

func TestService_StreamErrorKeepsConnection(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	drv.emitter(0).Error(&StreamError{Detail: "malformed"})

	errs := rec.errors()
	if len(errs) != 1 || !errors.Is(errs[0], ErrStream) {
		t.Errorf("errors = %v, want one ErrStream", errs)
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
}

func TestService_Unsubscribe(t *testing.T) {
	drv := newFakeDriver()
	svc := NewService(Config{}, ServiceOptions{Drivers: drv.factory()})

	var first, second int
	unsub := svc.OnData(func(telemetry.Sample) { first++ })
	svc.OnData(func(telemetry.Sample) { second++ })

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	emit := drv.emitter(0)

	emit.Data(telemetry.Sample{})
	unsub()
	unsub()
	emit.Data(telemetry.Sample{})

	if first != 1 || second != 2 {
		t.Errorf("deliveries = (%d, %d), want (1, 2)", first, second)
	}
}
