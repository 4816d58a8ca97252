package connectivity

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/plantpot-core/internal/infrastructure/broker"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/logging"
)

func startTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	b, err := broker.Start(broker.Config{Address: addr}, logging.Discard().Logger)
	if err != nil {
		t.Fatalf("broker.Start() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func mqttService(brokerURL string) *Service {
	return NewService(Config{
		Transport:     TransportMQTT,
		MQTTBrokerURL: brokerURL,
		MQTTTopic:     "plantpot/telemetry",
		DeviceID:      "pot-mqtt",
		Timing:        fastTiming,
	}, ServiceOptions{})
}

// =============================================================================
// MQTT Driver Tests
// =============================================================================

func TestMQTT_ReceivesTelemetry(t *testing.T) {
	b := startTestBroker(t)
	svc := mqttService(b.URL())
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	want := Status{State: StateConnected, Detail: "MQTT connected"}
	if got := svc.Status(); got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}

	if err := b.Publish("plantpot/telemetry", []byte(`{"moisture":18,"temperature":30,"light":150}`), false, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish("plantpot/other", []byte(`{"moisture":99}`), false, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, 2*time.Second, "sample", func() bool { return rec.sampleCount() == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := rec.sampleCount(); got != 1 {
		t.Errorf("samples = %d, want 1 (other topics ignored)", got)
	}
	rec.mu.Lock()
	s := rec.samples[0]
	rec.mu.Unlock()
	if s.DeviceID != "pot-mqtt" || *s.Moisture != 18 {
		t.Errorf("sample = %+v", s)
	}
}

func TestMQTT_MalformedMessage(t *testing.T) {
	b := startTestBroker(t)
	svc := mqttService(b.URL())
	rec := watchService(svc)

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	_ = b.Publish("plantpot/telemetry", []byte("{broken"), false, 0)

	waitFor(t, 2*time.Second, "stream error", func() bool { return len(rec.errors()) == 1 })
	if !errors.Is(rec.errors()[0], ErrStream) {
		t.Errorf("error = %v, want ErrStream", rec.errors()[0])
	}
	if !svc.Status().IsConnected() {
		t.Errorf("Status() = %v, want connected", svc.Status())
	}
}

func TestMQTT_BrokerUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	svc := mqttService("tcp://" + addr)
	err = svc.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Connect() error = %v, want ErrConnect", err)
	}
	if got := svc.Status().Detail; got != "MQTT connect failed" {
		t.Errorf("Status().Detail = %q", got)
	}
}

func TestMQTT_BrokerLoss(t *testing.T) {
	b := startTestBroker(t)
	svc := mqttService(b.URL())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer svc.Disconnect()

	b.Close()

	want := Status{State: StateDisconnected, Detail: "MQTT disconnected"}
	waitFor(t, 3*time.Second, "connection loss", func() bool { return svc.Status() == want })
}

func TestMQTT_DisconnectReleasesClient(t *testing.T) {
	b := startTestBroker(t)
	svc := mqttService(b.URL())

	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, 2*time.Second, "client registered", func() bool { return b.ClientCount() == 1 })

	svc.Disconnect()
	waitFor(t, 2*time.Second, "client released", func() bool { return b.ClientCount() == 0 })
}

func TestMQTT_DriverUsesServiceLogger(t *testing.T) {
	logger := &hookLogger{onInfo: func(string) {}}
	svc := NewService(Config{
		Transport:     TransportMQTT,
		MQTTBrokerURL: "tcp://127.0.0.1:1883",
		MQTTTopic:     "plantpot/telemetry",
		DeviceID:      "pot-mqtt",
		Timing:        fastTiming,
	}, ServiceOptions{Logger: logger})

	drv, ok := svc.driver.(*mqttDriver)
	if !ok {
		t.Fatalf("driver = %T, want *mqttDriver", svc.driver)
	}
	if drv.logger != Logger(logger) {
		t.Errorf("driver logger = %T, want the service logger", drv.logger)
	}
}

func TestNewClientID(t *testing.T) {
	a, b := newClientID(), newClientID()
	if !strings.HasPrefix(a, "plantpot-") || len(a) != len("plantpot-")+8 {
		t.Errorf("newClientID() = %q", a)
	}
	if a == b {
		t.Errorf("newClientID() returned %q twice", a)
	}
}
