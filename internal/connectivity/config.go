package connectivity

import (
	"fmt"
	"strings"
	"time"
)

// Transport names a telemetry transport.
type Transport string

const (
	TransportMock      Transport = "mock"
	TransportREST      Transport = "rest"
	TransportWebSocket Transport = "ws"
	TransportMQTT      Transport = "mqtt"
)

// ParseTransport converts a configured transport name, case-insensitively.
func ParseTransport(s string) (Transport, error) {
	t := Transport(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TransportMock, TransportREST, TransportWebSocket, TransportMQTT:
		return t, nil
	case "":
		return TransportMock, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
	}
}

// Defaults applied to zero-valued Config fields.
const (
	DefaultDeviceID  = "demo-device"
	DefaultMQTTTopic = "plantpot/telemetry"

	DefaultMockHandshake    = 900 * time.Millisecond
	DefaultMockInterval     = 2500 * time.Millisecond
	DefaultRESTPollInterval = 2 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
)

// Timing holds transport timings. Zero fields use the defaults above.
type Timing struct {
	MockHandshake    time.Duration
	MockInterval     time.Duration
	RESTPollInterval time.Duration

	// RequestTimeout bounds each REST request.
	RequestTimeout time.Duration

	// ConnectTimeout bounds WebSocket and MQTT handshakes, and each
	// Controller-initiated reconnect attempt.
	ConnectTimeout time.Duration
}

// Config selects a transport and carries its settings.
//
// Config is a comparable value; a Controller replaces its Service whenever
// the Config it is given differs from the current one.
type Config struct {
	Transport Transport

	// MockMode forces the mock transport regardless of Transport.
	MockMode bool

	RESTBaseURL string
	WSURL       string

	MQTTBrokerURL string
	MQTTTopic     string
	MQTTUsername  string
	MQTTPassword  string

	// DeviceID is stamped on samples that do not carry their own.
	DeviceID string

	Timing Timing
}

// EffectiveTransport returns the transport a Service will actually use.
// A zero Transport means mock.
func (c Config) EffectiveTransport() Transport {
	if c.MockMode || c.Transport == "" {
		return TransportMock
	}
	return c.Transport
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.DeviceID == "" {
		c.DeviceID = DefaultDeviceID
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = DefaultMQTTTopic
	}
	t := &c.Timing
	if t.MockHandshake <= 0 {
		t.MockHandshake = DefaultMockHandshake
	}
	if t.MockInterval <= 0 {
		t.MockInterval = DefaultMockInterval
	}
	if t.RESTPollInterval <= 0 {
		t.RESTPollInterval = DefaultRESTPollInterval
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = DefaultRequestTimeout
	}
	if t.ConnectTimeout <= 0 {
		t.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}
