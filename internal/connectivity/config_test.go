package connectivity

import (
	"errors"
	"testing"
)

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"mock", TransportMock, false},
		{"REST", TransportREST, false},
		{" ws ", TransportWebSocket, false},
		{"mqtt", TransportMQTT, false},
		{"", TransportMock, false},
		{"serial", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTransport(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTransport(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownTransport) {
			t.Errorf("ParseTransport(%q) error = %v, want ErrUnknownTransport", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseTransport(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_EffectiveTransport(t *testing.T) {
	tests := []struct {
		cfg  Config
		want Transport
	}{
		{Config{}, TransportMock},
		{Config{Transport: TransportMQTT}, TransportMQTT},
		{Config{Transport: TransportMQTT, MockMode: true}, TransportMock},
	}

	for _, tt := range tests {
		if got := tt.cfg.EffectiveTransport(); got != tt.want {
			t.Errorf("%+v.EffectiveTransport() = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Timing: Timing{MockInterval: 1}}.withDefaults()

	if cfg.DeviceID != DefaultDeviceID {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, DefaultDeviceID)
	}
	if cfg.MQTTTopic != DefaultMQTTTopic {
		t.Errorf("MQTTTopic = %q, want %q", cfg.MQTTTopic, DefaultMQTTTopic)
	}
	if cfg.Timing.MockHandshake != DefaultMockHandshake {
		t.Errorf("MockHandshake = %v", cfg.Timing.MockHandshake)
	}
	if cfg.Timing.MockInterval != 1 {
		t.Errorf("MockInterval = %v, explicit value overwritten", cfg.Timing.MockInterval)
	}
	if cfg.Timing.RESTPollInterval != DefaultRESTPollInterval {
		t.Errorf("RESTPollInterval = %v", cfg.Timing.RESTPollInterval)
	}
}

func TestNewDriver(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    Transport
		wantErr error
	}{
		{"mock", Config{Transport: TransportMock}, TransportMock, nil},
		{"rest", Config{Transport: TransportREST, RESTBaseURL: "http://pot.local"}, TransportREST, nil},
		{"rest blank url", Config{Transport: TransportREST, RESTBaseURL: "   "}, "", ErrMissingRESTURL},
		{"ws", Config{Transport: TransportWebSocket, WSURL: "ws://pot.local/ws"}, TransportWebSocket, nil},
		{"mqtt", Config{Transport: TransportMQTT, MQTTBrokerURL: "tcp://broker:1883"}, TransportMQTT, nil},
		{"mqtt bad topic", Config{Transport: TransportMQTT, MQTTBrokerURL: "tcp://broker:1883", MQTTTopic: "a/#/b"}, "", ErrConfiguration},
		{"mock mode", Config{Transport: TransportWebSocket, MockMode: true}, TransportMock, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDriver(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewDriver() error = %v, want %v", err, tt.wantErr)
				}
				if d != nil {
					t.Errorf("NewDriver() driver = %v, want nil", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDriver() error = %v", err)
			}
			if got := d.Transport(); got != tt.want {
				t.Errorf("Transport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://pot.local", "/health", "http://pot.local/health"},
		{"http://pot.local/", "/health", "http://pot.local/health"},
		{"http://pot.local//", "telemetry", "http://pot.local/telemetry"},
		{"http://pot.local/api", "//telemetry", "http://pot.local/api/telemetry"},
	}

	for _, tt := range tests {
		if got := joinURL(tt.base, tt.path); got != tt.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestErrors_Taxonomy(t *testing.T) {
	cause := errors.New("refused")
	ce := &ConnectError{Detail: "MQTT connect failed", Err: cause}
	if !errors.Is(ce, ErrConnect) || !errors.Is(ce, cause) {
		t.Errorf("ConnectError does not unwrap to ErrConnect and cause")
	}
	if ce.Error() != "MQTT connect failed: refused" {
		t.Errorf("Error() = %q", ce.Error())
	}
	if got := statusDetail(ce); got != "MQTT connect failed" {
		t.Errorf("statusDetail() = %q", got)
	}

	se := &StreamError{Detail: "telemetry failed: HTTP 500"}
	if !errors.Is(se, ErrStream) || errors.Is(se, ErrConnect) {
		t.Errorf("StreamError classification wrong")
	}
	if se.Error() != "telemetry failed: HTTP 500" {
		t.Errorf("Error() = %q", se.Error())
	}

	if !errors.Is(ErrMissingBrokerURL, ErrConfiguration) {
		t.Error("ErrMissingBrokerURL does not wrap ErrConfiguration")
	}
}
