package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a Client.
type Options struct {
	// BrokerURL is the broker address, e.g. "tcp://127.0.0.1:1883" or
	// "wss://broker.example.com/mqtt".
	BrokerURL string

	// ClientID identifies the session to the broker. Must be unique per broker.
	ClientID string

	Username string
	Password string

	// ConnectTimeout bounds the handshake. Zero uses 10s.
	ConnectTimeout time.Duration

	// KeepAlive is the PINGREQ interval. Zero uses 30s.
	KeepAlive time.Duration

	// AutoReconnect lets paho redial after a lost connection and restore
	// subscriptions. When false, a lost connection is final.
	AutoReconnect bool

	// OnConnectionLost is called (from a paho goroutine) when an established
	// connection drops. Not called for Close.
	OnConnectionLost func(err error)

	// Logger receives handler errors and recovered panics. Optional.
	Logger Logger
}

// secureSchemes are dialled with TLS.
var secureSchemes = map[string]bool{
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"wss":   true,
}

// supportedSchemes lists the URL schemes paho can dial.
var supportedSchemes = map[string]bool{
	"tcp":   true,
	"mqtt":  true,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"ws":    true,
	"wss":   true,
}

// ValidateBrokerURL checks the URL parses and uses a supported scheme.
func ValidateBrokerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBrokerURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBrokerURL, err)
	}
	if !supportedSchemes[u.Scheme] {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidBrokerURL)
	}
	return nil
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Reconnect behaviour
//   - TLS configuration for secure schemes
//   - Clean session mode
func buildClientOptions(opts Options) (*pahomqtt.ClientOptions, error) {
	if err := ValidateBrokerURL(opts.BrokerURL); err != nil {
		return nil, err
	}
	u, _ := url.Parse(opts.BrokerURL) //nolint:errcheck // Validated above

	po := pahomqtt.NewClientOptions()
	po.AddBroker(opts.BrokerURL)
	po.SetClientID(opts.ClientID)

	// Authentication (if credentials provided)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	po.SetCleanSession(true)

	po.SetAutoReconnect(opts.AutoReconnect)
	po.SetConnectRetry(false)

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	po.SetConnectTimeout(connectTimeout)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	po.SetKeepAlive(keepAlive)

	if secureSchemes[u.Scheme] {
		po.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return po, nil
}
