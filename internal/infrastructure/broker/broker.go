package broker

import (
	"fmt"
	"log/slog"
	"sync"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

const listenerID = "plantpot-tcp"

// Config contains embedded broker settings.
type Config struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:1883".
	Address string

	// Username and Password, when set, are the only accepted credentials.
	// Empty means anonymous access.
	Username string
	Password string
}

// Broker is a running embedded MQTT broker.
//
// Thread Safety: All methods are safe for concurrent use.
type Broker struct {
	server  *mqttserver.Server
	address string

	mu     sync.RWMutex
	closed bool
}

// Start creates the broker, binds its TCP listener and begins serving.
//
// Parameters:
//   - cfg: Listener address and optional credentials
//   - logger: Destination for broker logs (nil uses slog.Default)
//
// Returns:
//   - *Broker: Serving broker
//   - error: ErrStartFailed wrapping the cause
func Start(cfg Config, logger *slog.Logger) (*Broker, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrStartFailed)
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := mqttserver.New(&mqttserver.Options{
		InlineClient: true,
		Logger:       logger.With("component", "broker"),
	})

	if err := addAuthHook(server, cfg); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrStartFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      listenerID,
		Address: cfg.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		_ = server.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrStartFailed, cfg.Address, err)
	}

	if err := server.Serve(); err != nil {
		_ = server.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	return &Broker{
		server:  server,
		address: cfg.Address,
	}, nil
}

// addAuthHook installs open access, or a single-user ledger when credentials are configured.
func addAuthHook(server *mqttserver.Server, cfg Config) error {
	if cfg.Username == "" {
		return server.AddHook(new(auth.AllowHook), nil)
	}
	return server.AddHook(new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{
			Auth: auth.AuthRules{
				{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true},
			},
		},
	})
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// URL returns a broker URL suitable for paho clients.
func (b *Broker) URL() string {
	return "tcp://" + b.address
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.server.Publish(topic, payload, retain, qos)
}

// ClientCount returns the number of connected clients, excluding the inline client.
func (b *Broker) ClientCount() int {
	count := 0
	for _, cl := range b.server.Clients.GetAll() {
		if !cl.Net.Inline && !cl.Closed() {
			count++
		}
	}
	return count
}

// DisconnectClient drops the client with the given ID, as a broker restart
// would. Returns false if no such client is connected.
func (b *Broker) DisconnectClient(clientID string) bool {
	cl, ok := b.server.Clients.Get(clientID)
	if !ok {
		return false
	}
	cl.Stop(fmt.Errorf("disconnected by broker"))
	return true
}

// Close stops all listeners and disconnects every client. Safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.server.Close(); err != nil {
		return fmt.Errorf("closing broker: %w", err)
	}
	return nil
}
