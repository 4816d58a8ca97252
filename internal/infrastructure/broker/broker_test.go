package broker

import (
	"errors"
	"net"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/plantpot-core/internal/infrastructure/logging"
)

// freeAddress returns a loopback address with a port nothing is listening on.
func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("releasing free port: %v", err)
	}
	return addr
}

func startBroker(t *testing.T, cfg Config) *Broker {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = freeAddress(t)
	}
	b, err := Start(cfg, logging.Discard().Logger)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func connectPaho(t *testing.T, b *Broker, user, pass string) (pahomqtt.Client, error) {
	t.Helper()
	opts := pahomqtt.NewClientOptions().
		AddBroker(b.URL()).
		SetClientID("broker-test").
		SetUsername(user).
		SetPassword(pass).
		SetAutoReconnect(false).
		SetConnectTimeout(2 * time.Second)
	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(3 * time.Second) {
		return nil, errors.New("connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	t.Cleanup(func() { client.Disconnect(100) })
	return client, nil
}

func TestStart_RequiresAddress(t *testing.T) {
	_, err := Start(Config{}, logging.Discard().Logger)
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("Start() error = %v, want ErrStartFailed", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, err = Start(Config{Address: ln.Addr().String()}, logging.Discard().Logger)
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("Start() error = %v, want ErrStartFailed", err)
	}
}

func TestBroker_URL(t *testing.T) {
	b := startBroker(t, Config{})
	if b.URL() != "tcp://"+b.Address() {
		t.Errorf("URL() = %q, want tcp://%s", b.URL(), b.Address())
	}
}

func TestBroker_InlinePublishReachesSubscriber(t *testing.T) {
	b := startBroker(t, Config{})

	client, err := connectPaho(t, b, "", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	received := make(chan string, 1)
	token := client.Subscribe("plantpot/telemetry", 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- string(msg.Payload())
	})
	if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe failed: %v", token.Error())
	}

	if err := b.Publish("plantpot/telemetry", []byte(`{"moisture":41}`), false, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `{"moisture":41}` {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}

	if n := b.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestBroker_Credentials(t *testing.T) {
	b := startBroker(t, Config{Username: "pot", Password: "secret"})

	if _, err := connectPaho(t, b, "pot", "wrong"); err == nil {
		t.Error("connect with wrong password succeeded")
	}
	if _, err := connectPaho(t, b, "pot", "secret"); err != nil {
		t.Errorf("connect with valid credentials: %v", err)
	}
}

func TestBroker_DisconnectClient(t *testing.T) {
	b := startBroker(t, Config{})

	if b.DisconnectClient("nobody") {
		t.Error("DisconnectClient(unknown) = true")
	}

	if _, err := connectPaho(t, b, "", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !b.DisconnectClient("broker-test") {
		t.Error("DisconnectClient(broker-test) = false")
	}
}

func TestBroker_CloseIdempotent(t *testing.T) {
	b, err := Start(Config{Address: freeAddress(t)}, logging.Discard().Logger)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := b.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := b.Publish("x", nil, false, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
}
