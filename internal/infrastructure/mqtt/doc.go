// Package mqtt provides the MQTT client used by plantpot.
//
// This package manages:
//   - Connecting to a broker with a context-bounded handshake
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Optional paho auto-reconnect with subscription restoration
//
// # Usage
//
// The device transport subscribes to the pot's telemetry topic and turns
// each payload into a sample. Reconnection policy lives above this package,
// so the transport connects with AutoReconnect disabled and is told about
// a lost connection through OnConnectionLost:
//
//	client, err := mqtt.Connect(ctx, mqtt.Options{
//	    BrokerURL:        "tcp://127.0.0.1:1883",
//	    ClientID:         "plantpot-1a2b3c4d",
//	    OnConnectionLost: func(err error) { ... },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.DefaultTelemetryTopic, 0,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// cmd/plantpot-sim uses the same client to publish simulated readings.
//
// # Security Considerations
//
//   - ssl://, tls:// and mqtts:// URLs dial with TLS 1.2 or newer
//   - Credentials are sent only when Username is set
//   - Payloads are not encrypted beyond transport TLS
package mqtt
