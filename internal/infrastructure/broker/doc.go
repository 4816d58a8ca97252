// Package broker runs an embedded MQTT broker (mochi-mqtt) inside the
// plantpot process.
//
// It exists for single-box deployments where the pot publishes straight to
// the service host, and for tests that need a real broker without an
// external Mosquitto. When enabled, the device MQTT transport and
// cmd/plantpot-sim can point at Broker.URL().
//
// Usage:
//
//	b, err := broker.Start(broker.Config{Address: "127.0.0.1:1883"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
package broker
