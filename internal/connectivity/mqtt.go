package connectivity

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/plantpot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// mqttDriver subscribes to the pot's telemetry topic.
//
// paho's own reconnect is disabled: a lost broker connection is reported
// as StateDisconnected and the Controller decides when to retry.
type mqttDriver struct {
	brokerURL      string
	topic          string
	username       string
	password       string
	deviceID       string
	connectTimeout time.Duration
	logger         Logger
}

func newMQTTDriver(cfg Config) (*mqttDriver, error) {
	if err := mqtt.ValidateBrokerURL(cfg.MQTTBrokerURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := mqtt.ValidateTopicFilter(cfg.MQTTTopic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &mqttDriver{
		brokerURL:      cfg.MQTTBrokerURL,
		topic:          cfg.MQTTTopic,
		username:       cfg.MQTTUsername,
		password:       cfg.MQTTPassword,
		deviceID:       cfg.DeviceID,
		connectTimeout: cfg.Timing.ConnectTimeout,
		logger:         noopLogger{},
	}, nil
}

func (d *mqttDriver) Transport() Transport { return TransportMQTT }

func (d *mqttDriver) useLogger(l Logger) { d.logger = l }

func (d *mqttDriver) Open(ctx context.Context, emit Emitter) (io.Closer, error) {
	client, err := mqtt.Connect(ctx, mqtt.Options{
		BrokerURL:      d.brokerURL,
		ClientID:       newClientID(),
		Username:       d.username,
		Password:       d.password,
		ConnectTimeout: d.connectTimeout,
		AutoReconnect:  false,
		Logger:         d.logger,
		OnConnectionLost: func(error) {
			emit.Lost("MQTT disconnected")
		},
	})
	if err != nil {
		return nil, &ConnectError{Detail: "MQTT connect failed", Err: err}
	}

	emit.Connected("MQTT connected")

	err = client.Subscribe(d.topic, 0, func(_ string, payload []byte) error {
		sample, err := telemetry.DecodeSample(payload, d.deviceID, time.Now())
		if err != nil {
			emit.Error(&StreamError{Detail: "malformed MQTT message", Err: err})
			return nil
		}
		emit.Data(sample)
		return nil
	})
	if err != nil {
		emit.Error(&StreamError{Detail: "MQTT subscribe failed", Err: err})
	}

	return client, nil
}

// newClientID returns a short random client id, e.g. "plantpot-1a2b3c4d".
func newClientID() string {
	return "plantpot-" + uuid.NewString()[:8]
}
