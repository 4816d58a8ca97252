// plantpot-sim - simulated plant pot
//
// Publishes generated telemetry to an MQTT topic at a fixed interval so the
// daemon's MQTT transport can be exercised without hardware.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/plantpot-core/internal/infrastructure/config"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

var version = "dev"

// options holds the simulator's command-line settings.
type options struct {
	BrokerURL   string
	Topic       string
	DeviceID    string
	Username    string
	Password    string
	Interval    time.Duration
	Count       int
	Seed        uint64
	ConnectWait time.Duration
	LogLevel    string
}

// publisher is the part of *mqtt.Client the simulator needs.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(config.LoggingConfig{Level: opts.LogLevel, Format: "text", Output: "stdout"}, version)
	if err := run(ctx, opts, log, dialBroker); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads options from args, falling back to PLANTPOT_SIM_* variables
// for defaults.
func parseFlags(args []string, getenv func(string) string, output io.Writer) (options, error) {
	envOr := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	fs := flag.NewFlagSet("plantpot-sim", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	fs.StringVar(&opts.BrokerURL, "broker", envOr("PLANTPOT_SIM_BROKER", "tcp://127.0.0.1:1883"), "MQTT broker URL")
	fs.StringVar(&opts.Topic, "topic", envOr("PLANTPOT_SIM_TOPIC", mqtt.DefaultTelemetryTopic), "telemetry topic")
	fs.StringVar(&opts.DeviceID, "device-id", envOr("PLANTPOT_SIM_DEVICE_ID", "sim-pot"), "device identifier")
	fs.StringVar(&opts.Username, "username", getenv("PLANTPOT_SIM_USERNAME"), "MQTT username")
	fs.StringVar(&opts.Password, "password", getenv("PLANTPOT_SIM_PASSWORD"), "MQTT password")
	fs.DurationVar(&opts.Interval, "interval", 2*time.Second, "publish interval")
	fs.IntVar(&opts.Count, "count", 0, "stop after this many samples (0 runs until interrupted)")
	fs.Uint64Var(&opts.Seed, "seed", 0, "generator seed (0 picks one)")
	fs.DurationVar(&opts.ConnectWait, "connect-wait", 30*time.Second, "give up connecting after this long")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.Interval <= 0 {
		return options{}, fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}
	if opts.Count < 0 {
		return options{}, fmt.Errorf("count must not be negative, got %d", opts.Count)
	}
	if err := mqtt.ValidateBrokerURL(opts.BrokerURL); err != nil {
		return options{}, err
	}
	if err := mqtt.ValidatePublishTopic(opts.Topic); err != nil {
		return options{}, err
	}
	return opts, nil
}

// dialFunc opens a publisher for opts.
type dialFunc func(ctx context.Context, opts options) (publisher, error)

func dialBroker(ctx context.Context, opts options) (publisher, error) {
	client, err := mqtt.Connect(ctx, mqtt.Options{
		BrokerURL:      opts.BrokerURL,
		ClientID:       "plantpot-sim-" + opts.DeviceID,
		Username:       opts.Username,
		Password:       opts.Password,
		ConnectTimeout: 5 * time.Second,
		AutoReconnect:  true,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// run connects with exponential backoff, then publishes until ctx is done or
// Count samples have been sent.
func run(ctx context.Context, opts options, log *logging.Logger, dial dialFunc) error {
	pub, err := connectWithRetry(ctx, opts, log, dial)
	if err != nil {
		return err
	}
	defer pub.Close() //nolint:errcheck // Best effort on shutdown

	log.Info("simulator publishing",
		"broker", opts.BrokerURL,
		"topic", opts.Topic,
		"device_id", opts.DeviceID,
		"interval", opts.Interval,
	)

	gen := telemetry.NewGenerator(opts.DeviceID, opts.Seed)
	return publishLoop(ctx, opts, log, pub, gen)
}

func connectWithRetry(ctx context.Context, opts options, log *logging.Logger, dial dialFunc) (publisher, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = opts.ConnectWait

	var pub publisher
	operation := func() error {
		p, err := dial(ctx, opts)
		if err != nil {
			return err
		}
		pub = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("broker not reachable, retrying", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.BrokerURL, err)
	}
	return pub, nil
}

func publishLoop(ctx context.Context, opts options, log *logging.Logger, pub publisher, gen *telemetry.Generator) error {
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	sent := 0
	for {
		sample := gen.Next()
		payload, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("encoding sample: %w", err)
		}
		if err := pub.Publish(opts.Topic, payload, 1, false); err != nil {
			// The client reconnects on its own; skip this tick.
			log.Warn("publish failed", "error", err)
		} else {
			sent++
			log.Debug("sample published",
				"moisture", *sample.Moisture,
				"temperature", *sample.Temperature,
				"light", *sample.Light,
			)
		}
		if opts.Count > 0 && sent >= opts.Count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
