package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// maxTelemetryBody caps a single /telemetry response.
const maxTelemetryBody = 64 << 10

// Circuit breaker settings for telemetry polls.
const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 10 * time.Second
)

// restDriver polls a device's HTTP endpoints:
//
//	GET {base}/health    -> any 2xx
//	GET {base}/telemetry -> JSON sample
type restDriver struct {
	healthURL    string
	telemetryURL string
	deviceID     string
	interval     time.Duration
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker
}

func newRESTDriver(cfg Config) *restDriver {
	return &restDriver{
		healthURL:    joinURL(cfg.RESTBaseURL, "/health"),
		telemetryURL: joinURL(cfg.RESTBaseURL, "/telemetry"),
		deviceID:     cfg.DeviceID,
		interval:     cfg.Timing.RESTPollInterval,
		client:       &http.Client{Timeout: cfg.Timing.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "rest-telemetry",
			Timeout: breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
		}),
	}
}

func (d *restDriver) Transport() Transport { return TransportREST }

func (d *restDriver) Open(ctx context.Context, emit Emitter) (io.Closer, error) {
	if err := d.checkHealth(ctx); err != nil {
		return nil, err
	}

	emit.Connected("REST device reachable")

	return startLoop(func(ctx context.Context) {
		d.poll(ctx, emit)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.poll(ctx, emit)
			}
		}
	}, nil), nil
}

func (d *restDriver) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.healthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid REST base URL: %w", ErrConfiguration, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &ConnectError{Detail: "health check failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ConnectError{Detail: fmt.Sprintf("health check failed: HTTP %d", resp.StatusCode)}
	}
	return nil
}

// poll fetches one sample. Failures are reported as stream errors; a
// cancelled ctx means the link is being torn down and nothing is reported.
func (d *restDriver) poll(ctx context.Context, emit Emitter) {
	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.fetch(ctx)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if _, ok := err.(*StreamError); !ok {
			err = &StreamError{Detail: "telemetry failed", Err: err}
		}
		emit.Error(err)
		return
	}

	sample, err := telemetry.DecodeSample(result.([]byte), d.deviceID, time.Now())
	if err != nil {
		emit.Error(&StreamError{Detail: "malformed telemetry response", Err: err})
		return
	}
	emit.Data(sample)
}

func (d *restDriver) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.telemetryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTelemetryBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StreamError{Detail: fmt.Sprintf("telemetry failed: HTTP %d", resp.StatusCode)}
	}
	return body, nil
}
