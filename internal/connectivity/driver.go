package connectivity

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// Emitter receives events from a Driver. It is implemented by the Service
// session that opened the driver; events reported after the session is torn
// down are dropped.
type Emitter interface {
	// Connected reports the link is live.
	Connected(detail string)

	// Lost reports a previously live link has gone away.
	Lost(detail string)

	// Data reports one telemetry sample.
	Data(s telemetry.Sample)

	// Error reports a non-fatal stream problem.
	Error(err error)
}

// Driver opens one kind of telemetry link.
type Driver interface {
	Transport() Transport

	// Open establishes the link and starts streaming.
	//
	// Open blocks until the link is live (after calling emit.Connected) or
	// has failed. ctx bounds only the handshake; the streaming lifetime ends
	// when the returned Closer is closed. On failure Open releases anything
	// it acquired and returns a *ConnectError or a configuration error.
	Open(ctx context.Context, emit Emitter) (io.Closer, error)
}

// loggerAware is implemented by drivers whose client libraries log from
// their own goroutines.
type loggerAware interface {
	useLogger(Logger)
}

// DriverFactory builds the Driver for a Config.
type DriverFactory func(cfg Config) (Driver, error)

// NewDriver selects the driver for cfg.EffectiveTransport().
//
// Missing transport settings are reported here, before any network attempt.
func NewDriver(cfg Config) (Driver, error) {
	cfg = cfg.withDefaults()

	switch cfg.EffectiveTransport() {
	case TransportMock:
		return newMockDriver(cfg), nil
	case TransportREST:
		if strings.TrimSpace(cfg.RESTBaseURL) == "" {
			return nil, ErrMissingRESTURL
		}
		return newRESTDriver(cfg), nil
	case TransportWebSocket:
		if strings.TrimSpace(cfg.WSURL) == "" {
			return nil, ErrMissingWebSocketURL
		}
		return newWebSocketDriver(cfg), nil
	case TransportMQTT:
		if strings.TrimSpace(cfg.MQTTBrokerURL) == "" {
			return nil, ErrMissingBrokerURL
		}
		d, err := newMQTTDriver(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
	}
}

// streamLoop runs a driver's streaming goroutine and stops it on Close.
type streamLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	stop   func()
}

// startLoop runs fn in a goroutine with a context cancelled by Close.
// stop, if set, runs after cancellation and before Close waits for fn to
// return; use it to unblock fn (e.g. close a socket it is reading).
func startLoop(fn func(ctx context.Context), stop func()) *streamLoop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &streamLoop{
		cancel: cancel,
		done:   make(chan struct{}),
		stop:   stop,
	}
	go func() {
		defer close(l.done)
		fn(ctx)
	}()
	return l
}

// Close cancels the loop and waits for it to exit. Safe to call more than once.
func (l *streamLoop) Close() error {
	l.once.Do(func() {
		l.cancel()
		if l.stop != nil {
			l.stop()
		}
		<-l.done
	})
	return nil
}

// joinURL joins base and path with exactly one slash between them.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
