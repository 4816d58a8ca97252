package connectivity

import (
	"context"
	"io"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// mockDriver generates telemetry locally. It never fails except when the
// handshake is aborted.
type mockDriver struct {
	handshake time.Duration
	interval  time.Duration
	gen       *telemetry.Generator
}

func newMockDriver(cfg Config) *mockDriver {
	return &mockDriver{
		handshake: cfg.Timing.MockHandshake,
		interval:  cfg.Timing.MockInterval,
		gen:       telemetry.NewGenerator(cfg.DeviceID, 0),
	}
}

func (d *mockDriver) Transport() Transport { return TransportMock }

func (d *mockDriver) Open(ctx context.Context, emit Emitter) (io.Closer, error) {
	handshake := time.NewTimer(d.handshake)
	defer handshake.Stop()

	select {
	case <-ctx.Done():
		return nil, &ConnectError{Detail: "Mock handshake aborted", Err: ctx.Err()}
	case <-handshake.C:
	}

	emit.Connected("Mock device connected")
	emit.Data(d.gen.Next())

	return startLoop(func(ctx context.Context) {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emit.Data(d.gen.Next())
			}
		}
	}, nil), nil
}
