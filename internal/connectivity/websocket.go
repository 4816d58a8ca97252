package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// closeWriteWait bounds sending the close frame on teardown.
const closeWriteWait = time.Second

// wsDriver reads JSON telemetry frames from a WebSocket server.
type wsDriver struct {
	url      string
	deviceID string
	dialer   *websocket.Dialer
}

func newWebSocketDriver(cfg Config) *wsDriver {
	return &wsDriver{
		url:      cfg.WSURL,
		deviceID: cfg.DeviceID,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timing.ConnectTimeout,
		},
	}
}

func (d *wsDriver) Transport() Transport { return TransportWebSocket }

func (d *wsDriver) Open(ctx context.Context, emit Emitter) (io.Closer, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &ConnectError{Detail: "WebSocket failed", Err: err}
	}

	emit.Connected("WebSocket connected")

	return startLoop(func(ctx context.Context) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					emit.Lost("WebSocket closed")
				}
				return
			}

			sample, err := telemetry.DecodeSample(msg, d.deviceID, time.Now())
			if err != nil {
				emit.Error(&StreamError{Detail: "malformed WebSocket message", Err: err})
				continue
			}
			emit.Data(sample)
		}
	}, func() {
		_ = conn.WriteControl( //nolint:errcheck // Peer may already be gone
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteWait),
		)
		_ = conn.Close() //nolint:errcheck // Unblocks ReadMessage
	}), nil
}
