package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// AutoConnect starts monitoring once, at construction, as if Connect
	// had been called.
	AutoConnect bool

	// Backoff computes reconnect delays. Zero fields use the defaults.
	Backoff BackoffPolicy

	// ConnectTimeout bounds each automatic reconnect attempt and the
	// AutoConnect attempt. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Drivers builds drivers for every Service. Defaults to NewDriver.
	Drivers DriverFactory

	Logger  Logger
	Metrics *Metrics
}

// Snapshot is a point-in-time view of a Controller.
type Snapshot struct {
	Status       Status            `json:"status"`
	LastError    string            `json:"lastError,omitempty"`
	Reading      telemetry.Reading `json:"reading"`
	IsConnected  bool              `json:"isConnected"`
	IsConnecting bool              `json:"isConnecting"`
	Transport    Transport         `json:"transport"`
	MockMode     bool              `json:"mockMode"`
	Attempt      int               `json:"attempt"`
	NextRetryAt  *time.Time        `json:"nextRetryAt,omitempty"`
}

// Controller turns user intent and status changes into connect and retry
// decisions. It owns one Service at a time and is the only caller of
// Service.Connect besides the user's own Connect.
//
// Reconnects are scheduled with exponential backoff whenever the status
// becomes disconnected or error after the user has started monitoring, and
// never after an explicit Disconnect until Connect is called again.
type Controller struct {
	backoff        BackoffPolicy
	connectTimeout time.Duration
	drivers        DriverFactory
	logger         Logger
	metrics        *Metrics

	// base is cancelled by Close and parents every Controller-initiated attempt.
	base       context.Context
	cancelBase context.CancelFunc

	// reconfigMu serialises Reconfigure and Close, which swap or retire svc.
	reconfigMu sync.Mutex

	// mu is never held while calling into the Service.
	mu                   sync.Mutex
	cfg                  Config
	svc                  *Service
	unsubs               []func()
	attempt              int
	manuallyDisconnected bool
	userHasStarted       bool
	inFlight             int
	timer                *time.Timer
	timerGen             uint64
	retryDelay           time.Duration
	retryAt              time.Time
	status               Status
	lastError            error
	reading              telemetry.Reading
	closed               bool

	statusListeners listenerSet[Status]
	dataListeners   listenerSet[telemetry.Reading]
	errorListeners  listenerSet[error]
}

// NewController creates a Controller bound to cfg.
func NewController(cfg Config, opts ControllerOptions) *Controller {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Drivers == nil {
		opts.Drivers = NewDriver
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backoff:        opts.Backoff.withDefaults(),
		connectTimeout: opts.ConnectTimeout,
		drivers:        opts.Drivers,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		base:           base,
		cancelBase:     cancel,
		cfg:            cfg,
		reading:        telemetry.DefaultReading(cfg.withDefaults().DeviceID),
	}

	svc := c.newService(cfg)
	c.svc = svc
	c.unsubs = c.attach(svc)
	c.status = svc.Status()
	c.metrics.observeState(c.status.State)

	if opts.AutoConnect {
		go func() {
			ctx, cancel := context.WithTimeout(c.base, c.connectTimeout)
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				c.logger.Warn("auto-connect failed", "error", err)
			}
		}()
	}

	return c
}

// OnStatus registers fn for status transitions.
func (c *Controller) OnStatus(fn func(Status)) func() {
	return c.statusListeners.add(fn)
}

// OnData registers fn for the merged reading after each sample.
func (c *Controller) OnData(fn func(telemetry.Reading)) func() {
	return c.dataListeners.add(fn)
}

// OnError registers fn for stream errors.
func (c *Controller) OnError(fn func(error)) func() {
	return c.errorListeners.add(fn)
}

// Connect starts monitoring: it resets the retry state and connects the
// Service. On failure the error is recorded and a reconnect is scheduled.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.userHasStarted = true
	c.manuallyDisconnected = false
	c.lastError = nil
	c.attempt = 0
	c.stopTimerLocked()
	c.inFlight++
	svc := c.svc
	c.mu.Unlock()

	err := svc.Connect(ctx)

	c.mu.Lock()
	c.inFlight--
	if svc != c.svc || (err == nil && (c.manuallyDisconnected || c.closed)) {
		// Replaced, disconnected or closed while the attempt ran; the
		// link it opened belongs to nobody.
		c.mu.Unlock()
		if err == nil {
			svc.Disconnect()
		}
		return err
	}
	if err == nil || errors.Is(err, ErrConnectInProgress) {
		c.mu.Unlock()
		return err
	}
	c.lastError = err
	if c.shouldRetryLocked() && c.timer == nil && c.inFlight == 0 {
		c.scheduleLocked()
	}
	c.mu.Unlock()
	return err
}

// Disconnect stops monitoring. No reconnect is attempted until the next
// Connect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.manuallyDisconnected = true
	c.attempt = 0
	c.stopTimerLocked()
	svc := c.svc
	c.mu.Unlock()

	svc.Disconnect()
}

// Reconfigure replaces the Service when cfg differs from the current Config.
// The old Service is fully torn down before the new one is built. No
// reconnect is triggered; the new Service starts idle.
func (c *Controller) Reconfigure(cfg Config) error {
	c.reconfigMu.Lock()
	defer c.reconfigMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if cfg == c.cfg {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.attempt = 0
	old, unsubs := c.svc, c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	old.Disconnect()

	svc := c.newService(cfg)
	newUnsubs := c.attach(svc)

	c.mu.Lock()
	c.cfg = cfg
	c.svc = svc
	c.unsubs = newUnsubs
	c.lastError = nil
	c.status = svc.Status()
	st := c.status
	c.mu.Unlock()

	c.logger.Info("connection reconfigured", "transport", svc.Transport())
	c.metrics.observeState(st.State)
	c.statusListeners.emit(st)
	return nil
}

// Close disconnects and stops all retries. Connect and Reconfigure return
// ErrClosed afterwards.
func (c *Controller) Close() {
	c.reconfigMu.Lock()
	defer c.reconfigMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.manuallyDisconnected = true
	c.stopTimerLocked()
	svc, unsubs := c.svc, c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	c.cancelBase()
	svc.Disconnect()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RetryDelay returns the delay of the pending reconnect, or 0 if none is
// scheduled.
func (c *Controller) RetryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		return 0
	}
	return c.retryDelay
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Status:       c.status,
		Reading:      c.reading,
		IsConnected:  c.status.IsConnected(),
		IsConnecting: c.status.IsConnecting(),
		Transport:    c.cfg.EffectiveTransport(),
		MockMode:     c.cfg.MockMode,
		Attempt:      c.attempt,
	}
	if c.lastError != nil {
		snap.LastError = c.lastError.Error()
	}
	if c.timer != nil {
		at := c.retryAt
		snap.NextRetryAt = &at
	}
	return snap
}

func (c *Controller) newService(cfg Config) *Service {
	return NewService(cfg, ServiceOptions{Drivers: c.drivers, Logger: c.logger})
}

// attach subscribes to svc. Handlers ignore events from a Service that has
// since been replaced.
func (c *Controller) attach(svc *Service) []func() {
	transport := svc.Transport()
	return []func(){
		svc.OnStatus(func(st Status) { c.handleStatus(svc, st) }),
		svc.OnData(func(s telemetry.Sample) { c.handleData(svc, transport, s) }),
		svc.OnError(func(err error) { c.handleError(svc, transport, err) }),
	}
}

func (c *Controller) handleStatus(svc *Service, st Status) {
	c.mu.Lock()
	if c.svc != svc {
		c.mu.Unlock()
		return
	}
	c.status = st
	if st.needsReconnect() && c.shouldRetryLocked() && c.inFlight == 0 {
		c.scheduleLocked()
	}
	c.mu.Unlock()

	c.logger.Debug("connection status", "state", st.State, "detail", st.Detail)
	c.metrics.observeState(st.State)
	c.statusListeners.emit(st)
}

func (c *Controller) handleData(svc *Service, transport Transport, s telemetry.Sample) {
	c.mu.Lock()
	if c.svc != svc {
		c.mu.Unlock()
		return
	}
	c.reading = c.reading.Merge(s)
	r := c.reading
	c.mu.Unlock()

	c.metrics.observeSample(transport)
	c.dataListeners.emit(r)
}

func (c *Controller) handleError(svc *Service, transport Transport, err error) {
	c.mu.Lock()
	stale := c.svc != svc
	c.mu.Unlock()
	if stale {
		return
	}

	c.metrics.observeStreamError(transport)
	c.errorListeners.emit(err)
}

func (c *Controller) shouldRetryLocked() bool {
	return c.userHasStarted && !c.manuallyDisconnected && !c.closed
}

// scheduleLocked arms the reconnect timer for the current attempt count,
// replacing any pending one.
func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()

	delay := c.backoff.Delay(c.attempt)
	gen := c.timerGen
	c.retryDelay = delay
	c.retryAt = time.Now().Add(delay)
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })

	c.logger.Info("reconnect scheduled", "attempt", c.attempt, "delay", delay)
	c.metrics.observeRetryDelay(delay.Seconds())
}

// stopTimerLocked cancels the pending reconnect. Bumping the generation
// makes a timer that already fired a no-op.
func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.metrics.observeRetryDelay(0)
	}
	c.retryDelay = 0
	c.retryAt = time.Time{}
}

// reconnect makes one automatic attempt at the current attempt count.
func (c *Controller) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || !c.shouldRetryLocked() {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.retryDelay = 0
	c.retryAt = time.Time{}
	c.inFlight++
	svc := c.svc
	attempt := c.attempt
	c.mu.Unlock()

	c.logger.Info("reconnecting", "attempt", attempt, "transport", svc.Transport())
	c.metrics.observeReconnect()
	c.metrics.observeRetryDelay(0)

	ctx, cancel := context.WithTimeout(c.base, c.connectTimeout)
	err := svc.Connect(ctx)
	cancel()

	c.mu.Lock()
	c.inFlight--
	if svc != c.svc {
		// Reconfigure replaced the Service before the attempt reached it.
		c.mu.Unlock()
		if err == nil {
			svc.Disconnect()
		}
		return
	}
	if err == nil {
		c.attempt = 0
		// Disconnect raced with this attempt before it reached the Service.
		abandon := c.manuallyDisconnected || c.closed
		c.mu.Unlock()
		if abandon {
			svc.Disconnect()
		}
		return
	}
	if errors.Is(err, ErrConnectInProgress) {
		c.mu.Unlock()
		return
	}

	c.lastError = err
	if gen == c.timerGen {
		c.attempt++
	}
	if c.shouldRetryLocked() && c.timer == nil && c.inFlight == 0 {
		c.scheduleLocked()
	}
	c.mu.Unlock()
}
