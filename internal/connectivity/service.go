package connectivity

import (
	"context"
	"io"
	"sync"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Drivers builds the Driver for the Service's Config. Defaults to NewDriver.
	Drivers DriverFactory

	// Logger defaults to a no-op logger.
	Logger Logger
}

// Service owns exactly one transport driver and presents a transport-agnostic
// connect/disconnect contract with status, data and error subscriptions.
//
// Events are delivered synchronously on the goroutine where the driver
// reports them. Callbacks must not call Connect or Disconnect synchronously.
type Service struct {
	cfg       Config
	driver    Driver
	driverErr error
	logger    Logger

	// statusMu serialises status transitions with their fan-out so that
	// subscribers observe transitions in the order they were made.
	statusMu sync.Mutex

	mu         sync.Mutex
	status     Status
	connecting bool
	sess       *session

	statusListeners listenerSet[Status]
	dataListeners   listenerSet[telemetry.Sample]
	errorListeners  listenerSet[error]
}

// NewService creates an idle Service for cfg.
//
// A Config the driver factory rejects still yields a Service; the error is
// returned from every Connect, which also reports StateError.
func NewService(cfg Config, opts ServiceOptions) *Service {
	if opts.Drivers == nil {
		opts.Drivers = NewDriver
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	driver, err := opts.Drivers(cfg)
	if la, ok := driver.(loggerAware); ok {
		la.useLogger(opts.Logger)
	}

	return &Service{
		cfg:       cfg,
		driver:    driver,
		driverErr: err,
		logger:    opts.Logger,
		status:    Status{State: StateIdle},
	}
}

// Config returns the configuration the Service was built with.
func (s *Service) Config() Config {
	return s.cfg
}

// Transport returns the transport the Service uses.
func (s *Service) Transport() Transport {
	return s.cfg.EffectiveTransport()
}

// Status returns the current status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers fn for status transitions and returns its unregister func.
func (s *Service) OnStatus(fn func(Status)) func() {
	return s.statusListeners.add(fn)
}

// OnData registers fn for telemetry samples and returns its unregister func.
func (s *Service) OnData(fn func(telemetry.Sample)) func() {
	return s.dataListeners.add(fn)
}

// OnError registers fn for stream errors and returns its unregister func.
func (s *Service) OnError(fn func(error)) func() {
	return s.errorListeners.add(fn)
}

// Connect establishes the link. It returns nil at once if already connected
// and ErrConnectInProgress while another Connect has not finished.
//
// Connect blocks until the driver reports success or failure; ctx bounds the
// handshake only. A failed Connect leaves the Service in StateError.
func (s *Service) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status.State == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.connecting = true
	stale := s.sess
	sess := newSession(s)
	s.sess = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	// A link that was lost but never disconnected still holds resources.
	if stale != nil {
		stale.close()
	}

	sess.setStatus(Status{State: StateConnecting})

	if s.driverErr != nil {
		sess.setStatus(Status{State: StateError, Detail: statusDetail(s.driverErr)})
		s.detach(sess)
		return s.driverErr
	}

	s.logger.Debug("connecting", "transport", s.driver.Transport())

	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.ctx, cancel)
	defer stop()

	link, err := s.driver.Open(openCtx, sess)
	if err != nil {
		sess.setStatus(Status{State: StateError, Detail: statusDetail(err)})
		s.detach(sess)
		s.logger.Warn("connect failed", "transport", s.driver.Transport(), "error", err)
		return err
	}

	if !sess.attach(link) {
		// Disconnected while the driver was opening.
		_ = link.Close() //nolint:errcheck // Teardown
		return &ConnectError{Detail: "connect cancelled", Err: context.Canceled}
	}

	s.logger.Info("connected", "transport", s.driver.Transport())
	return nil
}

// Disconnect tears down the link. It reports StateDisconnected unless the
// Service is already disconnected, so repeated calls are silent.
//
// When Disconnect returns, no further events from the old link are delivered.
func (s *Service) Disconnect() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	var link io.Closer
	if sess != nil {
		link = sess.shut()
	}

	s.transition(Status{State: StateDisconnected}, func(cur Status) bool {
		return cur.State != StateDisconnected
	})

	if link != nil {
		if err := link.Close(); err != nil {
			s.logger.Warn("closing link", "transport", s.Transport(), "error", err)
		}
	}
}

// detach removes sess if it is still the current session and closes it.
func (s *Service) detach(sess *session) {
	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
	}
	s.mu.Unlock()
	sess.close()
}

// transition sets the status to next if allow(current) reports true, then
// notifies subscribers.
func (s *Service) transition(next Status, allow func(cur Status) bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.mu.Lock()
	if allow != nil && !allow(s.status) {
		s.mu.Unlock()
		return
	}
	s.status = next
	s.mu.Unlock()

	s.statusListeners.emit(next)
}

// session is the Emitter handed to one driver Open. Once shut, it drops
// every event, which guards against late callbacks from a replaced link.
type session struct {
	svc    *Service
	ctx    context.Context
	cancel context.CancelFunc

	// gate is read-held while an event is delivered and write-held to shut.
	gate   sync.RWMutex
	closed bool
	link   io.Closer
}

func newSession(svc *Service) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{svc: svc, ctx: ctx, cancel: cancel}
}

// attach records the opened link. It reports false if the session was shut
// during Open; the caller then owns the link.
func (e *session) attach(link io.Closer) bool {
	e.gate.Lock()
	defer e.gate.Unlock()
	if e.closed {
		return false
	}
	e.link = link
	return true
}

// shut stops event delivery, cancels any pending Open and returns the link
// for the caller to close. Waits for in-progress deliveries to finish.
func (e *session) shut() io.Closer {
	e.gate.Lock()
	defer e.gate.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.cancel()
	link := e.link
	e.link = nil
	return link
}

// close shuts the session and closes its link.
func (e *session) close() {
	if link := e.shut(); link != nil {
		_ = link.Close() //nolint:errcheck // Teardown
	}
}

// deliver runs fn unless the session is shut.
func (e *session) deliver(fn func()) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if e.closed {
		return
	}
	fn()
}

func (e *session) setStatus(st Status) {
	e.deliver(func() { e.svc.transition(st, nil) })
}

func (e *session) Connected(detail string) {
	e.setStatus(Status{State: StateConnected, Detail: detail})
}

func (e *session) Lost(detail string) {
	e.setStatus(Status{State: StateDisconnected, Detail: detail})
}

func (e *session) Data(sample telemetry.Sample) {
	e.deliver(func() { e.svc.dataListeners.emit(sample) })
}

func (e *session) Error(err error) {
	e.deliver(func() {
		e.svc.logger.Debug("stream error", "transport", e.svc.Transport(), "error", err)
		e.svc.errorListeners.emit(err)
	})
}
