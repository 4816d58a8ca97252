package connectivity

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// fastTiming keeps driver delays short in tests.
var fastTiming = Timing{
	MockHandshake:    20 * time.Millisecond,
	MockInterval:     30 * time.Millisecond,
	RESTPollInterval: 30 * time.Millisecond,
	RequestTimeout:   time.Second,
	ConnectTimeout:   2 * time.Second,
}

// fakeLink counts Close calls.
type fakeLink struct {
	closes atomic.Int32
}

func (l *fakeLink) Close() error {
	l.closes.Add(1)
	return nil
}

// fakeDriver is a scriptable Driver.
type fakeDriver struct {
	transport Transport

	mu       sync.Mutex
	opens    int
	failures []error      // returned by successive Opens, then success
	block    chan struct{} // if set, Open waits for it or ctx
	emitters []Emitter
	links    []*fakeLink
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{transport: TransportMock}
}

func (d *fakeDriver) factory() DriverFactory {
	return func(Config) (Driver, error) { return d, nil }
}

func (d *fakeDriver) Transport() Transport { return d.transport }

func (d *fakeDriver) Open(ctx context.Context, emit Emitter) (io.Closer, error) {
	d.mu.Lock()
	d.opens++
	var fail error
	if len(d.failures) > 0 {
		fail, d.failures = d.failures[0], d.failures[1:]
	}
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &ConnectError{Detail: "fake aborted", Err: ctx.Err()}
		}
	}
	if fail != nil {
		return nil, fail
	}

	emit.Connected("fake connected")

	link := &fakeLink{}
	d.mu.Lock()
	d.emitters = append(d.emitters, emit)
	d.links = append(d.links, link)
	d.mu.Unlock()
	return link, nil
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDriver) emitter(i int) Emitter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emitters[i]
}

func (d *fakeDriver) link(i int) *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links[i]
}

func (d *fakeDriver) linkCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.links)
}

// hookLogger runs onInfo for every Info message.
type hookLogger struct {
	noopLogger
	onInfo func(msg string)
}

func (l hookLogger) Info(msg string, _ ...any) { l.onInfo(msg) }

// recorder collects events delivered to subscribers.
type recorder struct {
	mu       sync.Mutex
	statuses []Status
	samples  []telemetry.Sample
	readings []telemetry.Reading
	errs     []error
}

func (r *recorder) status(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) sample(s telemetry.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) reading(rd telemetry.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, rd)
}

func (r *recorder) err(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.State
	}
	return out
}

func (r *recorder) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) count(state State) int {
	n := 0
	for _, s := range r.states() {
		if s == state {
			n++
		}
	}
	return n
}

func (r *recorder) sampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *recorder) readingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// watchService subscribes a recorder to every channel of svc.
func watchService(svc *Service) *recorder {
	r := &recorder{}
	svc.OnStatus(r.status)
	svc.OnData(r.sample)
	svc.OnError(r.err)
	return r
}

// watchController subscribes a recorder to every channel of c.
func watchController(c *Controller) *recorder {
	r := &recorder{}
	c.OnStatus(r.status)
	c.OnData(r.reading)
	c.OnError(r.err)
	return r
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

func equalStates(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
