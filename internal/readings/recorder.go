package readings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// Recorder defaults.
const (
	DefaultQueueSize     = 64
	DefaultWriteTimeout  = 5 * time.Second
	DefaultPruneInterval = time.Hour
)

// TelemetryWriter is a time-series sink. Writes are asynchronous and never
// fail the caller; both the InfluxDB and VictoriaMetrics clients satisfy it.
type TelemetryWriter interface {
	WriteTelemetry(deviceID string, tags map[string]string, fields map[string]any, ts time.Time)
}

// DataSource publishes merged readings, e.g. a connectivity.Controller.
type DataSource interface {
	OnData(fn func(telemetry.Reading)) func()
}

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// QueueSize bounds readings waiting to be stored. Readings arriving
	// while the queue is full are dropped.
	QueueSize int

	// Retention deletes records older than this. Zero keeps everything.
	Retention time.Duration

	PruneInterval time.Duration
	WriteTimeout  time.Duration

	Sinks  []TelemetryWriter
	Logger Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// RecorderStats counts what the Recorder has done since it was created.
type RecorderStats struct {
	Persisted uint64 `json:"persisted"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pruned    uint64 `json:"pruned"`
}

// Recorder classifies readings, stores them and forwards them to the
// time-series sinks.
//
// Save is synchronous. Readings passed to Record (or received from an
// attached DataSource) are queued and stored by a single worker, so a slow
// disk never blocks the connection's event delivery.
type Recorder struct {
	repo   Repository
	sinks  []TelemetryWriter
	logger Logger
	now    func() time.Time

	retention     time.Duration
	pruneInterval time.Duration
	writeTimeout  time.Duration

	queue chan telemetry.Reading
	done  chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool

	persisted atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	pruned    atomic.Uint64
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Recorder{
		repo:          repo,
		sinks:         opts.Sinks,
		logger:        opts.Logger,
		now:           opts.Now,
		retention:     opts.Retention,
		pruneInterval: opts.PruneInterval,
		writeTimeout:  opts.WriteTimeout,
		queue:         make(chan telemetry.Reading, opts.QueueSize),
		done:          make(chan struct{}),
	}
}

// Save classifies and stores one reading, then forwards it to the sinks.
func (r *Recorder) Save(ctx context.Context, reading telemetry.Reading, source Source) (*Record, error) {
	rec := NewRecord(reading, source, r.now())
	if err := r.repo.Create(ctx, rec); err != nil {
		r.failed.Add(1)
		return nil, fmt.Errorf("saving reading: %w", err)
	}
	r.persisted.Add(1)

	tags := map[string]string{
		"emotion": string(rec.Emotion),
		"source":  string(rec.Source),
	}
	fields := map[string]any{
		"moisture":    rec.Moisture,
		"temperature": rec.Temperature,
		"light":       rec.Light,
	}
	for _, sink := range r.sinks {
		sink.WriteTelemetry(rec.DeviceID, tags, fields, rec.RecordedAt)
	}
	return rec, nil
}

// Start runs the storage worker until Stop. ctx parents the worker's
// database calls; cancelling it does not discard queued readings.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRecorderStopped
	}
	if r.started {
		return nil
	}
	r.started = true

	go r.run(context.WithoutCancel(ctx))
	return nil
}

// Record queues a reading for storage. It reports false if the reading was
// dropped because the queue is full or the Recorder is stopped.
func (r *Recorder) Record(reading telemetry.Reading) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.queue <- reading:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("recorder queue full, dropping reading", "device_id", reading.DeviceID)
		return false
	}
}

// Attach records every reading src publishes. The returned func detaches.
func (r *Recorder) Attach(src DataSource) func() {
	return src.OnData(func(reading telemetry.Reading) {
		r.Record(reading)
	})
}

// Stop stores what is already queued and stops the worker. Safe to call
// more than once.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// Stats returns the Recorder's counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Persisted: r.persisted.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Pruned:    r.pruned.Load(),
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	var pruneC <-chan time.Time
	if r.retention > 0 {
		ticker := time.NewTicker(r.pruneInterval)
		defer ticker.Stop()
		pruneC = ticker.C
		r.prune(ctx)
	}

	for {
		select {
		case reading, ok := <-r.queue:
			if !ok {
				return
			}
			r.persist(ctx, reading)
		case <-pruneC:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) persist(ctx context.Context, reading telemetry.Reading) {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	rec, err := r.Save(ctx, reading, SourceDevice)
	if err != nil {
		r.logger.Error("recording reading failed", "device_id", reading.DeviceID, "error", err)
		return
	}
	r.logger.Debug("reading recorded", "id", rec.ID, "device_id", rec.DeviceID, "emotion", rec.Emotion)
}

func (r *Recorder) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	n, err := r.repo.Prune(ctx, r.now().Add(-r.retention))
	if err != nil {
		r.logger.Error("pruning readings failed", "error", err)
		return
	}
	if n > 0 {
		r.pruned.Add(uint64(n))
		r.logger.Info("pruned old readings", "count", n)
	}
}
