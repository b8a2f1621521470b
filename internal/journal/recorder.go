package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// defaultQueueSize bounds the entries waiting to be written.
const defaultQueueSize = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder queues entries for a background writer.
//
// Submit never blocks. Run must be running for entries to reach the
// repository; it drains the queue before returning once ctx is cancelled.
type Recorder struct {
	repo  Repository
	queue chan Entry

	dropped atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRecorder creates a recorder writing to repo. A queueSize of zero or
// less uses the default of 256.
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		repo:  repo,
		queue: make(chan Entry, queueSize),
	}
}

// Submit queues e for writing. It reports false when the queue is full.
func (r *Recorder) Submit(e Entry) bool {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left in the queue and returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case e := <-r.queue:
			r.write(ctx, e)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case e := <-r.queue:
			r.write(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Record(wctx, &e); err != nil {
		if logger := r.getLogger(); logger != nil {
			logger.Warn("journal write failed", "topic", e.Topic, "outcome", e.Outcome, "error", err)
		}
	}
}

// SetLogger sets a logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Recorder) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}
