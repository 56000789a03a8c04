// Package usage records best-effort transfer accounting for sync calls.
//
// Reporting is fire-and-forget: Submit never blocks and never returns an
// error. Sink failures and dropped events are published on a separate
// Failures channel that nothing on the request path reads.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Op names the operation being accounted
type Op string

const (
	OpPush Op = "push"
	OpPull Op = "pull"
)

// Event is one accounting sample
type Event struct {
	OwnerID    string
	Op         Op
	Records    int
	Bytes      int64
	OccurredAt time.Time
}

// Sink persists a batch of events
type Sink interface {
	WriteUsage(ctx context.Context, events []Event) error
}

// Reporter accepts usage events without blocking the caller
type Reporter interface {
	Submit(Event)
}

// Failure describes events that could not be recorded
type Failure struct {
	Events  int
	Err     error
	Dropped bool
}

// Discard is a Reporter that ignores everything
type Discard struct{}

func (Discard) Submit(Event) {}

// LogSink writes events to the global logger at debug level
type LogSink struct{}

func (LogSink) WriteUsage(ctx context.Context, events []Event) error {
	for _, e := range events {
		log.Debug().
			Str("owner_id", e.OwnerID).
			Str("op", string(e.Op)).
			Int("records", e.Records).
			Int64("bytes", e.Bytes).
			Msg("usage")
	}
	return nil
}

// Options tune an AsyncReporter
type Options struct {
	Buffer       int           // queued events before Submit starts dropping
	BatchSize    int           // max events per sink write
	WriteTimeout time.Duration // per sink write
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// AsyncReporter drains submitted events into a Sink from a background goroutine
type AsyncReporter struct {
	sink     Sink
	opts     Options
	events   chan Event
	failures chan Failure
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncReporter starts the background writer
func NewAsyncReporter(sink Sink, opts Options) *AsyncReporter {
	opts = opts.withDefaults()
	r := &AsyncReporter{
		sink:     sink,
		opts:     opts,
		events:   make(chan Event, opts.Buffer),
		failures: make(chan Failure, 16),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit enqueues e, dropping it if the buffer is full or the reporter is closed
func (r *AsyncReporter) Submit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- e:
	default:
		r.fail(Failure{Events: 1, Dropped: true})
	}
}

// Failures exposes sink errors and drops. The channel is lossy: when nobody
// reads it, further failures are only logged.
func (r *AsyncReporter) Failures() <-chan Failure {
	return r.failures
}

// Close stops accepting events and waits for queued ones to be written
func (r *AsyncReporter) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()
		<-r.done
	})
}

func (r *AsyncReporter) run() {
	defer close(r.done)

	batch := make([]Event, 0, r.opts.BatchSize)
	for e := range r.events {
		batch = append(batch[:0], e)
	fill:
		for len(batch) < r.opts.BatchSize {
			select {
			case more, ok := <-r.events:
				if !ok {
					break fill
				}
				batch = append(batch, more)
			default:
				break fill
			}
		}
		r.flush(batch)
	}
}

func (r *AsyncReporter) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
	defer cancel()

	if err := r.sink.WriteUsage(ctx, batch); err != nil {
		r.fail(Failure{Events: len(batch), Err: err})
	}
}

func (r *AsyncReporter) fail(f Failure) {
	select {
	case r.failures <- f:
	default:
		log.Warn().Err(f.Err).Int("events", f.Events).Bool("dropped", f.Dropped).Msg("usage failure not delivered")
	}
}

var _ Reporter = (*AsyncReporter)(nil)
