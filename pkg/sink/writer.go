// Package sink persists completed match records. Workers hand records to a
// Writer, whose single goroutine drains them into a Store.
package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/match-collector/pkg/logging"
	"github.com/Sternrassler/match-collector/pkg/queue"
	"github.com/Sternrassler/match-collector/pkg/riot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	sinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_sink_writes_total",
		Help: "Sink writes by result (written, duplicate, failed)",
	}, []string{"result"})

	sinkQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_sink_queue_depth",
		Help: "Records accepted but not yet written",
	})
)

// ErrDuplicate is returned by a Store when the match is already persisted.
var ErrDuplicate = errors.New("match already stored")

// Store is a persistence backend. Write is only called from the writer
// goroutine.
type Store interface {
	Write(ctx context.Context, rec *riot.MatchRecord) error
	Close() error
}

// DefaultPollInterval is how long the writer sleeps on an empty queue.
const DefaultPollInterval = 50 * time.Millisecond

// Counts summarizes what a Writer did.
type Counts struct {
	Written    int64
	Duplicates int64
	Failed     int64
	Rejected   int64
}

// Writer bridges concurrent producers to one Store.
type Writer struct {
	store   Store
	pending *queue.Queue[*riot.MatchRecord]
	poll    time.Duration
	logger  zerolog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
	closeErr  error

	// mu orders Accept's check-and-push against Close.
	mu     sync.RWMutex
	closed bool

	written    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	rejected   atomic.Int64
}

// NewWriter creates a Writer for store. A non-positive poll uses
// DefaultPollInterval.
func NewWriter(store Store, poll time.Duration) *Writer {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Writer{
		store:   store,
		pending: queue.New[*riot.MatchRecord](),
		poll:    poll,
		logger:  logging.NewLogger("sink"),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it more than once has no effect.
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		go w.loop()
	})
}

// Accept queues rec for writing. It only waits for a concurrent Close to
// mark the writer closed. Every record is either written by the drain or
// counted as rejected.
func (w *Writer) Accept(rec *riot.MatchRecord) {
	if rec == nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.rejected.Add(1)
		w.logger.Warn().Str("match_id", rec.Metadata.MatchID).Msg("Writer closed, dropping record")
		return
	}
	w.pending.Push(rec)
	sinkQueueDepth.Inc()
}

// Close signals that no more records will arrive, waits until every queued
// record has been written, then closes the store.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		w.Start()
		close(w.done)
		<-w.stopped
		w.closeErr = w.store.Close()

		c := w.Counts()
		w.logger.Info().
			Int64("written", c.Written).
			Int64("duplicates", c.Duplicates).
			Int64("failed", c.Failed).
			Msg("Sink closed")
	})
	return w.closeErr
}

// Counts returns the writer's counters.
func (w *Writer) Counts() Counts {
	return Counts{
		Written:    w.written.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
		Rejected:   w.rejected.Load(),
	}
}

// loop exits only once done is closed and the queue is observed empty
// afterwards; a momentarily empty queue is not the end.
func (w *Writer) loop() {
	defer close(w.stopped)

	ctx := context.Background()
	timer := time.NewTimer(w.poll)
	defer timer.Stop()

	for {
		if rec, ok := w.pending.Pop(); ok {
			sinkQueueDepth.Dec()
			w.write(ctx, rec)
			continue
		}

		select {
		case <-w.done:
			if w.pending.Empty() {
				return
			}
			continue
		default:
		}

		timer.Reset(w.poll)
		select {
		case <-w.done:
		case <-timer.C:
		}
	}
}

func (w *Writer) write(ctx context.Context, rec *riot.MatchRecord) {
	err := w.store.Write(ctx, rec)
	switch {
	case err == nil:
		w.written.Add(1)
		sinkWritesTotal.WithLabelValues("written").Inc()
	case errors.Is(err, ErrDuplicate):
		w.duplicates.Add(1)
		sinkWritesTotal.WithLabelValues("duplicate").Inc()
		w.logger.Debug().Str("match_id", rec.Metadata.MatchID).Msg("Match already stored")
	default:
		w.failed.Add(1)
		sinkWritesTotal.WithLabelValues("failed").Inc()
		w.logger.Error().Err(err).Str("match_id", rec.Metadata.MatchID).Msg("Sink write failed, dropping record")
	}
}
