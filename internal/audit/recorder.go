package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/log"
)

const writeTimeout = 5 * time.Second

// Recorder is a bridge.Observer that hands outcomes to a background writer.
// Observe never blocks: when the buffer is full the outcome is counted and dropped.
type Recorder struct {
	store   *Store
	ch      chan Entry
	dropped atomic.Int64
	logger  *slog.Logger
}

func NewRecorder(store *Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store:  store,
		ch:     make(chan Entry, buffer),
		logger: log.WithComponent("audit"),
	}
}

// Observe implements bridge.Observer.
func (r *Recorder) Observe(o bridge.Outcome) {
	select {
	case r.ch <- EntryFromOutcome(o):
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("audit buffer full, dropping entries", "dropped", n)
		}
	}
}

// Dropped reports how many outcomes were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes buffered entries until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.ch:
			r.write(e)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.ch:
			r.write(e)
		default:
			return
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Insert(ctx, e); err != nil {
		r.logger.Error("failed to write dispatch log", "request_id", e.ID, "error", err)
	}
}

var _ bridge.Observer = (*Recorder)(nil)
