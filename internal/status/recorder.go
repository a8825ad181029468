package status

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/logger"
)

// DefaultRecordTimeout bounds a single store write
const DefaultRecordTimeout = 5 * time.Second

// Recorder is a bus observer that writes events to a Store on its own
// goroutine. Notify never blocks.
type Recorder struct {
	store  Store
	logger logrus.FieldLogger

	mu      sync.Mutex
	queue   []events.Event
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewRecorder creates a recorder and starts its worker
func NewRecorder(store Store, log logrus.FieldLogger) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  logger.WithComponent(log, logger.ComponentStatus),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

// Notify implements events.Observer
func (r *Recorder) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, e)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events and waits until queued ones are written
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.wake)
	}
	r.mu.Unlock()
	<-r.stopped
}

func (r *Recorder) run() {
	defer close(r.stopped)
	for range r.wake {
		r.flush()
	}
	r.flush()
}

func (r *Recorder) flush() {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, e := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRecordTimeout)
		if err := r.store.Record(ctx, e); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"job_id": e.JobID,
				"event":  e.Kind,
			}).Warn("failed to record job status")
		}
		cancel()
	}
}
