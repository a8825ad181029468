// Package events is the typed lifecycle event bus for download jobs.
//
// A job publishes zero or more progress events followed by exactly one
// terminal event (complete, error or cancelled). Observers attached after an
// event was published never see it; there is no replay.
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/logger"
)

// Kind is the event type
type Kind string

const (
	KindProgress  Kind = "progress"
	KindComplete  Kind = "complete"
	KindError     Kind = "error"
	KindCancelled Kind = "cancelled"
)

// IsTerminal reports whether no further events follow for the job
func (k Kind) IsTerminal() bool {
	return k == KindComplete || k == KindError || k == KindCancelled
}

// Event is a single job lifecycle transition
type Event struct {
	Kind    Kind      `json:"type"`
	JobID   string    `json:"jobId"`
	Percent float64   `json:"percent,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Progress builds a progress event
func Progress(jobID string, percent float64) Event {
	return Event{Kind: KindProgress, JobID: jobID, Percent: percent, Time: time.Now()}
}

// Complete builds a complete event
func Complete(jobID, path string) Event {
	return Event{Kind: KindComplete, JobID: jobID, Path: path, Percent: 100, Time: time.Now()}
}

// Error builds an error event
func Error(jobID, message string) Event {
	return Event{Kind: KindError, JobID: jobID, Message: message, Time: time.Now()}
}

// Cancelled builds a cancelled event
func Cancelled(jobID string) Event {
	return Event{Kind: KindCancelled, JobID: jobID, Time: time.Now()}
}

// Observer receives published events. Notify runs on the publisher's
// goroutine and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Notify implements Observer
func (f ObserverFunc) Notify(e Event) { f(e) }

type subscription struct {
	id       uint64
	observer Observer
}

// Bus fans events out to every current observer in subscription order
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger logrus.FieldLogger
}

// NewBus creates an empty bus
func NewBus(log logrus.FieldLogger) *Bus {
	return &Bus{logger: logger.WithComponent(log, logger.ComponentEvents)}
}

// Subscribe attaches an observer and returns a function that detaches it.
// The returned function is idempotent.
func (b *Bus) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, observer: o})
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.WithField("subscriber_count", count).Debug("observer subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every observer synchronously. A panicking observer
// is logged and skipped so one bad consumer cannot break delivery to others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	b.logger.WithFields(logrus.Fields{
		"event":   e.Kind,
		"job_id":  e.JobID,
		"percent": e.Percent,
	}).Trace("publishing event")

	for _, s := range subs {
		b.deliver(s.observer, e)
	}
}

func (b *Bus) deliver(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event":  e.Kind,
				"job_id": e.JobID,
				"panic":  r,
			}).Error("observer panicked")
		}
	}()
	o.Notify(e)
}

// Len returns the number of attached observers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
