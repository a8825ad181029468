// Package status keeps an inspectable record of job lifecycle states. It is
// fed from the event bus and is never used to resume the queue.
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/model"
)

// Entry is the last known state of one job
type Entry struct {
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	Percent   float64         `json:"percent"`
	Path      string          `json:"path,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists job states
type Store interface {
	Record(ctx context.Context, e events.Event) error
	Get(ctx context.Context, jobID string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// StatusFor maps an event kind to the job status it implies
func StatusFor(k events.Kind) model.JobStatus {
	switch k {
	case events.KindComplete:
		return model.JobStatusCompleted
	case events.KindError:
		return model.JobStatusError
	case events.KindCancelled:
		return model.JobStatusCancelled
	default:
		return model.JobStatusActive
	}
}

// apply folds an event into the previous entry
func apply(prev Entry, e events.Event) Entry {
	next := prev
	next.JobID = e.JobID
	next.Status = StatusFor(e.Kind)
	next.UpdatedAt = e.Time
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now()
	}
	if e.Percent > next.Percent {
		next.Percent = e.Percent
	}
	if e.Path != "" {
		next.Path = e.Path
	}
	if e.Message != "" {
		next.Error = e.Message
	}
	return next
}

// MemoryStore is a Store backed by a map
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Record implements Store. Updates for a job that already reached a
// terminal state are ignored.
func (m *MemoryStore) Record(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.entries[e.JobID]
	if ok && prev.Status.IsFinished() {
		return nil
	}
	m.entries[e.JobID] = apply(prev, e)
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, jobID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[jobID]
	if !ok {
		return Entry{}, errs.ErrJobNotFound
	}
	return entry, nil
}

// List implements Store, oldest update first
func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].JobID < entries[j].JobID
		}
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
}
