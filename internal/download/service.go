package download

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/model"
)

// Queue constants
const (
	DefaultLimit = 3
	JobIDPrefix  = "job-"
)

// Options configures a Service
type Options struct {
	Limit  int
	Logger logrus.FieldLogger
	Bus    *events.Bus // created when nil
}

// Snapshot is a point-in-time copy of the queue state
type Snapshot struct {
	Limit   int         `json:"limit"`
	Active  []model.Job `json:"active"`
	Pending []model.Job `json:"pending"`
}

type record struct {
	job     model.Job
	seq     uint64
	process Process
}

// Service is the bounded-concurrency download queue
type Service struct {
	runner Runner
	limit  int
	bus    *events.Bus
	logger logrus.FieldLogger

	ops       chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by the coordinator goroutine
	pending []*record
	active  map[string]*record
	nextSeq uint64
}

// NewService creates a queue that admits at most opts.Limit jobs at a time
// and starts its coordinator goroutine. Call Close to release it.
func NewService(runner Runner, opts Options) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(opts.Logger)
	}

	s := &Service{
		runner:  runner,
		limit:   opts.Limit,
		bus:     opts.Bus,
		logger:  logger.WithComponent(opts.Logger, logger.ComponentDownload),
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		active:  make(map[string]*record),
	}
	go s.loop()
	return s
}

func (s *Service) loop() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the coordinator and waits for it to finish
func (s *Service) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.quit:
		return errs.ErrServiceClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		select {
		case <-done:
			return nil
		default:
			return errs.ErrServiceClosed
		}
	}
}

// post schedules fn on the coordinator without waiting. It is dropped once
// the service is closed.
func (s *Service) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
	}
}

// Limit returns the concurrency limit fixed at construction
func (s *Service) Limit() int {
	return s.limit
}

// Bus returns the lifecycle event bus
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Subscribe attaches an observer to the lifecycle event bus
func (s *Service) Subscribe(o events.Observer) (unsubscribe func()) {
	return s.bus.Subscribe(o)
}

// Enqueue validates req, appends a new job to the pending queue and admits
// as many jobs as the limit allows. It returns the job id.
func (s *Service) Enqueue(req model.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	d := model.NewDescriptor(generateJobID(), req)
	err := s.do(func() {
		s.nextSeq++
		s.pending = append(s.pending, &record{
			seq: s.nextSeq,
			job: model.Job{
				Descriptor: d,
				Status:     model.JobStatusPending,
				EnqueuedAt: time.Now(),
			},
		})
		s.logger.WithFields(logrus.Fields{
			"job_id":  d.ID,
			"title":   d.Title,
			"pending": len(s.pending),
		}).Debug("job enqueued")
		s.admit()
	})
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// Snapshot returns copies of the active and pending jobs in admission order
func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{Limit: s.limit}
	_ = s.do(func() {
		active := make([]*record, 0, len(s.active))
		for _, rec := range s.active {
			active = append(active, rec)
		}
		sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })

		snap.Active = make([]model.Job, 0, len(active))
		for _, rec := range active {
			snap.Active = append(snap.Active, rec.job)
		}
		snap.Pending = make([]model.Job, 0, len(s.pending))
		for _, rec := range s.pending {
			snap.Pending = append(snap.Pending, rec.job)
		}
	})
	return snap
}

// Close cancels every job and stops the coordinator. It is safe to call
// more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		_ = s.do(s.cancelAll)
		close(s.quit)
		<-s.stopped
		s.logger.Debug("download service stopped")
	})
}

// admit moves pending jobs to active while capacity remains
func (s *Service) admit() {
	for len(s.active) < s.limit && len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.start(rec)
	}
}

func (s *Service) start(rec *record) {
	id := rec.job.ID
	if _, dup := s.active[id]; dup {
		panic(fmt.Sprintf("download: job %s admitted twice", id))
	}

	rec.job.Status = model.JobStatusActive
	rec.job.StartedAt = time.Now()
	s.active[id] = rec
	if len(s.active) > s.limit {
		panic(fmt.Sprintf("download: %d active jobs exceed limit %d", len(s.active), s.limit))
	}

	started, err := s.runner.Start(rec.job.Descriptor, &jobReporter{s: s, rec: rec})
	if err != nil {
		delete(s.active, id)
		rec.job.LastError = errorMessage(err, errs.MsgStartFailed)
		s.logger.WithError(err).WithField("job_id", id).Warn("failed to start job")
		s.finish(rec, events.Error(id, rec.job.LastError))
		return
	}

	rec.job.OutputPath = started.Path
	if started.Process == nil {
		delete(s.active, id)
		rec.job.Progress = 100
		s.finish(rec, events.Complete(id, started.Path))
		return
	}
	rec.process = started.Process
}

func (s *Service) onProgress(rec *record, percent float64) {
	if s.active[rec.job.ID] != rec || percent <= rec.job.Progress {
		return
	}
	rec.job.Progress = percent
	s.bus.Publish(events.Progress(rec.job.ID, percent))
}

func (s *Service) onExit(rec *record, o Outcome) {
	id := rec.job.ID
	if s.active[id] != rec {
		// already resolved by cancellation
		return
	}
	delete(s.active, id)
	rec.process = nil

	switch o.Kind {
	case OutcomeCompleted:
		if o.Path != "" {
			rec.job.OutputPath = o.Path
		}
		rec.job.Progress = 100
		s.finish(rec, events.Complete(id, rec.job.OutputPath))
	case OutcomeKilled:
		rec.job.LastError = errs.MsgInterrupted
		s.finish(rec, events.Error(id, rec.job.LastError))
	default:
		rec.job.LastError = errorMessage(o.Err, errs.MsgDownloadGeneric)
		s.finish(rec, events.Error(id, rec.job.LastError))
	}
	s.admit()
}

// finish records the terminal state and publishes its event
func (s *Service) finish(rec *record, e events.Event) {
	next := model.JobStatusError
	switch e.Kind {
	case events.KindComplete:
		next = model.JobStatusCompleted
	case events.KindCancelled:
		next = model.JobStatusCancelled
	}
	if !rec.job.Status.CanTransition(next) {
		panic(fmt.Sprintf("download: job %s cannot move from %s to %s", rec.job.ID, rec.job.Status, next))
	}
	rec.job.Status = next
	rec.job.FinishedAt = time.Now()

	s.logger.WithFields(logrus.Fields{
		"job_id": rec.job.ID,
		"title":  rec.job.GetDisplayTitle(),
		"status": rec.job.Status,
		"path":   rec.job.OutputPath,
		"error":  rec.job.LastError,
		"active": len(s.active),
	}).Info("job finished")
	s.bus.Publish(e)
}

type jobReporter struct {
	s   *Service
	rec *record
}

func (r *jobReporter) Progress(percent float64) {
	r.s.post(func() { r.s.onProgress(r.rec, percent) })
}

func (r *jobReporter) Exited(o Outcome) {
	r.s.post(func() { r.s.onExit(r.rec, o) })
}

// errorMessage returns the user-facing message of a categorized error
func errorMessage(err error, fallback string) string {
	var dlErr *errs.DownloadError
	if errors.As(err, &dlErr) && dlErr.Message != "" {
		return dlErr.Message
	}
	return fallback
}

// generateJobID generates a unique job ID using UUID v7
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(JobIDPrefix+"%d", time.Now().UnixNano())
	}
	return JobIDPrefix + id.String()
}
