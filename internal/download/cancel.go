package download

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/events"
)

// Cancel stops the job with the given id. An active job has its process
// tree killed; a pending job is removed without disturbing the order of the
// others. Either way exactly one cancelled event is published. Cancel
// reports false when the id is neither pending nor active.
func (s *Service) Cancel(id string) bool {
	var found bool
	_ = s.do(func() { found = s.cancel(id) })
	return found
}

// CancelAll cancels every pending job in queue order, then every active job.
func (s *Service) CancelAll() {
	_ = s.do(s.cancelAll)
}

func (s *Service) cancel(id string) bool {
	if rec, ok := s.active[id]; ok {
		s.cancelActive(rec)
		s.admit()
		return true
	}

	for i, rec := range s.pending {
		if rec.job.ID != id {
			continue
		}
		s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
		s.finish(rec, events.Cancelled(id))
		return true
	}

	s.logger.WithField("job_id", id).Debug("cancel requested for unknown job")
	return false
}

// cancelActive removes rec from the active set before killing its process
// so the runner's killed outcome is ignored
func (s *Service) cancelActive(rec *record) {
	id := rec.job.ID
	delete(s.active, id)
	if rec.process != nil {
		if err := rec.process.Kill(); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"job_id": id,
				"pid":    rec.process.Pid(),
			}).Warn("failed to kill download process")
		}
		rec.process = nil
	}
	s.finish(rec, events.Cancelled(id))
}

func (s *Service) cancelAll() {
	pending := s.pending
	s.pending = nil
	for _, rec := range pending {
		s.finish(rec, events.Cancelled(rec.job.ID))
	}

	active := make([]*record, 0, len(s.active))
	for _, rec := range s.active {
		active = append(active, rec)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })
	for _, rec := range active {
		s.cancelActive(rec)
	}

	if n := len(pending) + len(active); n > 0 {
		s.logger.WithField("count", n).Info("cancelled all jobs")
	}
}
