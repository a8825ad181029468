package model

// JobStatus represents the lifecycle state of a download job
type JobStatus string

const (
	// JobStatusPending means the job is queued and waiting for a free slot
	JobStatusPending JobStatus = "pending"

	// JobStatusActive means the job holds a slot and its worker process is running
	JobStatusActive JobStatus = "active"

	// JobStatusCompleted means the worker finished and the file is on disk
	JobStatusCompleted JobStatus = "complete"

	// JobStatusError means the job failed with a categorized error
	JobStatusError JobStatus = "error"

	// JobStatusCancelled means the job was cancelled by the caller
	JobStatusCancelled JobStatus = "cancelled"
)

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsActive returns true if the job currently occupies a concurrency slot
func (s JobStatus) IsActive() bool {
	return s == JobStatusActive
}

// IsFinished returns true if the job is in a terminal state (completed, error, or cancelled)
func (s JobStatus) IsFinished() bool {
	return s == JobStatusCompleted || s == JobStatusError || s == JobStatusCancelled
}

// CanTransition reports whether a job may move from s to next.
// Terminal states never transition; a retry is a new job.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusActive || next == JobStatusCancelled
	case JobStatusActive:
		return next.IsFinished()
	default:
		return false
	}
}
