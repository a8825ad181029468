package download

import (
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	Enqueue(req model.Request) (string, error)
	Cancel(id string) bool
	CancelAll()
	Snapshot() Snapshot
	Subscribe(o events.Observer) (unsubscribe func())
	Limit() int
}

// Runner starts one download. A Started value with a nil Process means the
// output already exists and nothing was spawned; the reporter is then never
// called.
type Runner interface {
	Start(d model.Descriptor, rep Reporter) (Started, error)
}

// Reporter receives notifications from a running job. Calls for one job are
// serialized and Exited is called exactly once, after the last Progress.
type Reporter interface {
	Progress(percent float64)
	Exited(o Outcome)
}

// Process is a handle on a spawned download
type Process interface {
	// Kill forcefully terminates the process and its descendants
	Kill() error
	Pid() int
}

// Started is the result of a successful Runner.Start
type Started struct {
	Process Process
	Path    string
}
