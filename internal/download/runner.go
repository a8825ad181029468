package download

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/model"
	"github.com/ytget/streampull/internal/platform"
)

// yt-dlp invocation constants
const (
	YTDLPCommand        = "yt-dlp"
	AudioQualityBest    = "0"
	ConcurrentFragments = "4"
	RetryCount          = "10"
	DefaultWaitDelay    = 5 * time.Second
	StderrTailLimit     = 64 * 1024
	maxProgressLine     = 1024 * 1024
)

// OutcomeKind classifies how a runner finished
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeFailed
	OutcomeKilled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Outcome is the final report of a runner
type Outcome struct {
	Kind OutcomeKind
	Path string
	Err  error
}

// RunnerConfig configures a ProcessRunner
type RunnerConfig struct {
	Binary     string // yt-dlp executable, defaults to YTDLPCommand
	FFmpegPath string // optional --ffmpeg-location
	DefaultDir string // used when a job names no existing directory
	WaitDelay  time.Duration
}

// ProcessRunner runs yt-dlp as a subprocess in its own process group
type ProcessRunner struct {
	cfg    RunnerConfig
	logger logrus.FieldLogger
}

// NewProcessRunner creates a runner
func NewProcessRunner(cfg RunnerConfig, log logrus.FieldLogger) *ProcessRunner {
	if cfg.Binary == "" {
		cfg.Binary = YTDLPCommand
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &ProcessRunner{
		cfg:    cfg,
		logger: logger.WithComponent(log, logger.ComponentRunner),
	}
}

// Start resolves the destination path and spawns yt-dlp. It returns a nil
// Process without spawning when the destination already exists.
func (r *ProcessRunner) Start(d model.Descriptor, rep Reporter) (Started, error) {
	log := r.logger.WithField("job_id", d.ID)

	path, err := platform.DestinationPath(platform.Destination{
		Dir:        d.Dir,
		DefaultDir: r.cfg.DefaultDir,
		Subfolder:  d.Subfolder,
		Collection: d.Collection,
		Title:      d.Title,
		Ext:        string(d.Format),
	})
	if err != nil {
		return Started{}, &errs.DownloadError{Kind: errs.DownloadGeneric, Message: errs.MsgStartFailed, Err: err}
	}

	if platform.FileExists(path) {
		log.WithField("path", path).Info("file already downloaded, skipping")
		return Started{Path: path}, nil
	}

	cmd := exec.Command(r.cfg.Binary, BuildDownloadArgs(d, path, r.cfg.FFmpegPath)...)
	platform.SetProcessGroup(cmd)

	pr, pw := io.Pipe()
	stderr := &tailBuffer{limit: StderrTailLimit}
	cmd.Stdout = pw
	cmd.Stderr = stderr
	cmd.WaitDelay = r.cfg.WaitDelay

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		log.WithError(err).Error("failed to start yt-dlp")
		return Started{}, startError(err)
	}

	log.WithFields(logrus.Fields{
		"pid":  cmd.Process.Pid,
		"path": path,
	}).Info("download started")

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		scanProgress(pr, rep)
	}()

	go func() {
		waitErr := cmd.Wait()
		pw.Close()
		<-scanned

		outcome := exitOutcome(waitErr, stderr.String(), path)
		log.WithFields(logrus.Fields{
			"outcome": outcome.Kind,
			"pid":     cmd.Process.Pid,
		}).Debug("yt-dlp exited")
		rep.Exited(outcome)
	}()

	return Started{Process: &process{cmd: cmd}, Path: path}, nil
}

// BuildDownloadArgs builds the yt-dlp arguments for one job
func BuildDownloadArgs(d model.Descriptor, outputPath, ffmpegPath string) []string {
	var args []string
	if d.Format.IsAudio() {
		args = append(args,
			"-x",
			"--audio-format", string(d.Format),
			"--audio-quality", AudioQualityBest,
		)
	} else {
		args = append(args,
			"-f", videoSelector(d.Quality),
			"--merge-output-format", string(d.Format),
			"-N", ConcurrentFragments,
			"--retries", RetryCount,
			"--fragment-retries", RetryCount,
			"-c",
		)
	}

	args = append(args, "-o", outputPath, "--newline", "--no-mtime")
	if ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", ffmpegPath)
	}
	return append(args, d.URL)
}

func videoSelector(q model.Quality) string {
	height, ok := q.MaxHeight()
	if !ok {
		return "bestvideo+bestaudio/best"
	}
	h := strconv.Itoa(height)
	return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", h, h)
}

func startError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &errs.DownloadError{Kind: errs.DownloadToolMissing, Message: errs.MsgToolMissing, Err: err}
	}
	return &errs.DownloadError{Kind: errs.DownloadGeneric, Message: errs.MsgStartFailed, Err: err}
}

func exitOutcome(waitErr error, stderr, path string) Outcome {
	if waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay) {
		return Outcome{Kind: OutcomeCompleted, Path: path}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		// ExitCode is -1 when the process was terminated by a signal
		if exitErr.ExitCode() == -1 {
			return Outcome{Kind: OutcomeKilled, Path: path, Err: waitErr}
		}
		classified := errs.ClassifyDownload(stderr)
		classified.Err = waitErr
		return Outcome{Kind: OutcomeFailed, Path: path, Err: classified}
	}

	return Outcome{
		Kind: OutcomeFailed,
		Path: path,
		Err:  &errs.DownloadError{Kind: errs.DownloadGeneric, Message: errs.MsgDownloadGeneric, Err: waitErr},
	}
}

type process struct {
	cmd *exec.Cmd
}

func (p *process) Kill() error { return platform.TerminateTree(p.cmd) }

func (p *process) Pid() int { return p.cmd.Process.Pid }

var progressPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// parsePercent extracts the first percentage on a progress line
func parsePercent(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(v, 100), true
}

// progressTracker throttles progress to rises of at least one point, plus
// the first time 100 is reached
type progressTracker struct {
	last float64
}

func (t *progressTracker) observe(v float64) bool {
	if v >= t.last+1 || (v >= 100 && t.last < 100) {
		t.last = v
		return true
	}
	return false
}

func scanProgress(r io.Reader, rep Reporter) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxProgressLine)
	scanner.Split(scanLinesOrCR)

	var tracker progressTracker
	for scanner.Scan() {
		if v, ok := parsePercent(scanner.Text()); ok && tracker.observe(v) {
			rep.Progress(v)
		}
	}
	// keep the writer unblocked after an oversized line
	_, _ = io.Copy(io.Discard, r)
}

// scanLinesOrCR is a bufio.SplitFunc that treats both \n and \r as line ends
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
