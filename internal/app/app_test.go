package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/streampull/internal/config"
	"github.com/ytget/streampull/internal/download"
	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/model"
	"github.com/ytget/streampull/internal/status"
)

const playlistJSON = `{"id":"PL1","title":"Road Trip","entries":[{"id":"a","title":"First","duration":65},{"id":"b","title":"Second"}]}`

func fakeYTDLP(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a unix shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	root := NewRootCommand("1.2.3")
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "streampull 1.2.3 ("), out)
}

func TestAnalyzeCommand(t *testing.T) {
	bin := fakeYTDLP(t, "echo '"+playlistJSON+"'")

	out, err := execute(t, "analyze", "--ytdlp-path", bin, "https://www.youtube.com/playlist?list=PL1")
	require.NoError(t, err)

	assert.Contains(t, out, "Road Trip")
	assert.Contains(t, out, "1. First")
	assert.Contains(t, out, "2. Second")
	assert.Contains(t, out, "2 videos")
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	bin := fakeYTDLP(t, "echo '"+playlistJSON+"'")

	out, err := execute(t, "analyze", "--json", "--ytdlp-path", bin, "https://www.youtube.com/playlist?list=PL1")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Road Trip"`)
}

func TestAnalyzeCommand_ClassifiedError(t *testing.T) {
	bin := fakeYTDLP(t, "echo 'ERROR: HTTP Error 429: Too Many Requests' >&2; exit 1")

	_, err := execute(t, "analyze", "--ytdlp-path", bin, "https://www.youtube.com/playlist?list=PL1")
	var exErr *errs.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, errs.ExtractionRateLimited, exErr.Kind)
}

func TestAnalyzeCommand_RequiresURL(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.Error(t, err)
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "version")
	assert.Error(t, err)
}

func TestDownloadCommand_InvalidFormat(t *testing.T) {
	bin := fakeYTDLP(t, "echo '"+playlistJSON+"'")

	_, err := execute(t, "download", "--ytdlp-path", bin, "--format", "avi", "https://www.youtube.com/playlist?list=PL1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDownloadCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	bin := fakeYTDLP(t, `
case "$*" in
  *--flat-playlist*) echo '`+playlistJSON+`' ;;
  *)
    out=""
    while [ $# -gt 0 ]; do
      if [ "$1" = "-o" ]; then out="$2"; fi
      shift
    done
    echo "[download]  50.0% of 1MiB"
    echo "[download] 100.0% of 1MiB"
    : > "$out"
    ;;
esac`)

	out, err := execute(t, "download", "--ytdlp-path", bin, "--download-dir", dir, "https://www.youtube.com/playlist?list=PL1")
	require.NoError(t, err, out)

	assert.Contains(t, out, "[ done ] First")
	assert.Contains(t, out, "[ done ] Second")
	assert.FileExists(t, filepath.Join(dir, "first.mp4"))
	assert.FileExists(t, filepath.Join(dir, "second.mp4"))
}

// stubRunner finishes every job at start: titles beginning with "bad" fail,
// everything else short-circuits as already downloaded.
type stubRunner struct{}

func (stubRunner) Start(d model.Descriptor, _ download.Reporter) (download.Started, error) {
	if strings.HasPrefix(d.Title, "bad") {
		return download.Started{}, errs.NewDownloadError(errs.DownloadToolMissing, errs.MsgToolMissing)
	}
	return download.Started{Path: "/out/" + d.Title + ".mp4"}, nil
}

func requests(titles ...string) []model.Request {
	reqs := make([]model.Request, 0, len(titles))
	for _, title := range titles {
		reqs = append(reqs, model.Request{URL: "https://www.youtube.com/watch?v=" + title, Title: title})
	}
	return reqs
}

func TestRunDownloads(t *testing.T) {
	svc := download.NewService(stubRunner{}, download.Options{Limit: 2})
	defer svc.Close()

	var out bytes.Buffer
	err := runDownloads(context.Background(), svc, requests("one", "two", "three"), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.String(), "[ done ]"))
}

func TestRunDownloads_ReportsFailures(t *testing.T) {
	svc := download.NewService(stubRunner{}, download.Options{Limit: 2})
	defer svc.Close()

	var out bytes.Buffer
	err := runDownloads(context.Background(), svc, requests("good", "bad"), &out)
	require.ErrorIs(t, err, ErrDownloadsFailed)
	assert.Contains(t, out.String(), "[failed] bad: "+errs.MsgToolMissing)
}

func TestRunDownloads_Empty(t *testing.T) {
	svc := download.NewService(stubRunner{}, download.Options{})
	defer svc.Close()

	assert.Error(t, runDownloads(context.Background(), svc, nil, io.Discard))
}

// blockingRunner starts processes that only end when killed
type blockingRunner struct{}

type blockingProcess struct{}

func (blockingProcess) Kill() error { return nil }
func (blockingProcess) Pid() int    { return 1 }

func (blockingRunner) Start(model.Descriptor, download.Reporter) (download.Started, error) {
	return download.Started{Process: blockingProcess{}, Path: "/out/x.mp4"}, nil
}

func TestRunDownloads_CancelOnContextDone(t *testing.T) {
	svc := download.NewService(blockingRunner{}, download.Options{Limit: 1})
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := runDownloads(ctx, svc, requests("one", "two"), &out)
	require.True(t, errors.Is(err, ErrDownloadsFailed))
	assert.Contains(t, out.String(), "interrupted")
	assert.Equal(t, 2, strings.Count(out.String(), "[cancel]"))
}

func TestOpenStatusStore(t *testing.T) {
	store, closeStore, err := openStatusStore(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	closeStore()
	assert.IsType(t, &status.MemoryStore{}, store)

	mr := miniredis.RunT(t)
	store, closeStore, err = openStatusStore(context.Background(), config.RedisConfig{Addr: mr.Addr(), StatusTTL: time.Hour})
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &status.RedisStore{}, store)
}

func TestOpenStatusStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := openStatusStore(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

// chattyRunner starts processes that report progress 1..100 and then run
// until killed
type chattyRunner struct{}

func (chattyRunner) Start(_ model.Descriptor, rep download.Reporter) (download.Started, error) {
	go func() {
		for i := 1; i <= 100; i++ {
			rep.Progress(float64(i))
		}
	}()
	return download.Started{Process: blockingProcess{}, Path: "/out/x.mp4"}, nil
}

// gatedWriter blocks every write until gate is closed
type gatedWriter struct {
	gate chan struct{}
	mu   sync.Mutex
	buf  bytes.Buffer
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	<-w.gate
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *gatedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestRunDownloads_CancelWithBacklogDoesNotHang(t *testing.T) {
	svc := download.NewService(chattyRunner{}, download.Options{Limit: 3})
	defer svc.Close()

	var progress atomic.Int64
	unsubscribe := svc.Subscribe(events.ObserverFunc(func(e events.Event) {
		if e.Kind == events.KindProgress {
			progress.Add(1)
		}
	}))
	defer unsubscribe()

	titles := make([]string, 10)
	for i := range titles {
		titles[i] = fmt.Sprintf("video-%d", i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &gatedWriter{gate: make(chan struct{})}

	result := make(chan error, 1)
	go func() { result <- runDownloads(ctx, svc, requests(titles...), out) }()

	// the reader is stuck on its first write while progress piles up
	require.Eventually(t, func() bool { return progress.Load() >= 300 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	close(out.gate)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrDownloadsFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("runDownloads did not return after interrupt")
	}
	assert.Equal(t, 10, strings.Count(out.String(), "[cancel]"))

	snap := svc.Snapshot()
	assert.Empty(t, snap.Active)
	assert.Empty(t, snap.Pending)
}

func TestDownloadCommand_InvalidQualityListsOptions(t *testing.T) {
	bin := fakeYTDLP(t, "echo '"+playlistJSON+"'")

	_, err := execute(t, "download", "--ytdlp-path", bin, "--quality", "8k", "https://www.youtube.com/playlist?list=PL1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected one of best, 2160p, 1440p, 1080p, 720p, 480p, 360p")
}

func TestDownloadCommand_QualityHelpListsOptions(t *testing.T) {
	cmd := NewDownloadCommand(&env{settings: config.NewSettings()})
	usage := cmd.Flags().Lookup("quality").Usage
	assert.Contains(t, usage, "best, 2160p, 1440p, 1080p, 720p, 480p, 360p")
}
