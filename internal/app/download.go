package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ytget/streampull/internal/download"
	"github.com/ytget/streampull/internal/events"
	"github.com/ytget/streampull/internal/model"
)

// EventBuffer sizes the channel the download command reads events from
const EventBuffer = 256

// ErrDownloadsFailed is returned when at least one job did not complete
var ErrDownloadsFailed = errors.New("some downloads did not complete")

type downloadFlags struct {
	format    string
	quality   string
	subfolder bool
	only      []string
}

// NewDownloadCommand analyzes a URL, queues every video and streams progress
// until all jobs finish. Interrupting cancels every job.
func NewDownloadCommand(e *env) *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download every video of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			playlist, err := e.analyzer().Analyze(ctx, args[0])
			if err != nil {
				return err
			}

			base := model.Request{
				Format:    model.Format(f.format),
				Quality:   model.Quality(f.quality),
				Subfolder: f.subfolder,
			}
			if base.Format == "" {
				base.Format = e.settings.GetDefaultFormat()
			}
			if base.Quality == "" {
				base.Quality = e.settings.GetDefaultQuality()
			}
			if !base.Format.Valid() {
				return fmt.Errorf("invalid format %q", f.format)
			}
			if !base.Quality.Valid() {
				return fmt.Errorf("invalid quality %q, expected one of %s", f.quality, qualityList(e.settings.GetQualityOptions()))
			}

			svc := e.service()
			defer svc.Close()

			return runDownloads(ctx, svc, playlist.Requests(base, f.only...), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.format, "format", "f", "", "container or audio format (mp4, webm, mkv, mp3, m4a, wav)")
	flags.StringVarP(&f.quality, "quality", "q", "", "maximum video quality ("+qualityList(e.settings.GetQualityOptions())+")")
	flags.BoolVar(&f.subfolder, "subfolder", false, "save into a folder named after the playlist")
	flags.StringSliceVar(&f.only, "only", nil, "download only these video ids")
	flags.Int("max-parallel", 0, "maximum simultaneous downloads")
	return cmd
}

func qualityList(options []model.Quality) string {
	names := make([]string, len(options))
	for i, q := range options {
		names[i] = string(q)
	}
	return strings.Join(names, ", ")
}

// runDownloads enqueues reqs and reports events to out until every job has
// reached a terminal state. Cancelling ctx cancels all jobs.
func runDownloads(ctx context.Context, queue download.Downloader, reqs []model.Request, out io.Writer) error {
	if len(reqs) == 0 {
		return errors.New("nothing to download")
	}

	ch := events.NewChanObserver(EventBuffer)
	unsubscribe := queue.Subscribe(ch)
	defer func() {
		unsubscribe()
		ch.Close()
	}()

	titles := make(map[string]string, len(reqs))
	for _, r := range reqs {
		id, err := queue.Enqueue(r)
		if err != nil {
			fmt.Fprintf(out, "skipped %q: %v\n", r.Title, err)
			continue
		}
		titles[id] = r.Title
	}

	var (
		remaining = len(titles)
		failed    int
		done      = ctx.Done()
	)
	for remaining > 0 {
		select {
		case <-done:
			fmt.Fprintln(out, "interrupted, cancelling downloads")
			queue.CancelAll()
			done = nil
		case ev := <-ch.Events():
			title, ok := titles[ev.JobID]
			if !ok {
				continue
			}
			switch ev.Kind {
			case events.KindProgress:
				fmt.Fprintf(out, "[%5.1f%%] %s\n", ev.Percent, title)
				continue
			case events.KindComplete:
				fmt.Fprintf(out, "[ done ] %s -> %s\n", title, ev.Path)
			case events.KindError:
				fmt.Fprintf(out, "[failed] %s: %s\n", title, ev.Message)
				failed++
			case events.KindCancelled:
				fmt.Fprintf(out, "[cancel] %s\n", title)
				failed++
			}
			remaining--
		}
	}

	if failed > 0 || len(titles) < len(reqs) {
		return fmt.Errorf("%w: %d of %d", ErrDownloadsFailed, failed+len(reqs)-len(titles), len(reqs))
	}
	return nil
}
