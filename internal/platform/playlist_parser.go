package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/model"
)

// Extraction constants
const (
	DefaultYTDLPBinary   = "yt-dlp"
	SocketTimeoutSeconds = "30"
	ExtractWaitDelay     = 2 * time.Second
)

// PlaylistParserService enumerates playlist entries by running yt-dlp in
// metadata-only mode
type PlaylistParserService struct {
	binary  string
	timeout time.Duration
	native  *YTDLPParserService
	logger  logrus.FieldLogger
}

// ParserOption configures a PlaylistParserService
type ParserOption func(*PlaylistParserService)

// WithBinary sets the yt-dlp executable name or path
func WithBinary(binary string) ParserOption {
	return func(p *PlaylistParserService) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// WithTimeout sets the overall extraction timeout
func WithTimeout(timeout time.Duration) ParserOption {
	return func(p *PlaylistParserService) { p.timeout = timeout }
}

// WithNativeFallback lists playlists through the native client when the
// yt-dlp executable cannot be found
func WithNativeFallback(native *YTDLPParserService) ParserOption {
	return func(p *PlaylistParserService) { p.native = native }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) ParserOption {
	return func(p *PlaylistParserService) {
		p.logger = logger.WithComponent(l, logger.ComponentExtract)
	}
}

// NewPlaylistParserService creates a new playlist parser service
func NewPlaylistParserService(opts ...ParserOption) *PlaylistParserService {
	p := &PlaylistParserService{
		binary:  DefaultYTDLPBinary,
		timeout: DefaultParseTimeout,
		logger:  logger.WithComponent(nil, logger.ComponentExtract),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTimeout sets the timeout for playlist parsing
func (p *PlaylistParserService) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// BuildExtractArgs returns the yt-dlp arguments for a metadata-only run
func BuildExtractArgs(rawURL string) []string {
	args := []string{
		"--flat-playlist",
		"-J",
		"--no-warnings",
		"--socket-timeout", SocketTimeoutSeconds,
	}
	if IsPlaylistURL(rawURL) {
		args = append(args, "--yes-playlist")
	} else {
		args = append(args, "--no-playlist")
	}
	return append(args, rawURL)
}

// Analyze returns the ordered videos behind url. Failures are reported as
// *errs.ExtractionError.
func (p *PlaylistParserService) Analyze(ctx context.Context, rawURL string) (*model.Playlist, error) {
	rawURL = strings.TrimSpace(rawURL)
	log := p.logger.WithField("url", rawURL)

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.binary, BuildExtractArgs(rawURL)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	SetProcessGroup(cmd)
	cmd.Cancel = func() error { return TerminateTree(cmd) }
	cmd.WaitDelay = ExtractWaitDelay

	started := time.Now()
	log.Debug("extracting playlist")
	err := cmd.Run()

	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		log.WithField("timeout", p.timeout).Warn("extraction timed out")
		return nil, &errs.ExtractionError{Kind: errs.ExtractionTimeout, Message: errs.MsgTimedOut, Err: runCtx.Err()}
	case ctx.Err() != nil:
		return nil, fmt.Errorf("extraction cancelled: %w", ctx.Err())
	case isMissingExecutable(err):
		if p.native != nil && IsPlaylistURL(rawURL) {
			log.WithError(err).Info("yt-dlp not found, using native playlist client")
			return p.native.ParsePlaylist(ctx, rawURL)
		}
		return nil, &errs.ExtractionError{Kind: errs.ExtractionGeneric, Message: errs.MsgToolMissing, Err: err}
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &errs.ExtractionError{Kind: errs.ExtractionGeneric, Message: errs.MsgExtractGeneric, Err: err}
		}
		classified := errs.ClassifyExtraction(stderr.String())
		classified.Err = err
		log.WithFields(logrus.Fields{
			"exit_code": exitErr.ExitCode(),
			"kind":      classified.Kind,
		}).Warn("yt-dlp extraction failed")
		return nil, classified
	}

	playlist, err := ParseExtractOutput(rawURL, stdout.Bytes())
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"videos":   playlist.Len(),
		"duration": time.Since(started),
	}).Info("playlist extracted")
	return playlist, nil
}

func isMissingExecutable(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

type ytdlpThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ytdlpEntry struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	URL            string           `json:"url"`
	WebpageURL     string           `json:"webpage_url"`
	Thumbnail      string           `json:"thumbnail"`
	Thumbnails     []ytdlpThumbnail `json:"thumbnails"`
	Duration       float64          `json:"duration"`
	DurationString string           `json:"duration_string"`
}

type ytdlpResponse struct {
	ytdlpEntry
	Entries *[]*ytdlpEntry `json:"entries"`
}

// ParseExtractOutput decodes the JSON document printed by a metadata-only
// yt-dlp run. A document without entries is treated as a single item.
func ParseExtractOutput(rawURL string, data []byte) (*model.Playlist, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errs.NewExtractionError(errs.ExtractionGeneric, errs.MsgNoData)
	}

	var resp *ytdlpResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &errs.ExtractionError{Kind: errs.ExtractionGeneric, Message: errs.MsgParseFailed, Err: err}
	}
	if resp == nil {
		return nil, errs.NewExtractionError(errs.ExtractionGeneric, errs.MsgParseFailed)
	}

	playlist := model.NewPlaylist(rawURL)

	if resp.Entries == nil {
		if resp.ID == "" || resp.Title == "" {
			return nil, errs.NewExtractionError(errs.ExtractionGeneric, errs.MsgNoVideos)
		}
		v := toVideo(&resp.ytdlpEntry)
		v.URL = firstNonEmpty(resp.WebpageURL, resp.URL, rawURL)
		playlist.AddVideo(v)
		playlist.Title = resp.Title
		return playlist, nil
	}

	playlist.ID = resp.ID
	playlist.Title = resp.Title
	for _, entry := range *resp.Entries {
		if entry == nil || entry.ID == "" {
			continue
		}
		playlist.AddVideo(toVideo(entry))
	}
	if playlist.Len() == 0 {
		return nil, errs.NewExtractionError(errs.ExtractionGeneric, errs.MsgNoVideos)
	}
	if playlist.Title == "" {
		playlist.Title = extractPlaylistTitle(playlist.Videos)
	}
	return playlist, nil
}

func toVideo(e *ytdlpEntry) *model.Video {
	v := &model.Video{
		ID:        e.ID,
		Title:     firstNonEmpty(e.Title, DefaultVideoTitle),
		URL:       firstNonEmpty(e.URL, fmt.Sprintf(YouTubeVideoURLTemplate, e.ID)),
		Thumbnail: bestThumbnail(e),
	}
	switch {
	case e.DurationString != "":
		v.Duration = e.DurationString
	case e.Duration > 0:
		v.Duration = formatDuration(int(e.Duration))
	}
	return v
}

// bestThumbnail picks the largest thumbnail by area
func bestThumbnail(e *ytdlpEntry) string {
	best, bestArea := "", -1
	for _, t := range e.Thumbnails {
		if t.URL == "" {
			continue
		}
		if area := t.Width * t.Height; area > bestArea {
			best, bestArea = t.URL, area
		}
	}
	return firstNonEmpty(best, e.Thumbnail, fmt.Sprintf(YouTubeThumbTemplate, e.ID))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
