package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/model"
)

// Timeout constants
const (
	DefaultParseTimeout = 60 * time.Second
)

// URL parameters and templates
const (
	PlaylistParam           = "list="
	PlaylistPathSegment     = "/playlist"
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
	YouTubeThumbTemplate    = "https://i.ytimg.com/vi/%s/hqdefault.jpg"
)

// Default values
const (
	DefaultVideoTitle   = "Untitled"
	DefaultPlaylistName = "Unknown Playlist"
)

// Playlist title constants
const (
	MinPrefixLength = 10
	PlaylistSuffix  = " Playlist"
)

// Time formatting constants
const (
	SecondsPerHour   = 3600
	SecondsPerMinute = 60
	TimeFormat       = "%02d"
)

// YTDLPParserService lists playlists through the native Go client. It is the
// fallback used when the yt-dlp executable is unavailable.
type YTDLPParserService struct {
	timeout time.Duration
	client  *ytdlp.Downloader
}

// NewYTDLPParserService creates a new parser service
func NewYTDLPParserService() *YTDLPParserService {
	return &YTDLPParserService{
		timeout: DefaultParseTimeout,
		client:  ytdlp.New(),
	}
}

// SetTimeout sets the timeout for parsing operations
func (y *YTDLPParserService) SetTimeout(timeout time.Duration) {
	y.timeout = timeout
}

// ParsePlaylist lists the playlist named by url
func (y *YTDLPParserService) ParsePlaylist(ctx context.Context, rawURL string) (*model.Playlist, error) {
	playlistID := ExtractPlaylistID(rawURL)
	if playlistID == "" {
		return nil, &errs.ExtractionError{
			Kind:    errs.ExtractionNotFound,
			Message: errs.MsgPlaylistNotFound,
			Err:     fmt.Errorf("could not extract playlist ID from URL: %s", rawURL),
		}
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	items, err := y.client.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &errs.ExtractionError{Kind: errs.ExtractionTimeout, Message: errs.MsgTimedOut, Err: err}
		}
		return nil, &errs.ExtractionError{Kind: errs.ExtractionGeneric, Message: errs.MsgExtractGeneric, Err: err}
	}

	playlist := model.NewPlaylist(rawURL)
	playlist.ID = playlistID
	for _, it := range items {
		playlist.AddVideo(nativeVideo(it.VideoID, it.Title))
	}
	if playlist.Len() == 0 {
		return nil, errs.NewExtractionError(errs.ExtractionGeneric, errs.MsgNoVideos)
	}
	playlist.Title = extractPlaylistTitle(playlist.Videos)
	return playlist, nil
}

func nativeVideo(id, title string) *model.Video {
	if title == "" {
		title = DefaultVideoTitle
	}
	return &model.Video{
		ID:        id,
		Title:     title,
		URL:       fmt.Sprintf(YouTubeVideoURLTemplate, id),
		Thumbnail: fmt.Sprintf(YouTubeThumbTemplate, id),
	}
}

// IsPlaylistURL reports whether the URL names a playlist rather than a single item
func IsPlaylistURL(rawURL string) bool {
	return strings.Contains(rawURL, PlaylistParam) || strings.Contains(rawURL, PlaylistPathSegment)
}

// ExtractPlaylistID returns the list query parameter, or "" when absent
func ExtractPlaylistID(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if id := u.Query().Get("list"); id != "" {
			return id
		}
	}
	parts := strings.SplitN(rawURL, PlaylistParam, 2)
	if len(parts) < 2 {
		return ""
	}
	id, _, _ := strings.Cut(parts[1], "&")
	return id
}

// formatDuration formats seconds into HH:MM:SS or MM:SS
func formatDuration(seconds int) string {
	hours := seconds / SecondsPerHour
	minutes := (seconds % SecondsPerHour) / SecondsPerMinute
	secs := seconds % SecondsPerMinute
	if hours > 0 {
		return fmt.Sprintf(TimeFormat+":"+TimeFormat+":"+TimeFormat, hours, minutes, secs)
	}
	return fmt.Sprintf(TimeFormat+":"+TimeFormat, minutes, secs)
}

// extractPlaylistTitle derives a collection title from the first videos when
// the source reports none
func extractPlaylistTitle(videos []*model.Video) string {
	if len(videos) == 0 {
		return DefaultPlaylistName
	}
	if len(videos) > 1 {
		commonPrefix := findCommonPrefix(videos[0].Title, videos[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return videos[0].Title + PlaylistSuffix
}

func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
