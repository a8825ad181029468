// Package errs defines the categorized error taxonomy shared by the extraction
// adapter, the process runner and the download queue.
package errs

import (
	"errors"
	"strings"
)

// ErrJobNotFound is returned when a cancel request names a job that is neither
// pending nor active.
var ErrJobNotFound = errors.New("job not found")

// ErrServiceClosed is returned by queue operations after Close
var ErrServiceClosed = errors.New("download service closed")

// ExtractionKind categorizes playlist extraction failures.
type ExtractionKind string

const (
	ExtractionAuthRequired ExtractionKind = "auth-required"
	ExtractionRateLimited  ExtractionKind = "rate-limited"
	ExtractionNotFound     ExtractionKind = "not-found"
	ExtractionPrivate      ExtractionKind = "private"
	ExtractionNetwork      ExtractionKind = "network"
	ExtractionTimeout      ExtractionKind = "timeout"
	ExtractionGeneric      ExtractionKind = "generic"
)

// DownloadKind categorizes download job failures.
type DownloadKind string

const (
	DownloadBotDetection DownloadKind = "bot-detection"
	DownloadForbidden    DownloadKind = "forbidden"
	DownloadNotFound     DownloadKind = "not-found"
	DownloadPrivate      DownloadKind = "private"
	DownloadUnavailable  DownloadKind = "unavailable"
	DownloadNetwork      DownloadKind = "network"
	DownloadGeneric      DownloadKind = "generic"
	DownloadToolMissing  DownloadKind = "tool-missing"
)

// User-facing messages
const (
	MsgNoVideos         = "no videos found"
	MsgTimedOut         = "timed out"
	MsgAuthRequired     = "sign-in required: this content might be age-restricted or premium"
	MsgRateLimited      = "rate limit exceeded (429), please try again later"
	MsgPlaylistNotFound = "playlist not found, please check the URL"
	MsgPlaylistPrivate  = "playlist is private or unavailable"
	MsgExtractNetwork   = "network error, please check your connection"
	MsgExtractGeneric   = "failed to fetch playlist"
	MsgNoData           = "no data received from yt-dlp"
	MsgParseFailed      = "failed to parse playlist data"
	MsgBotDetection     = "bot detection triggered, try updating yt-dlp"
	MsgForbidden        = "access denied, video may be restricted"
	MsgVideoNotFound    = "video not found"
	MsgVideoPrivate     = "video is private"
	MsgVideoUnavailable = "video is unavailable"
	MsgDownloadNetwork  = "network error, please try again"
	MsgDownloadGeneric  = "download failed, please try again"
	MsgToolMissing      = "yt-dlp not found. Please install yt-dlp."
	MsgStartFailed      = "failed to start download"
	MsgInterrupted      = "download was interrupted"
)

// ExtractionError is a categorized playlist extraction failure.
type ExtractionError struct {
	Kind    ExtractionKind
	Message string
	Err     error
}

func (e *ExtractionError) Error() string { return e.Message }

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError builds an ExtractionError with the given kind and message.
func NewExtractionError(kind ExtractionKind, message string) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: message}
}

// DownloadError is a categorized download job failure.
type DownloadError struct {
	Kind    DownloadKind
	Message string
	Err     error
}

func (e *DownloadError) Error() string { return e.Message }

func (e *DownloadError) Unwrap() error { return e.Err }

// NewDownloadError builds a DownloadError with the given kind and message.
func NewDownloadError(kind DownloadKind, message string) *DownloadError {
	return &DownloadError{Kind: kind, Message: message}
}

// ClassifyExtraction maps yt-dlp stderr from a failed metadata run to an
// ExtractionError. Matching is case-insensitive and the first matching
// category wins.
func ClassifyExtraction(stderr string) *ExtractionError {
	lower := strings.ToLower(stderr)
	switch {
	case containsAny(lower, "sign in", "cookies"):
		return NewExtractionError(ExtractionAuthRequired, MsgAuthRequired)
	case containsAny(lower, "429", "too many requests"):
		return NewExtractionError(ExtractionRateLimited, MsgRateLimited)
	case containsAny(lower, "404", "not found"):
		return NewExtractionError(ExtractionNotFound, MsgPlaylistNotFound)
	case containsAny(lower, "private", "unavailable"):
		return NewExtractionError(ExtractionPrivate, MsgPlaylistPrivate)
	case containsAny(lower, "network", "timeout", "timed out"):
		return NewExtractionError(ExtractionNetwork, MsgExtractNetwork)
	}

	if line := firstLine(stderr); line != "" {
		return NewExtractionError(ExtractionGeneric, "yt-dlp error: "+line)
	}
	return NewExtractionError(ExtractionGeneric, MsgExtractGeneric)
}

// ClassifyDownload maps yt-dlp stderr from a failed download to a DownloadError.
func ClassifyDownload(stderr string) *DownloadError {
	switch {
	case strings.Contains(stderr, "Sign in to confirm"):
		return NewDownloadError(DownloadBotDetection, MsgBotDetection)
	case containsAny(stderr, "HTTP Error 403", "Forbidden"):
		return NewDownloadError(DownloadForbidden, MsgForbidden)
	case strings.Contains(stderr, "HTTP Error 404"):
		return NewDownloadError(DownloadNotFound, MsgVideoNotFound)
	case strings.Contains(stderr, "Private video"):
		return NewDownloadError(DownloadPrivate, MsgVideoPrivate)
	case strings.Contains(stderr, "This video is unavailable"):
		return NewDownloadError(DownloadUnavailable, MsgVideoUnavailable)
	case containsAny(strings.ToLower(stderr), "network", "timeout", "timed out"):
		return NewDownloadError(DownloadNetwork, MsgDownloadNetwork)
	}
	return NewDownloadError(DownloadGeneric, MsgDownloadGeneric)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
