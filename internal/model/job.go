package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Format is the requested output container or audio codec
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMKV  Format = "mkv"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWAV  Format = "wav"
)

// DefaultFormat is used when a request does not name one
const DefaultFormat = FormatMP4

// Valid reports whether f is a supported format
func (f Format) Valid() bool {
	switch f {
	case FormatMP4, FormatWebM, FormatMKV, FormatMP3, FormatM4A, FormatWAV:
		return true
	}
	return false
}

// IsAudio reports whether the format requires audio extraction
func (f Format) IsAudio() bool {
	return f == FormatMP3 || f == FormatM4A || f == FormatWAV
}

// Quality is the requested resolution ceiling
type Quality string

const (
	QualityBest  Quality = "best"
	Quality2160p Quality = "2160p"
	Quality1440p Quality = "1440p"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
)

// DefaultQuality is used when a request does not name one
const DefaultQuality = QualityBest

var qualityHeights = map[Quality]int{
	Quality2160p: 2160,
	Quality1440p: 1440,
	Quality1080p: 1080,
	Quality720p:  720,
	Quality480p:  480,
	Quality360p:  360,
}

// Valid reports whether q is a supported tier
func (q Quality) Valid() bool {
	_, capped := qualityHeights[q]
	return capped || q == QualityBest
}

// MaxHeight returns the height ceiling for the tier; ok is false for "best"
// and unknown tiers, which apply no ceiling.
func (q Quality) MaxHeight() (height int, ok bool) {
	height, ok = qualityHeights[q]
	return height, ok
}

// Request carries the caller-supplied parameters for one download
type Request struct {
	URL        string  `json:"url" validate:"required,url"`
	Title      string  `json:"title" validate:"required"`
	VideoID    string  `json:"id,omitempty"`
	Dir        string  `json:"downloadPath,omitempty"`
	Format     Format  `json:"format,omitempty" validate:"omitempty,oneof=mp4 webm mkv mp3 m4a wav"`
	Quality    Quality `json:"quality,omitempty" validate:"omitempty,oneof=best 2160p 1440p 1080p 720p 480p 360p"`
	Subfolder  bool    `json:"createSubfolder,omitempty"`
	Collection string  `json:"playlistTitle,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request fields and reports the first invalid one
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid request: field %s failed %q validation", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("invalid request: %w", err)
}

// Descriptor is the immutable identity and parameters of one download job
type Descriptor struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	VideoID    string  `json:"videoId,omitempty"`
	Format     Format  `json:"format"`
	Quality    Quality `json:"quality"`
	Dir        string  `json:"dir,omitempty"`
	Subfolder  bool    `json:"subfolder,omitempty"`
	Collection string  `json:"collection,omitempty"`
}

// NewDescriptor builds a descriptor from a validated request, filling defaults
func NewDescriptor(id string, r Request) Descriptor {
	d := Descriptor{
		ID:         id,
		URL:        strings.TrimSpace(r.URL),
		Title:      r.Title,
		VideoID:    r.VideoID,
		Format:     r.Format,
		Quality:    r.Quality,
		Dir:        r.Dir,
		Subfolder:  r.Subfolder,
		Collection: r.Collection,
	}
	if d.Format == "" {
		d.Format = DefaultFormat
	}
	if d.Quality == "" {
		d.Quality = DefaultQuality
	}
	return d
}

// Job is a snapshot of a job's runtime record
type Job struct {
	Descriptor
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"` // 0 to 100
	OutputPath string    `json:"outputPath,omitempty"`
	LastError  string    `json:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (j *Job) GetDisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}

	if j.OutputPath != "" {
		parts := strings.FieldsFunc(j.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return j.URL
}
