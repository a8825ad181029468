package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/model"
)

func TestNewYTDLPParserService(t *testing.T) {
	service := NewYTDLPParserService()
	if service.timeout != DefaultParseTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultParseTimeout, service.timeout)
	}
	if service.client == nil {
		t.Error("client should not be nil")
	}

	service.SetTimeout(30 * time.Second)
	if service.timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", service.timeout)
	}
}

func TestIsPlaylistURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{"watch with list", "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID", true},
		{"playlist page", "https://www.youtube.com/playlist?list=PLAYLIST_ID", true},
		{"single video", "https://www.youtube.com/watch?v=VIDEO_ID", false},
		{"short link", "https://youtu.be/VIDEO_ID", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlaylistURL(tt.url); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"playlist page", "https://www.youtube.com/playlist?list=PL123", "PL123"},
		{"watch with extra params", "https://www.youtube.com/watch?v=abc&list=PL456&start_radio=1", "PL456"},
		{"no list", "https://www.youtube.com/watch?v=abc", ""},
		{"not a url", "list=PL789&x=1", "PL789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPlaylistID(tt.url); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{225, "03:45"},
		{3661, "01:01:01"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.expected {
			t.Errorf("formatDuration(%d): expected %q, got %q", tt.seconds, tt.expected, got)
		}
	}
}

func TestFindCommonPrefix(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected string
	}{
		{"Album Name - Track 1", "Album Name - Track 2", "Album Name - Track "},
		{"abc", "xyz", ""},
		{"same", "same", "same"},
		{"", "anything", ""},
	}

	for _, tt := range tests {
		if got := findCommonPrefix(tt.s1, tt.s2); got != tt.expected {
			t.Errorf("findCommonPrefix(%q, %q): expected %q, got %q", tt.s1, tt.s2, tt.expected, got)
		}
	}
}

func TestExtractPlaylistTitle(t *testing.T) {
	tests := []struct {
		name     string
		videos   []*model.Video
		expected string
	}{
		{"empty", nil, DefaultPlaylistName},
		{"single", []*model.Video{{Title: "Song"}}, "Song" + PlaylistSuffix},
		{
			"common prefix",
			[]*model.Video{{Title: "Greatest Hits - One"}, {Title: "Greatest Hits - Two"}},
			"Greatest Hits -" + PlaylistSuffix,
		},
		{
			"short prefix ignored",
			[]*model.Video{{Title: "A one"}, {Title: "A two"}},
			"A one" + PlaylistSuffix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPlaylistTitle(tt.videos); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNativeVideo(t *testing.T) {
	v := nativeVideo("id1", "")
	if v.Title != DefaultVideoTitle {
		t.Errorf("expected fallback title, got %q", v.Title)
	}
	if v.URL != "https://www.youtube.com/watch?v=id1" {
		t.Errorf("unexpected URL %q", v.URL)
	}
}

func TestParsePlaylist_MissingListID(t *testing.T) {
	service := NewYTDLPParserService()

	_, err := service.ParsePlaylist(context.Background(), "https://www.youtube.com/playlist")

	var exErr *errs.ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if exErr.Kind != errs.ExtractionNotFound {
		t.Errorf("expected kind %s, got %s", errs.ExtractionNotFound, exErr.Kind)
	}
	if exErr.Message != errs.MsgPlaylistNotFound {
		t.Errorf("expected message %q, got %q", errs.MsgPlaylistNotFound, exErr.Message)
	}
}
