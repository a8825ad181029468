package model

import (
	"strings"
	"testing"
)

func TestFormat_IsAudio(t *testing.T) {
	tests := []struct {
		format   Format
		expected bool
	}{
		{FormatMP4, false},
		{FormatWebM, false},
		{FormatMKV, false},
		{FormatMP3, true},
		{FormatM4A, true},
		{FormatWAV, true},
	}

	for _, test := range tests {
		if result := test.format.IsAudio(); result != test.expected {
			t.Errorf("Format(%s).IsAudio() = %v, expected %v", test.format, result, test.expected)
		}
	}
}

func TestQuality_MaxHeight(t *testing.T) {
	tests := []struct {
		quality  Quality
		height   int
		hasLimit bool
	}{
		{QualityBest, 0, false},
		{Quality2160p, 2160, true},
		{Quality1080p, 1080, true},
		{Quality360p, 360, true},
		{Quality("144p"), 0, false},
	}

	for _, test := range tests {
		height, ok := test.quality.MaxHeight()
		if height != test.height || ok != test.hasLimit {
			t.Errorf("Quality(%s).MaxHeight() = (%d, %v), expected (%d, %v)",
				test.quality, height, ok, test.height, test.hasLimit)
		}
	}
}

func TestFormatAndQuality_Valid(t *testing.T) {
	for _, f := range []Format{FormatMP4, FormatWebM, FormatMKV, FormatMP3, FormatM4A, FormatWAV} {
		if !f.Valid() {
			t.Errorf("Format(%s) should be valid", f)
		}
	}
	if Format("avi").Valid() || Format("").Valid() {
		t.Error("unknown formats should be invalid")
	}

	for _, q := range []Quality{QualityBest, Quality2160p, Quality1440p, Quality1080p, Quality720p, Quality480p, Quality360p} {
		if !q.Valid() {
			t.Errorf("Quality(%s) should be valid", q)
		}
	}
	if Quality("144p").Valid() {
		t.Error("unknown tiers should be invalid")
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{
			name: "minimal valid request",
			req:  Request{URL: "https://www.youtube.com/watch?v=abc", Title: "A"},
		},
		{
			name: "full valid request",
			req: Request{
				URL: "https://www.youtube.com/watch?v=abc", Title: "A", Format: FormatMP3,
				Quality: Quality720p, Subfolder: true, Collection: "List",
			},
		},
		{
			name:    "missing url",
			req:     Request{Title: "A"},
			wantErr: "URL",
		},
		{
			name:    "malformed url",
			req:     Request{URL: "not a url", Title: "A"},
			wantErr: "URL",
		},
		{
			name:    "missing title",
			req:     Request{URL: "https://www.youtube.com/watch?v=abc"},
			wantErr: "Title",
		},
		{
			name:    "unknown format",
			req:     Request{URL: "https://www.youtube.com/watch?v=abc", Title: "A", Format: "avi"},
			wantErr: "Format",
		},
		{
			name:    "unknown quality",
			req:     Request{URL: "https://www.youtube.com/watch?v=abc", Title: "A", Quality: "8k"},
			wantErr: "Quality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %s, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewDescriptor_Defaults(t *testing.T) {
	d := NewDescriptor("job-1", Request{URL: "  https://youtu.be/abc ", Title: "Clip"})

	if d.ID != "job-1" {
		t.Errorf("expected ID job-1, got %s", d.ID)
	}
	if d.URL != "https://youtu.be/abc" {
		t.Errorf("expected trimmed URL, got %q", d.URL)
	}
	if d.Format != DefaultFormat {
		t.Errorf("expected default format %s, got %s", DefaultFormat, d.Format)
	}
	if d.Quality != DefaultQuality {
		t.Errorf("expected default quality %s, got %s", DefaultQuality, d.Quality)
	}
}

func TestJob_GetDisplayTitle(t *testing.T) {
	tests := []struct {
		title      string
		url        string
		outputPath string
		expected   string
	}{
		{"Video Title", "https://youtube.com/watch?v=123", "", "Video Title"},
		{"", "https://youtube.com/watch?v=123", "", "https://youtube.com/watch?v=123"},
		{"https://youtube.com/watch?v=456", "https://youtube.com/watch?v=456", "/tmp/dl/clip_one.mp4", "clip_one"},
		{"", "https://youtube.com/watch?v=789", `C:\dl\song.mp3`, "song"},
	}

	for _, test := range tests {
		job := &Job{Descriptor: Descriptor{Title: test.title, URL: test.url}, OutputPath: test.outputPath}
		result := job.GetDisplayTitle()
		if result != test.expected {
			t.Errorf("GetDisplayTitle() with title='%s', url='%s' = '%s', expected '%s'",
				test.title, test.url, result, test.expected)
		}
	}
}
