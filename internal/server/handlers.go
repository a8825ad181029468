package server

import (
	"errors"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ytget/streampull/internal/download"
	"github.com/ytget/streampull/internal/errs"
	"github.com/ytget/streampull/internal/model"
	"github.com/ytget/streampull/internal/status"
)

// YouTubeOrigin prefixes relative watch URLs
const YouTubeOrigin = "https://www.youtube.com"

// yt-dlp availability reported by /health
const (
	ToolInstalled = "installed"
	ToolMissing   = "missing"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	Title   string         `json:"title,omitempty"`
	Videos  []*model.Video `json:"videos"`
	Message string         `json:"message"`
}

type downloadRequest struct {
	URL           string        `json:"url"`
	Format        model.Format  `json:"format"`
	Quality       model.Quality `json:"quality"`
	Title         string        `json:"title"`
	ID            string        `json:"id"`
	DownloadPath  string        `json:"downloadPath"`
	Subfolder     bool          `json:"createSubfolder"`
	PlaylistTitle string        `json:"playlistTitle"`
}

type downloadResponse struct {
	Videos     []*model.Video `json:"videos"`
	JobIDs     []string       `json:"jobIds"`
	DownloadID string         `json:"downloadId,omitempty"`
	Message    string         `json:"message"`
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
	YTDLP  string    `json:"ytdlp"`
}

type jobsResponse struct {
	download.Snapshot
	History []status.Entry `json:"history"`
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		errorJSON(c, http.StatusBadRequest, "URL is required")
		return
	}

	playlist, err := s.analyzer.Analyze(c.Request.Context(), normalizeURL(req.URL))
	if err != nil {
		s.extractionFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{
		Title:   playlist.Title,
		Videos:  playlist.Videos,
		Message: "Playlist analyzed successfully",
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	var body downloadRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		errorJSON(c, http.StatusBadRequest, "Valid URL is required")
		return
	}

	base := model.Request{
		URL:        normalizeURL(body.URL),
		Title:      body.Title,
		VideoID:    body.ID,
		Dir:        body.DownloadPath,
		Format:     body.Format,
		Quality:    body.Quality,
		Subfolder:  body.Subfolder,
		Collection: body.PlaylistTitle,
	}
	if base.Format == "" {
		base.Format = s.opts.DefaultFormat
	}
	if base.Quality == "" {
		base.Quality = s.opts.DefaultQuality
	}

	if !base.Format.Valid() {
		errorJSON(c, http.StatusBadRequest, "Invalid format")
		return
	}
	if !base.Quality.Valid() {
		errorJSON(c, http.StatusBadRequest, "Invalid quality")
		return
	}

	var (
		videos []*model.Video
		reqs   []model.Request
	)
	if body.Title != "" && body.ID != "" {
		videos = []*model.Video{{
			ID:    body.ID,
			Title: body.Title,
			URL:   base.URL,
		}}
		reqs = []model.Request{base}
	} else {
		playlist, err := s.analyzer.Analyze(c.Request.Context(), base.URL)
		if err != nil {
			s.extractionFailed(c, err)
			return
		}
		videos = playlist.Videos
		reqs = playlist.Requests(base)
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		id, err := s.queue.Enqueue(r)
		if err != nil {
			s.logger.WithError(err).WithField("url", r.URL).Warn("failed to enqueue video")
			if errors.Is(err, errs.ErrServiceClosed) {
				errorJSON(c, http.StatusServiceUnavailable, err.Error())
				return
			}
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		errorJSON(c, http.StatusBadRequest, "No valid videos to download")
		return
	}

	resp := downloadResponse{Videos: videos, JobIDs: ids, Message: "Downloads queued"}
	if len(ids) == 1 {
		resp.DownloadID = ids[0]
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if !s.queue.Cancel(id) {
		errorJSON(c, http.StatusNotFound, errs.ErrJobNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Download cancelled", "id": id})
}

func (s *Server) handleCancelAll(c *gin.Context) {
	s.queue.CancelAll()
	c.JSON(http.StatusOK, gin.H{"message": "All downloads cancelled"})
}

func (s *Server) handleHealth(c *gin.Context) {
	tool := ToolInstalled
	if _, err := exec.LookPath(s.opts.YTDLPPath); err != nil {
		tool = ToolMissing
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC(), YTDLP: tool})
}

func (s *Server) handleJobs(c *gin.Context) {
	resp := jobsResponse{Snapshot: s.queue.Snapshot(), History: []status.Entry{}}
	if s.store != nil {
		history, err := s.store.List(c.Request.Context())
		if err != nil {
			s.logger.WithError(err).Warn("failed to list job history")
		} else {
			resp.History = history
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) extractionFailed(c *gin.Context, err error) {
	var exErr *errs.ExtractionError
	if !errors.As(err, &exErr) {
		s.logger.WithError(err).Error("extraction failed")
		errorJSON(c, http.StatusInternalServerError, "Failed to analyze playlist")
		return
	}

	code := http.StatusBadGateway
	switch {
	case exErr.Kind == errs.ExtractionTimeout:
		code = http.StatusGatewayTimeout
	case exErr.Kind == errs.ExtractionNotFound, exErr.Message == errs.MsgNoVideos:
		code = http.StatusNotFound
	}
	errorJSON(c, code, exErr.Message)
}

// normalizeURL trims the URL and prefixes relative watch paths
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "/") {
		return YouTubeOrigin + raw
	}
	return raw
}
