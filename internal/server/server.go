// Package server exposes the download queue over HTTP and relays lifecycle
// events to WebSocket clients.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ytget/streampull/internal/download"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/model"
	"github.com/ytget/streampull/internal/status"
)

// Analyzer enumerates the videos behind a URL
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*model.Playlist, error)
}

// Options configures a Server
type Options struct {
	AllowedOrigins []string
	DefaultFormat  model.Format
	DefaultQuality model.Quality
	YTDLPPath      string // reported by /health
	Logger         logrus.FieldLogger
}

// Server wires HTTP routes to the queue, the extraction adapter and the
// status store
type Server struct {
	queue    download.Downloader
	analyzer Analyzer
	store    status.Store
	hub      *Hub
	opts     Options
	logger   logrus.FieldLogger
	engine   *gin.Engine

	unsubscribe func()
}

// New creates a server and subscribes its WebSocket hub to the queue's
// events. store may be nil.
func New(queue download.Downloader, analyzer Analyzer, store status.Store, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{WildcardOrigin}
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = model.DefaultFormat
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = model.DefaultQuality
	}
	if opts.YTDLPPath == "" {
		opts.YTDLPPath = download.YTDLPCommand
	}

	s := &Server{
		queue:    queue,
		analyzer: analyzer,
		store:    store,
		hub:      NewHub(opts.AllowedOrigins, opts.Logger),
		opts:     opts,
		logger:   logger.WithComponent(opts.Logger, logger.ComponentServer),
	}
	s.unsubscribe = queue.Subscribe(s.hub)
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the WebSocket event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close detaches the hub from the queue and disconnects WebSocket clients
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/download", s.handleDownload)
		api.POST("/cancel/:id", s.handleCancel)
		api.POST("/cancel-all", s.handleCancelAll)
		api.GET("/jobs", s.handleJobs)
	}
	r.GET("/health", s.handleHealth)
	r.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(s.opts.AllowedOrigins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, "/ws") {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request handled")
	}
}
