package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ytget/streampull/internal/config"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/server"
	"github.com/ytget/streampull/internal/status"
)

// Server timeouts
const (
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	RedisPingTimeout  = 3 * time.Second
)

// NewServeCommand runs the HTTP API until interrupted
func NewServeCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("server-addr", "", "listen address (default :3000)")
	flags.StringSlice("server-allowed-origins", nil, "allowed CORS and WebSocket origins")
	flags.Int("max-parallel", 0, "maximum simultaneous downloads")
	flags.String("redis-addr", "", "mirror job status to this Redis server")
	return cmd
}

func (e *env) serve(ctx context.Context) error {
	log := logger.WithComponent(e.logger, logger.ComponentApp)

	store, closeStore, err := openStatusStore(ctx, e.settings.GetRedis())
	if err != nil {
		return err
	}
	defer closeStore()

	svc := e.service()
	recorder := status.NewRecorder(store, e.logger)
	unsubscribe := svc.Subscribe(recorder)

	srv := server.New(svc, e.analyzer(), store, server.Options{
		AllowedOrigins: e.settings.GetAllowedOrigins(),
		DefaultFormat:  e.settings.GetDefaultFormat(),
		DefaultQuality: e.settings.GetDefaultQuality(),
		YTDLPPath:      e.settings.GetYTDLPPath(),
		Logger:         e.logger,
	})

	httpServer := &http.Server{
		Addr:              e.settings.GetServerAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.WithError(serveErr).Error("server failed")
	}

	svc.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}

	srv.Close()
	svc.Close()
	unsubscribe()
	recorder.Close()

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}

// openStatusStore returns a Redis-backed store when an address is
// configured and an in-memory one otherwise
func openStatusStore(ctx context.Context, cfg config.RedisConfig) (status.Store, func(), error) {
	if !cfg.Enabled() {
		return status.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, RedisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return status.NewRedisStore(rdb, cfg.StatusTTL), func() { _ = rdb.Close() }, nil
}
