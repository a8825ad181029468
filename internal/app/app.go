// Package app assembles the streampull command line: configuration, logging
// and the wiring between the extraction adapter, the download queue, the
// status store and the HTTP server.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ytget/streampull/internal/config"
	"github.com/ytget/streampull/internal/download"
	"github.com/ytget/streampull/internal/logger"
	"github.com/ytget/streampull/internal/platform"
)

// AppName is the root command name
const AppName = "streampull"

// env carries the state shared by every subcommand once flags are parsed
type env struct {
	configFile string
	settings   *config.Settings
	logger     *logrus.Logger
}

// NewRootCommand creates the root command with all subcommands attached
func NewRootCommand(version string) *cobra.Command {
	e := &env{settings: config.NewSettings()}

	root := &cobra.Command{
		Use:           AppName,
		Short:         "Playlist download orchestrator built on yt-dlp",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&e.configFile, "config", "c", "", "config file (default ./streampull.yaml or $HOME/.streampull/streampull.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("ytdlp-path", "", "yt-dlp executable")
	flags.String("ffmpeg-path", "", "ffmpeg location passed to yt-dlp")
	flags.String("download-dir", "", "directory downloads are written to")

	root.AddCommand(
		NewServeCommand(e),
		NewAnalyzeCommand(e),
		NewDownloadCommand(e),
		NewVersionCommand(version),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command) error {
	if err := e.settings.BindFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := e.settings.Load(e.configFile); err != nil {
		return err
	}

	cfg := logger.DefaultConfig()
	cfg.Level = e.settings.GetLogLevel()
	cfg.Format = e.settings.GetLogFormat()
	cfg.Output = cmd.ErrOrStderr()
	l, err := logger.New(cfg)
	if err != nil {
		return err
	}
	e.logger = l

	if file := e.settings.ConfigFile(); file != "" {
		l.WithField("file", file).Debug("config loaded")
	}
	return nil
}

func (e *env) analyzer() *platform.PlaylistParserService {
	opts := []platform.ParserOption{
		platform.WithBinary(e.settings.GetYTDLPPath()),
		platform.WithTimeout(e.settings.GetExtractTimeout()),
		platform.WithLogger(e.logger),
	}
	if e.settings.GetNativeFallback() {
		native := platform.NewYTDLPParserService()
		native.SetTimeout(e.settings.GetExtractTimeout())
		opts = append(opts, platform.WithNativeFallback(native))
	}
	return platform.NewPlaylistParserService(opts...)
}

func (e *env) service() *download.Service {
	runner := download.NewProcessRunner(download.RunnerConfig{
		Binary:     e.settings.GetYTDLPPath(),
		FFmpegPath: e.settings.GetFFmpegPath(),
		DefaultDir: e.settings.GetDownloadDirectory(),
	}, e.logger)

	return download.NewService(runner, download.Options{
		Limit:  e.settings.GetMaxParallelDownloads(),
		Logger: e.logger,
	})
}
