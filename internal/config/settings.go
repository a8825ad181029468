// Package config loads application settings from defaults, an optional
// config file, STREAMPULL_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ytget/streampull/internal/model"
	"github.com/ytget/streampull/internal/platform"
)

// Settings keys
const (
	KeyDownloadDir    = "download_dir"
	KeyMaxParallel    = "max_parallel"
	KeyDefaultFormat  = "default_format"
	KeyDefaultQuality = "default_quality"
	KeyYTDLPPath      = "ytdlp_path"
	KeyFFmpegPath     = "ffmpeg_path"
	KeyExtractTimeout = "extract.timeout"
	KeyNativeFallback = "extract.native_fallback"
	KeyServerAddr     = "server.addr"
	KeyAllowedOrigins = "server.allowed_origins"
	KeyRedisAddr      = "redis.addr"
	KeyRedisPassword  = "redis.password"
	KeyRedisDB        = "redis.db"
	KeyStatusTTL      = "redis.status_ttl"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
)

// Sources
const (
	EnvPrefix  = "STREAMPULL"
	ConfigName = "streampull"
)

// Limits
const (
	MinMaxParallel     = 1
	MaxMaxParallel     = 10
	FallbackDownloadTo = "/tmp/downloads"
)

// Default values
const (
	DefaultMaxParallel    = 3
	DefaultFormat         = model.DefaultFormat
	DefaultQuality        = model.DefaultQuality
	DefaultYTDLPPath      = "yt-dlp"
	DefaultExtractTimeout = platform.DefaultParseTimeout
	DefaultServerAddr     = ":3000"
	DefaultStatusTTL      = 24 * time.Hour
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Settings manages application configuration
type Settings struct {
	v *viper.Viper
}

// NewSettings creates settings populated with defaults and environment
// bindings. No config file is read until Load is called.
func NewSettings() *Settings {
	v := viper.New()
	v.SetDefault(KeyMaxParallel, DefaultMaxParallel)
	v.SetDefault(KeyDefaultFormat, string(DefaultFormat))
	v.SetDefault(KeyDefaultQuality, string(DefaultQuality))
	v.SetDefault(KeyYTDLPPath, DefaultYTDLPPath)
	v.SetDefault(KeyExtractTimeout, DefaultExtractTimeout)
	v.SetDefault(KeyNativeFallback, false)
	v.SetDefault(KeyServerAddr, DefaultServerAddr)
	v.SetDefault(KeyAllowedOrigins, []string{"*"})
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyStatusTTL, DefaultStatusTTL)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Settings{v: v}
}

// Load reads the config file at path, or searches the working directory and
// $HOME/.streampull for streampull.{yaml,toml,json} when path is empty. A
// missing file is only an error when path was given explicitly.
func (s *Settings) Load(path string) error {
	if path != "" {
		s.v.SetConfigFile(path)
	} else {
		s.v.SetConfigName(ConfigName)
		s.v.AddConfigPath(".")
		s.v.AddConfigPath("$HOME/.streampull")
	}

	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// BindFlags binds command-line flags whose names match a settings key with
// dots replaced by dashes (e.g. --max-parallel, --server-addr).
func (s *Settings) BindFlags(fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if i := strings.Index(key, "_"); i > 0 && isSection(key[:i]) {
			key = key[:i] + "." + key[i+1:]
		}
		if err := s.v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return bindErr
}

func isSection(name string) bool {
	switch name {
	case "extract", "server", "redis", "log":
		return true
	}
	return false
}

// ConfigFile returns the file settings were loaded from, if any
func (s *Settings) ConfigFile() string {
	return s.v.ConfigFileUsed()
}

// GetDownloadDirectory returns the configured download directory, falling
// back to the user's Downloads directory
func (s *Settings) GetDownloadDirectory() string {
	if dir := s.v.GetString(KeyDownloadDir); dir != "" {
		return dir
	}
	dir, err := platform.GetHomeDownloadsDir()
	if err != nil {
		return FallbackDownloadTo
	}
	return dir
}

// GetMaxParallelDownloads returns the concurrency limit clamped to 1..10
func (s *Settings) GetMaxParallelDownloads() int {
	return clampParallel(s.v.GetInt(KeyMaxParallel))
}

func clampParallel(count int) int {
	if count < MinMaxParallel {
		return MinMaxParallel
	}
	if count > MaxMaxParallel {
		return MaxMaxParallel
	}
	return count
}

// GetDefaultFormat returns the format used when a request names none
func (s *Settings) GetDefaultFormat() model.Format {
	if f := model.Format(s.v.GetString(KeyDefaultFormat)); f.Valid() {
		return f
	}
	return DefaultFormat
}

// GetDefaultQuality returns the quality used when a request names none
func (s *Settings) GetDefaultQuality() model.Quality {
	if q := model.Quality(s.v.GetString(KeyDefaultQuality)); q.Valid() {
		return q
	}
	return DefaultQuality
}

// GetYTDLPPath returns the yt-dlp executable
func (s *Settings) GetYTDLPPath() string {
	return s.v.GetString(KeyYTDLPPath)
}

// GetFFmpegPath returns the optional ffmpeg location
func (s *Settings) GetFFmpegPath() string {
	return s.v.GetString(KeyFFmpegPath)
}

// GetExtractTimeout returns the playlist extraction timeout
func (s *Settings) GetExtractTimeout() time.Duration {
	if d := s.v.GetDuration(KeyExtractTimeout); d > 0 {
		return d
	}
	return DefaultExtractTimeout
}

// GetNativeFallback reports whether playlists may be listed without yt-dlp
func (s *Settings) GetNativeFallback() bool {
	return s.v.GetBool(KeyNativeFallback)
}

// GetServerAddr returns the HTTP listen address
func (s *Settings) GetServerAddr() string {
	return s.v.GetString(KeyServerAddr)
}

// GetAllowedOrigins returns the CORS and WebSocket origin allow-list
func (s *Settings) GetAllowedOrigins() []string {
	return s.v.GetStringSlice(KeyAllowedOrigins)
}

// RedisConfig is the optional status mirror connection
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	StatusTTL time.Duration
}

// Enabled reports whether a Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// GetRedis returns the Redis status mirror settings
func (s *Settings) GetRedis() RedisConfig {
	return RedisConfig{
		Addr:      s.v.GetString(KeyRedisAddr),
		Password:  s.v.GetString(KeyRedisPassword),
		DB:        s.v.GetInt(KeyRedisDB),
		StatusTTL: s.v.GetDuration(KeyStatusTTL),
	}
}

// GetLogLevel returns the log level
func (s *Settings) GetLogLevel() string {
	return s.v.GetString(KeyLogLevel)
}

// GetLogFormat returns the log format (text or json)
func (s *Settings) GetLogFormat() string {
	return s.v.GetString(KeyLogFormat)
}

// GetQualityOptions returns the selectable quality tiers, highest first
func (s *Settings) GetQualityOptions() []model.Quality {
	return []model.Quality{
		model.QualityBest, model.Quality2160p, model.Quality1440p,
		model.Quality1080p, model.Quality720p, model.Quality480p, model.Quality360p,
	}
}
