// Package config loads daemon settings from HIFICLOCK_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment key
const EnvPrefix = "HIFICLOCK"

// Config is the full daemon configuration
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Cover   CoverConfig   `mapstructure:"cover"`
	State   StateConfig   `mapstructure:"state"`
	Screen  ScreenConfig  `mapstructure:"screen"`
	Display DisplayConfig `mapstructure:"display"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
}

// SourceConfig selects where metadata comes from
type SourceConfig struct {
	Mode        string        `mapstructure:"mode"`
	PipePath    string        `mapstructure:"pipe_path"`
	ReaderPath  string        `mapstructure:"reader_path"`
	Signature   string        `mapstructure:"signature"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	DBusBus     string        `mapstructure:"dbus_bus"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In("pipe", "reader", "mpris")),
		validation.Field(&c.PipePath, validation.When(c.Mode != "mpris", validation.Required)),
		validation.Field(&c.Signature, validation.Length(4, 4)),
		validation.Field(&c.ReadTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RetryDelay, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.DBusBus, validation.When(c.Mode == "mpris", validation.Required, validation.In("session", "system"))),
	)
}

// CoverConfig configures cover art resolution
type CoverConfig struct {
	CacheDir       string        `mapstructure:"cache_dir"`
	ReceiverDir    string        `mapstructure:"receiver_dir"`
	StreamFile     string        `mapstructure:"stream_file"`
	DefaultPath    string        `mapstructure:"default_path"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	MusicBrainzURL string        `mapstructure:"musicbrainz_url"`
	ArchiveURL     string        `mapstructure:"archive_url"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Validate validates the cover configuration.
func (c *CoverConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheDir, validation.Required),
		validation.Field(&c.StreamFile, validation.Required),
		validation.Field(&c.LookupTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MusicBrainzURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.ArchiveURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.UserAgent, validation.Required),
	)
}

// StateConfig locates the persisted activity flag
type StateConfig struct {
	File string `mapstructure:"file"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.File, validation.Required),
	)
}

// ScreenConfig tunes the screen coordinator
type ScreenConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// Validate validates the screen configuration.
func (c *ScreenConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Cooldown, validation.Required, validation.Min(time.Second)),
	)
}

// DisplayConfig overrides display detection. Zero means detect.
type DisplayConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Validate validates the display configuration.
func (c *DisplayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Min(0), validation.Max(16384)),
		validation.Field(&c.Height, validation.Min(0), validation.Max(16384)),
	)
}

// HTTPConfig holds the local HTTP surface settings
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
	)
}

// LogConfig holds the logger level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.By(func(v any) error {
			_, err := zapcore.ParseLevel(v.(string))
			return err
		})),
	)
}

// ZapLevel returns the parsed level, info when invalid
func (c *LogConfig) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []validation.Validatable{&c.Source, &c.Cover, &c.State, &c.Screen, &c.Display, &c.HTTP, &c.Log}
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if (c.Display.Width == 0) != (c.Display.Height == 0) {
		return errors.New("display: width and height must be set together")
	}
	return nil
}

func httpURL(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.mode", "pipe")
	v.SetDefault("source.pipe_path", "/tmp/shairport-sync-metadata")
	v.SetDefault("source.reader_path", "")
	v.SetDefault("source.signature", "ssnc")
	v.SetDefault("source.read_timeout", 30*time.Second)
	v.SetDefault("source.retry_delay", 2*time.Second)
	v.SetDefault("source.dbus_bus", "system")

	v.SetDefault("cover.cache_dir", "/var/cache/hificlock/covers")
	v.SetDefault("cover.receiver_dir", "/tmp/shairport-sync/.cache/coverart")
	v.SetDefault("cover.stream_file", "/tmp/hificlock/stream-cover")
	v.SetDefault("cover.default_path", "")
	v.SetDefault("cover.lookup_timeout", 8*time.Second)
	v.SetDefault("cover.musicbrainz_url", "https://musicbrainz.org/ws/2")
	v.SetDefault("cover.archive_url", "https://coverartarchive.org")
	v.SetDefault("cover.user_agent", "hificlock/1.0 ( https://github.com/genricoloni/hificlock )")

	v.SetDefault("state.file", "/tmp/shairport_state.json")
	v.SetDefault("screen.cooldown", 10*time.Second)
	v.SetDefault("display.width", 0)
	v.SetDefault("display.height", 0)
	v.SetDefault("http.addr", "127.0.0.1:8765")
	v.SetDefault("log.level", "info")
}

// Load reads the configuration. The YAML file is taken from HIFICLOCK_CONFIG,
// else ./config.yaml when present; environment variables win over both.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves ~ and $VARS in filesystem settings
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Source.PipePath, &c.Source.ReaderPath,
		&c.Cover.CacheDir, &c.Cover.ReceiverDir, &c.Cover.StreamFile, &c.Cover.DefaultPath,
		&c.State.File,
	} {
		*p = expandPath(*p)
	}
}

func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}

// LogFields writes the effective configuration
func (c *Config) LogFields(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.String("sourceMode", c.Source.Mode),
		zap.String("pipePath", c.Source.PipePath),
		zap.String("cacheDir", c.Cover.CacheDir),
		zap.String("stateFile", c.State.File),
		zap.Duration("cooldown", c.Screen.Cooldown),
		zap.String("httpAddr", c.HTTP.Addr),
		zap.String("logLevel", c.Log.Level))
}
