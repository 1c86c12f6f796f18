// Package config loads fsmrund's runtime configuration from defaults, an
// optional file and environment variables, and watches the file for the one
// field spec.md's scheduler allows to change while running.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level shape unmarshalled from file/env/flags.
type Config struct {
	Batch   BatchConfig   `mapstructure:"batch"`
	Logging LoggingConfig `mapstructure:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	WS      WSConfig      `mapstructure:"ws"`
}

// BatchConfig mirrors batchsystem.Config's mapstructure-tagged fields.
type BatchConfig struct {
	MaxBatchSize        int           `mapstructure:"max_batch_size"`
	PoolSize            int           `mapstructure:"pool_size"`
	RescheduleDuration  time.Duration `mapstructure:"reschedule_duration"`
	LowPriorityPoolSize int           `mapstructure:"low_priority_pool_size"`
}

// LoggingConfig controls the slog handler built by internal/logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// HTTPConfig controls internal/adminhttp's listener.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// WSConfig controls internal/wsgateway's listener.
type WSConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// OnRescheduleDurationChange is invoked with the newly parsed value whenever
// the watched file changes batch.reschedule_duration, the one field
// DESIGN.md's Open Question 4 allows to be hot-reloaded. The Poller reads
// its RescheduleDuration through a shared *atomic value rather than this
// callback directly — callers typically pass a closure that stores into
// that value.
type OnRescheduleDurationChange func(time.Duration)

// Loader owns the viper instance so Watch can keep re-reading the same
// sources the initial Load call used.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader with every default spec.md §6's Config table
// names, then layers a config file (if configFile is non-empty) and
// environment variables (prefixed FSMRUND_) on top, finally binding flags
// (if non-nil) so CLI overrides win over both.
func NewLoader(configFile string, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()

	v.SetDefault("batch.pool_size", 2)
	v.SetDefault("batch.reschedule_duration", 5*time.Second)
	v.SetDefault("batch.low_priority_pool_size", 1)
	v.SetDefault("batch.max_batch_size", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("http.listen_addr", ":8090")
	v.SetDefault("ws.listen_addr", ":8091")
	v.SetDefault("ws.path", "/ws")

	v.SetEnvPrefix("FSMRUND")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	return &Loader{v: v}, nil
}

// Load unmarshals the current view of the configuration.
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Watch installs an fsnotify watcher on the loaded config file (a no-op if
// none was set) that re-unmarshals on every write and, if
// batch.reschedule_duration actually changed, invokes onChange with the new
// value. Every other field is read once at Spawn time and is not live.
func (l *Loader) Watch(onChange OnRescheduleDurationChange) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	var last time.Duration
	if cfg, err := l.Load(); err == nil {
		last = cfg.Batch.RescheduleDuration
	}
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil || onChange == nil {
			return
		}
		if cfg.Batch.RescheduleDuration == last {
			return
		}
		last = cfg.Batch.RescheduleDuration
		onChange(last)
	})
	l.v.WatchConfig()
}
