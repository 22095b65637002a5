package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/validate"
	"github.com/spf13/viper"
)

// Settings are the process-level knobs of the engine, as opposed to the
// runtime options applied through Configure.
type Settings struct {
	DataDir     string
	LogLevel    log.Level
	LogJSON     bool
	TimeoutUnit time.Duration // length of one watcher timeout step
	BundlePath  string        // optional overlay for the static bundles
	MaxStorage  string        // initial quota, empty for unlimited
	MetricsAddr string
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		DataDir:     "./appevent-data",
		LogLevel:    log.InfoLevel,
		TimeoutUnit: time.Second,
		MetricsAddr: "127.0.0.1:9095",
	}
}

// LoadSettings reads settings with flags > environment > file > defaults
// precedence. Environment variables use the APPEVENT_ prefix, for example
// APPEVENT_DATA_DIR.
func LoadSettings(path string) (Settings, error) {
	def := DefaultSettings()

	v := viper.New()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", string(def.LogLevel))
	v.SetDefault("log_json", def.LogJSON)
	v.SetDefault("timeout_unit", def.TimeoutUnit.String())
	v.SetDefault("bundle_path", def.BundlePath)
	v.SetDefault("max_storage", def.MaxStorage)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetEnvPrefix("APPEVENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	s := Settings{
		DataDir:     v.GetString("data_dir"),
		LogLevel:    log.ParseLevel(v.GetString("log_level")),
		LogJSON:     v.GetBool("log_json"),
		TimeoutUnit: v.GetDuration("timeout_unit"),
		BundlePath:  v.GetString("bundle_path"),
		MaxStorage:  v.GetString("max_storage"),
		MetricsAddr: v.GetString("metrics_addr"),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings for values the engine cannot start with
func (s Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if s.TimeoutUnit <= 0 {
		return fmt.Errorf("timeout_unit must be positive, got %v", s.TimeoutUnit)
	}
	if s.MaxStorage != "" {
		if _, err := validate.MaxStorage(s.MaxStorage); err != nil {
			return fmt.Errorf("max_storage %q: %w", s.MaxStorage, err)
		}
	}
	return nil
}
