// Package config loads lab settings from flags, SLICELAB_* environment
// variables and an optional yaml file, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	BackendSim    = "sim"
	BackendDocker = "docker"

	EnvPrefix = "SLICELAB"
)

// Keys shared by flags, env and file.
const (
	KeyBackend          = "backend"
	KeyImage            = "image"
	KeyController       = "controller"
	KeyProbeTimeout     = "probe_timeout"
	KeyToleranceSamples = "tolerance_samples"
	KeyLogLevel         = "log_level"
)

type Config struct {
	Backend    string `mapstructure:"backend"`
	Image      string `mapstructure:"image"`
	Controller string `mapstructure:"controller"` // tcp:127.0.0.1:6633, empty for standalone bridges
	// ProbeTimeout bounds one probe step; expiry fails the step only.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// ToleranceSamples is how many samples expected and observed delivery
	// may differ by before a probe fails.
	ToleranceSamples int    `mapstructure:"tolerance_samples"`
	LogLevel         string `mapstructure:"log_level"`
}

// New returns a viper instance with defaults and env binding in place.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBackend, BackendSim)
	v.SetDefault(KeyImage, "sec_test")
	v.SetDefault(KeyController, "")
	v.SetDefault(KeyProbeTimeout, 10*time.Second)
	v.SetDefault(KeyToleranceSamples, 1)
	v.SetDefault(KeyLogLevel, "info")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a yaml config file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSim, BackendDocker:
	default:
		return errors.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSim, BackendDocker)
	}
	if c.ProbeTimeout <= 0 {
		return errors.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.ToleranceSamples < 0 {
		return errors.Errorf("tolerance_samples must not be negative, got %d", c.ToleranceSamples)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	if c.Backend == BackendDocker && c.Image == "" {
		return errors.New("docker backend needs an image")
	}
	return nil
}
