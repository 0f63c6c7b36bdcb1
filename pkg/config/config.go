// Package config loads the daemon's settings from the environment.
package config

import (
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is filled from SIEGE_* environment variables, flags may
// override individual fields afterwards.
type Config struct {
	Threshold     int           `default:"5"`
	Window        time.Duration `default:"10m"`
	BlockDuration time.Duration `split_words:"true" default:"1h"`
	Whitelist     []string
	DryRun        bool          `split_words:"true"`
	Backend       string        `default:"auto"`
	LogSource     string        `split_words:"true" default:"auto"`
	AuthLogPath   string        `split_words:"true" default:"/var/log/auth.log"`
	ListenAddr    string        `split_words:"true" default:":8037"`
	SweepInterval time.Duration `split_words:"true" default:"15s"`
	SnapshotPath  string        `split_words:"true"`
	WebhookURL    string        `envconfig:"WEBHOOK_URL"`
}

// Load reads the environment. The result is not validated yet, the
// caller applies its overrides first.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("siege", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to read environment")
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Threshold < 1 {
		return errors.Errorf("threshold must be at least 1, got %v", c.Threshold)
	}
	if c.Window <= 0 {
		return errors.Errorf("window must be positive, got %v", c.Window)
	}
	if c.BlockDuration < 0 {
		return errors.Errorf("block duration cannot be negative, got %v", c.BlockDuration)
	}
	if c.SweepInterval <= 0 {
		return errors.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address cannot be empty")
	}

	switch c.LogSource {
	case "auto", "file", "journal", "none":
	default:
		return errors.Errorf("log source must be auto, file, journal, or none, got %v", c.LogSource)
	}

	switch c.Backend {
	case "auto", "ufw", "iptables":
	default:
		return errors.Errorf("backend must be auto, ufw, or iptables, got %v", c.Backend)
	}

	return nil
}

// Policy maps the detection settings onto the blocker's policy.
func (c Config) Policy() blocker.Policy {
	return blocker.Policy{
		Attempts:  c.Threshold,
		Period:    c.Window,
		BlockTime: c.BlockDuration,
	}
}
