// Package config loads runtime defaults from DEVDIARY_* environment
// variables; command flags override where they exist.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	GitBin      string `envconfig:"GIT_BIN" default:"git"`
	Placeholder string `envconfig:"PLACEHOLDER" default:"_No summary yet._"`
	Timezone    string `envconfig:"TIMEZONE" default:""`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("devdiary", &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

// Location resolves the configured timezone; empty means the process-local
// zone, which is also what dates in the evidence store are keyed by.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
