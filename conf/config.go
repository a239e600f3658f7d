/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package conf

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Domain names.
const (
	DomainMarket = "market"
	DomainSaaS   = "saas"
	DomainMesh   = "meshcredit"
)

// Config holds a generator or auditor run configuration. Every field maps to
// one environment variable.
type Config struct {
	Domain      string        `env:"DOMAIN"`
	OutDir      string        `env:"OUTDIR"`
	Segments    int           `env:"SEG"`
	Cycles      int           `env:"CPS"`
	Seed        string        `env:"SEED"`
	Workers     int           `env:"WORKERS"`
	Retries     int           `env:"RETRIES"`
	MaxPending  int           `env:"MAX_PENDING"`
	Epoch       string        `env:"EPOCH"`
	EpochStep   time.Duration `env:"EPOCH_STEP"`
	Profile     string        `env:"PROFILE"`
	LogLevel    string        `env:"LOG_LEVEL"`
	MetricsFile string        `env:"METRICS_FILE"`
	IndexDir    string        `env:"INDEX_DIR"`
}

var domainDefaults = map[string]struct{ seg, cps int }{
	DomainMarket: {24, 4},
	DomainSaaS:   {18, 6},
	DomainMesh:   {12, 5},
}

// Defaults returns the default configuration of domain.
func Defaults(domain string) Config {
	cfg := Config{
		Domain:    domain,
		OutDir:    "./ledger",
		Seed:      "epochcore",
		Workers:   8,
		Retries:   3,
		EpochStep: time.Second,
		LogLevel:  "info",
	}
	if d, ok := domainDefaults[domain]; ok {
		cfg.Segments, cfg.Cycles = d.seg, d.cps
	}
	return cfg
}

// Load overlays the process environment onto defaults.
func Load(defaults Config) (*Config, error) {
	return LoadFromEnv(defaults, env.ToMap(os.Environ()))
}

// LoadFromEnv overlays the variables in environ onto defaults. Unset
// variables keep their default values.
func LoadFromEnv(defaults Config, environ map[string]string) (cfg *Config, err error) {
	cfg = &defaults
	if err = env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "parse env: %v", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	switch {
	case c.Domain == "":
		return errors.Wrap(ErrInvalidConfig, "DOMAIN is empty")
	case c.OutDir == "":
		return errors.Wrap(ErrInvalidConfig, "OUTDIR is empty")
	case c.Segments < 1:
		return errors.Wrapf(ErrInvalidConfig, "SEG must be >= 1, got %d", c.Segments)
	case c.Cycles < 1:
		return errors.Wrapf(ErrInvalidConfig, "CPS must be >= 1, got %d", c.Cycles)
	case c.Workers < 1:
		return errors.Wrapf(ErrInvalidConfig, "WORKERS must be >= 1, got %d", c.Workers)
	case c.Retries < 0:
		return errors.Wrapf(ErrInvalidConfig, "RETRIES must be >= 0, got %d", c.Retries)
	case c.MaxPending < 0:
		return errors.Wrapf(ErrInvalidConfig, "MAX_PENDING must be >= 0, got %d", c.MaxPending)
	case c.EpochStep <= 0:
		return errors.Wrapf(ErrInvalidConfig, "EPOCH_STEP must be positive, got %s", c.EpochStep)
	}
	if _, _, err := c.EpochTime(); err != nil {
		return err
	}
	return nil
}

// EpochTime returns the parsed EPOCH and whether it was set.
func (c *Config) EpochTime() (t time.Time, ok bool, err error) {
	if c.Epoch == "" {
		return
	}
	if t, err = time.Parse(time.RFC3339, c.Epoch); err != nil {
		err = errors.Wrapf(ErrInvalidConfig, "EPOCH %q: %v", c.Epoch, err)
		return
	}
	ok = true
	return
}

