package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "ACCOUNTS_"

// parseEnv overlays ACCOUNTS_* variables onto cfg. Unset variables leave the
// current value alone. A nil environ reads the process environment.
func parseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
