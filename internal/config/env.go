package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment key, e.g. NETGROWL_HOST or
// NETGROWL_PROWL_KEY.
const EnvPrefix = "NETGROWL_"

var dotenvOnce sync.Once

// LoadDotenv loads KEY=VALUE files into the process environment once per
// process. Variables already set are not overridden; missing files are
// ignored.
func LoadDotenv(paths ...string) error {
	var err error
	dotenvOnce.Do(func() {
		if len(paths) == 0 {
			paths = []string{".env"}
		}
		for _, p := range paths {
			if e := godotenv.Load(p); e != nil && !errors.Is(e, fs.ErrNotExist) {
				err = fmt.Errorf("dotenv %s: %w", p, e)
				return
			}
		}
	})
	return err
}

// ApplyEnv overlays NETGROWL_* variables onto cfg. Only variables that are
// set replace file values.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	return nil
}
