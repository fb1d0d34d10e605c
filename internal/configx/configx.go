// Package configx runs the layering shared by the server and gateway
// configs: defaults, then an optional JSON file named by -c/-config, then
// the environment, then command-line flags.
package configx

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/gameauth/internal/flagx"
	"github.com/dmitrijs2005/gameauth/internal/timex"
)

// Load overlays the JSON file, the environment and the flags onto cfg,
// which must already hold its defaults.
func Load[T any](cfg *T, applyJSON func(*T, []byte) error, parseFlags func(*T) error) error {
	if path := flagx.JsonConfigFlags(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := applyJSON(cfg, data); err != nil {
			return err
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return err
	}
	return parseFlags(cfg)
}

// ParseEnv overlays the variables named by the env tags of cfg. Unset
// variables leave the field as it is.
func ParseEnv(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func SetString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func SetDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

// SetPositive copies v only when it is above zero.
func SetPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
