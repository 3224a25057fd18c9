package config

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrBuildForInvalid = errors.New("build_for must be one of 'target', 'tools', 'cross-tools'")
)

// validate performs validation on the loaded configuration.
func validate(cfg *Config) error {
	switch cfg.BuildFor {
	case "target", "tools", "cross-tools":
	default:
		return fmt.Errorf("%w: %q", ErrBuildForInvalid, cfg.BuildFor)
	}
	return nil
}
