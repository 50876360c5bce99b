package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"netgrowl/internal/failure"
)

var validate = validator.New()

var levels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true, "warn": true,
	"warning": true, "error": true, "off": true, "disabled": true,
}

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return failure.Config("config", errors.New("config is nil"))
	}
	var msgs []string
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return failure.Config("config", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
		}
	}
	if _, err := cfg.Defaults.TimeoutDuration(); err != nil {
		msgs = append(msgs, err.Error())
	}
	if !levels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		msgs = append(msgs, fmt.Sprintf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if len(msgs) > 0 {
		return failure.Config("config", errors.New(strings.Join(msgs, "; ")))
	}
	return nil
}

// fieldPath turns "Config.Defaults.Port" into "defaults.port".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}
