package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks target's exported fields against its `validate`
// struct tags, the same tags used throughout this module's structs
// (see Config, persistence.Config).
func Validate(target any) error {
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Decode binds the manager's values under prefix into target using
// mapstructure (so nested maps and slices decode the same way they
// would from a YAML/JSON config file), then validates the result.
func Decode(m *Manager, prefix string, target any) error {
	m.mu.RLock()
	raw := rawUnderPrefix(m.values, prefix)
	m.mu.RUnlock()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	return Validate(target)
}

func rawUnderPrefix(values map[string]interface{}, prefix string) map[string]interface{} {
	if prefix == "" {
		return values
	}
	out := make(map[string]interface{})
	p := prefix + "."
	for k, v := range values {
		if strings.HasPrefix(k, p) {
			out[strings.TrimPrefix(k, p)] = v
		}
	}
	return out
}
