package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"
)

// LoadFromViper copies every setting from a live *viper.Viper instance
// into the manager, preserving viper's own precedence (flags > env >
// config file > defaults) since v.AllSettings() already reflects it.
func (m *Manager) LoadFromViper(v *viper.Viper) {
	m.loadFromMap("", v.AllSettings())
}

// LoadFromYAML loads configuration from a YAML file. Poseidon favors
// this over viper's own file reader when the manager is used
// standalone (outside an *App wired to viper), since goccy/go-yaml
// gives strict, fast decoding without pulling in viper's file-watcher
// machinery.
func (m *Manager) LoadFromYAML(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	m.loadFromMap("", values)
	return nil
}
