package config

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager is the untyped key/value store config.Bootstrap seeds from
// viper and that components read their own settings from via Get[T]
// (typed.go). Beyond plain lookups it supports watching a key for
// changes, which cmd/poseidond's admin servlet uses to push a live
// config edit out to the running process without a restart.
type Manager struct {
	values map[string]interface{}
	mu     sync.RWMutex

	watchers map[string][]func(string, interface{})
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values:   make(map[string]interface{}),
		watchers: make(map[string][]func(string, interface{})),
	}
}

// Set sets a configuration value and notifies any watchers registered
// on key.
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	if watchers, exists := m.watchers[key]; exists {
		for _, watcher := range watchers {
			go watcher(key, value)
		}
	}
}

// Get gets a configuration value
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string, defaultValue ...string) string {
	if value, exists := m.Get(key); exists {
		if str, ok := value.(string); ok {
			return str
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetBool gets a boolean configuration value
func (m *Manager) GetBool(key string, defaultValue ...bool) bool {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "yes" || v == "1"
		case int:
			return v != 0
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return false
}

// GetFloat gets a float configuration value
func (m *Manager) GetFloat(key string, defaultValue ...float64) float64 {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0.0
}

// GetDuration gets a duration configuration value
func (m *Manager) GetDuration(key string, defaultValue ...time.Duration) time.Duration {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case time.Duration:
			return v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		case int64:
			return time.Duration(v)
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetStringSlice gets a string slice configuration value
func (m *Manager) GetStringSlice(key string, defaultValue ...[]string) []string {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case []string:
			return v
		case []interface{}:
			result := make([]string, len(v))
			for i, item := range v {
				if str, ok := item.(string); ok {
					result[i] = str
				}
			}
			return result
		case string:
			return strings.Split(v, ",")
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return []string{}
}

// Watch registers callback to run (in its own goroutine) every time
// key is Set. app.New uses this to keep the observability monitor's
// enabled flag in sync with "metrics_enabled" after an admin edit,
// without the monitor needing to poll the manager itself.
func (m *Manager) Watch(key string, callback func(string, interface{})) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchers[key] = append(m.watchers[key], callback)
}

// loadFromMap recursively loads configuration from a map, flattening
// nested maps into dot-joined keys. LoadFromViper and LoadFromYAML
// (viper_loader.go) both funnel through this.
func (m *Manager) loadFromMap(prefix string, values map[string]interface{}) {
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			m.loadFromMap(fullKey, nested)
		} else {
			m.Set(fullKey, value)
		}
	}
}

// GetAll returns a snapshot of every configuration value currently
// set. Used by the admin servlet to render the running process's
// effective config.
func (m *Manager) GetAll() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}

	return result
}

// Delete removes a configuration value. A watcher on key is not
// notified; Delete means "stop tracking this", not "set it to nil".
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
}
