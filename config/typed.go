package config

import "time"

// Get is the generic form of the external configuration interface
// Poseidon's components use: get<T>(key, default) -> T. It dispatches
// to the manager's existing typed accessors so callers get consistent
// coercion rules (string "true"/"1" for bool, etc.) regardless of
// which Go type they ask for.
func Get[T any](m *Manager, key string, def T) T {
	switch any(def).(type) {
	case string:
		return any(m.GetString(key, any(def).(string))).(T)
	case int:
		return any(m.GetInt(key, any(def).(int))).(T)
	case bool:
		return any(m.GetBool(key, any(def).(bool))).(T)
	case float64:
		return any(m.GetFloat(key, any(def).(float64))).(T)
	case time.Duration:
		return any(m.GetDuration(key, any(def).(time.Duration))).(T)
	case []string:
		return any(m.GetStringSlice(key, any(def).([]string))).(T)
	default:
		if v, ok := m.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed
			}
		}
		return def
	}
}
