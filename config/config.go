package config

import (
	"flag"

	"github.com/spf13/viper"
)

// Config holds the application's top-level HTTP server configuration.
// Struct tags double as mapstructure keys (for Decode) and validator
// rules, checked once after loading.
type Config struct {
	Port           int    `config:"port" validate:"gt=0,lte=65535"`
	ReadTimeout    int    `config:"read_timeout" validate:"gte=0"`
	WriteTimeout   int    `config:"write_timeout" validate:"gte=0"`
	Env            string `config:"env" validate:"oneof=development staging production"`
	MetricsEnabled bool   `config:"metrics_enabled"`
}

// Bootstrap loads configuration from flags, then layers environment
// variables on top via viper, so a flag default can be overridden
// without recompiling. An optional YAML config file is loaded first,
// beneath both: for the flag-backed keys (port, read_timeout,
// write_timeout, env, metrics_enabled) the flag value or its env
// override replaces whatever the file set. It returns both the
// typed HTTP Config and the Manager the rest of the process (the
// persistence daemon, the servlet registry's setup code) reads its
// own settings from, seeded with the same viper values.
func Bootstrap(configFile string) (*Config, *Manager, error) {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	flag.IntVar(&cfg.ReadTimeout, "read-timeout", 10, "HTTP read timeout (seconds)")
	flag.IntVar(&cfg.WriteTimeout, "write-timeout", 30, "HTTP write timeout (seconds)")
	flag.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")
	flag.BoolVar(&cfg.MetricsEnabled, "metrics-enabled", true, "Record per-handler request timing")
	if !flag.Parsed() {
		flag.Parse()
	}

	v := viper.New()
	v.SetEnvPrefix("POSEIDON")
	v.AutomaticEnv()
	v.SetDefault("port", cfg.Port)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("env", cfg.Env)
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)

	m := NewManager()
	if configFile != "" {
		if err := m.LoadFromYAML(configFile); err != nil {
			return nil, nil, err
		}
	}
	m.LoadFromViper(v)

	cfg.Port = Get(m, "port", cfg.Port)
	cfg.ReadTimeout = Get(m, "read_timeout", cfg.ReadTimeout)
	cfg.WriteTimeout = Get(m, "write_timeout", cfg.WriteTimeout)
	cfg.Env = Get(m, "env", cfg.Env)
	cfg.MetricsEnabled = Get(m, "metrics_enabled", cfg.MetricsEnabled)

	if err := Validate(cfg); err != nil {
		return nil, nil, err
	}

	return cfg, m, nil
}
