// Package config loads the daemon configuration: defaults, then an optional
// YAML file, then MAPFORGE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
	Engine        EngineConfig        `yaml:"engine"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

// ServerConfig configures the API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig tunes the mapping engine.
type EngineConfig struct {
	// OpBudget caps operator invocations per row per field. Zero keeps the
	// built-in default.
	OpBudget int `yaml:"op_budget"`
}

// ElasticsearchConfig configures the optional apply target.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the optional file at path,
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "MAPFORGE_SERVER_ADDR")
	setBool(&c.Metrics.Enabled, "MAPFORGE_METRICS_ENABLED")
	setString(&c.Metrics.Addr, "MAPFORGE_METRICS_ADDR")
	setString(&c.Logging.Level, "MAPFORGE_LOG_LEVEL")
	setString(&c.Logging.Format, "MAPFORGE_LOG_FORMAT")
	setInt(&c.Engine.OpBudget, "MAPFORGE_ENGINE_OP_BUDGET")
	setString(&c.Elasticsearch.Username, "MAPFORGE_ES_USERNAME")
	setString(&c.Elasticsearch.Password, "MAPFORGE_ES_PASSWORD")
	if v := os.Getenv("MAPFORGE_ES_ADDR"); v != "" {
		c.Elasticsearch.Addresses = []string{v}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
