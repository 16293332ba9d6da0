// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "25s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Breaker holds the circuit breaker tunables.
type Breaker struct {
	MinCalls         uint32   `yaml:"min_calls"`
	FailureRate      float64  `yaml:"failure_rate"`
	OpenWait         Duration `yaml:"open_wait"`
	HalfOpenMaxCalls uint32   `yaml:"half_open_max_calls"`
	WindowInterval   Duration `yaml:"window_interval"`
	CallTimeout      Duration `yaml:"call_timeout"`
}

// Config is the service configuration. A YAML file provides overrides over
// the defaults; environment variables override both.
type Config struct {
	HTTPAddr     string  `yaml:"http_addr"`
	DatabaseURL  string  `yaml:"database_url"`
	NATSURL      string  `yaml:"nats_url"`
	InventoryURL string  `yaml:"inventory_url"`
	Breaker      Breaker `yaml:"breaker"`
}

func Default() Config {
	return Config{
		HTTPAddr:     ":8082",
		DatabaseURL:  "",
		NATSURL:      "",
		InventoryURL: "http://localhost:8081",
		Breaker: Breaker{
			MinCalls:         5,
			FailureRate:      0.5,
			OpenWait:         Duration(25 * time.Second),
			HalfOpenMaxCalls: 2,
			WindowInterval:   Duration(60 * time.Second),
			CallTimeout:      Duration(5 * time.Second),
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("INVENTORY_SERVICE_URL"); v != "" {
		cfg.InventoryURL = v
	}

	return cfg, nil
}
