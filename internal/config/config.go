// Package config loads optional static deployment settings from a YAML file.
// Per-process tunables (poll intervals, gap threshold, endpoints) are read
// directly via os.Getenv in main.go; this loader only covers the handful of
// settings an operator wants to pin in a deployment manifest rather than an
// environment.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL  string   `yaml:"database_url"`
	ExchangeHTTP string   `yaml:"exchange_http_url"`
	ExchangeWS   string   `yaml:"exchange_ws_url"`
	APIPort      int      `yaml:"api_port"`
	LogLevel     string   `yaml:"log_level"`
	Traders      []string `yaml:"traders"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
