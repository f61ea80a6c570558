package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config drives the demo: which store backend to use and how to reach it.
	Config struct {
		Store    StoreConfig    `yaml:"store"`
		Stream   StreamConfig   `yaml:"stream"`
		Workflow WorkflowConfig `yaml:"workflow"`
	}

	// StoreConfig selects and configures the session store backend.
	StoreConfig struct {
		// Backend is one of "inmem", "redis" or "mongo". Defaults to "inmem".
		Backend string      `yaml:"backend"`
		Redis   RedisConfig `yaml:"redis"`
		Mongo   MongoConfig `yaml:"mongo"`
	}

	RedisConfig struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
	}

	MongoConfig struct {
		URI        string        `yaml:"uri"`
		Database   string        `yaml:"database"`
		Collection string        `yaml:"collection"`
		Timeout    time.Duration `yaml:"timeout"`
	}

	// StreamConfig enables publishing run fragments to Pulse. Requires a Redis
	// connection, configured via the store's redis section.
	StreamConfig struct {
		Enabled bool `yaml:"enabled"`
		MaxLen  int  `yaml:"max_len"`
	}

	WorkflowConfig struct {
		Name      string `yaml:"name"`
		SessionID string `yaml:"session_id"`
		UserID    string `yaml:"user_id"`
	}
)

// LoadConfig reads the YAML configuration at path. A missing path returns the
// defaults so the demo runs out of the box.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Store: StoreConfig{
			Backend: "inmem",
			Redis:   RedisConfig{Addr: "localhost:6379"},
			Mongo:   MongoConfig{URI: "mongodb://localhost:27017", Database: "flow"},
		},
		Workflow: WorkflowConfig{Name: "storyteller"},
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.Store.Backend {
	case "", "inmem", "redis", "mongo":
	default:
		return cfg, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "inmem"
	}
	return cfg, nil
}
