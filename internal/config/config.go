// Package config loads cmd/node's startup configuration: required
// environment variables for node identity, optional ones for etcd
// endpoints, lease TTL and debug logging, plus an optional YAML file
// naming the scopes to start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for one cmd/node process.
type Config struct {
	SelfID    string   `yaml:"-"`
	SelfAddr  string   `yaml:"-"`
	Endpoints []string `yaml:"-"`
	LeaseTTL  int64    `yaml:"-"`
	Debug     bool     `yaml:"-"`

	Scopes []string `yaml:"scopes"`
}

// Load reads node identity and etcd settings from the environment and,
// if scopesFile is non-empty, merges in the scope list from a YAML file
// shaped like:
//
//	scopes: [presence, sessions]
func Load(scopesFile string) (Config, error) {
	cfg := Config{
		SelfID:   os.Getenv("SELF_ID"),
		SelfAddr: os.Getenv("SELF_ADDR"),
		LeaseTTL: 10,
		Scopes:   []string{"default"},
	}
	if cfg.SelfID == "" {
		return Config{}, fmt.Errorf("config: SELF_ID is required")
	}
	if cfg.SelfAddr == "" {
		return Config{}, fmt.Errorf("config: SELF_ADDR is required")
	}

	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		cfg.Endpoints = strings.Split(v, ",")
	} else {
		cfg.Endpoints = []string{"http://etcd:2379"}
	}

	if v := os.Getenv("LEASE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid LEASE_TTL_SECONDS: %w", err)
		}
		cfg.LeaseTTL = ttl
	}

	cfg.Debug = os.Getenv("DEBUG") == "1"

	if scopesFile != "" {
		data, err := os.ReadFile(scopesFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", scopesFile, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", scopesFile, err)
		}
		if len(fileCfg.Scopes) > 0 {
			cfg.Scopes = fileCfg.Scopes
		}
	}

	return cfg, nil
}
