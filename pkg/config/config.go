// Package config loads shardcoordd's on-disk configuration file into a
// single YAML-backed struct that CLI flags overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chronosdb/shardcoord/pkg/log"
)

// Config holds everything needed to start one shardcoordd node.
type Config struct {
	NodeID   string `yaml:"nodeId"`
	BindAddr string `yaml:"bindAddr"`
	DataDir  string `yaml:"dataDir"`

	// Peers lists the other agency nodes to join on startup. Empty means
	// this node bootstraps a brand-new single-node cluster.
	Peers []string `yaml:"peers"`

	MetricsAddr string `yaml:"metricsAddr"`

	ReconcileInterval time.Duration `yaml:"reconcileInterval"`
	ApplyTimeout      time.Duration `yaml:"applyTimeout"`

	LogLevel  log.Level `yaml:"logLevel"`
	LogJSON   bool      `yaml:"logJson"`
	PprofAddr string    `yaml:"pprofAddr"`
}

// Default returns a Config usable for a single-node cluster with no file
// on disk.
func Default() Config {
	return Config{
		NodeID:            "node1",
		BindAddr:          "127.0.0.1:8201",
		DataDir:           "./data",
		MetricsAddr:       "127.0.0.1:9090",
		ReconcileInterval: time.Second,
		ApplyTimeout:      5 * time.Second,
		LogLevel:          log.InfoLevel,
	}
}

// Load reads a YAML config file, starting from Default and overlaying
// whatever the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields Bootstrap/Join cannot recover from being
// empty or malformed.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: nodeId is required")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("config: bindAddr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: dataDir is required")
	}
	return nil
}
