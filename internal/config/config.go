// Package config loads node configuration and the cluster topology file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses yaml scalars like "200ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds the node identity and listener configuration.
type ServerConfig struct {
	NodeID     uint32 `yaml:"node_id"`
	Host       string `yaml:"host"`
	RPCPort    uint16 `yaml:"rpc_port"`
	XferPort   uint16 `yaml:"xfer_port"`
	GossipPort uint16 `yaml:"gossip_port"`
}

// StorageConfig holds the on-disk layout configuration.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	StagingDir string `yaml:"staging_dir"`
}

// ClusterConfig points at the topology file and tunes gossip.
type ClusterConfig struct {
	TopologyFile   string   `yaml:"topology_file"`
	GossipInterval Duration `yaml:"gossip_interval"`
	ProbeInterval  Duration `yaml:"probe_interval"`
	ProbeTimeout   Duration `yaml:"probe_timeout"`
	SuspectTimeout Duration `yaml:"suspect_timeout"`
	DeadTimeout    Duration `yaml:"dead_timeout"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    uint16 `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the complete node configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cluster ClusterConfig `yaml:"cluster"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads, defaults and validates a node configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults fills in unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.GossipPort == 0 {
		cfg.Server.GossipPort = 15605
	}
	if cfg.Server.RPCPort == 0 {
		cfg.Server.RPCPort = 15606
	}
	if cfg.Server.XferPort == 0 {
		cfg.Server.XferPort = 15607
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/tessera"
	}
	if cfg.Storage.StagingDir == "" {
		cfg.Storage.StagingDir = cfg.Storage.DataDir + "/staging"
	}
	if cfg.Cluster.GossipInterval == 0 {
		cfg.Cluster.GossipInterval = Duration(200 * time.Millisecond)
	}
	if cfg.Cluster.ProbeInterval == 0 {
		cfg.Cluster.ProbeInterval = Duration(time.Second)
	}
	if cfg.Cluster.ProbeTimeout == 0 {
		cfg.Cluster.ProbeTimeout = Duration(500 * time.Millisecond)
	}
	if cfg.Cluster.SuspectTimeout == 0 {
		cfg.Cluster.SuspectTimeout = Duration(5 * time.Second)
	}
	if cfg.Cluster.DeadTimeout == 0 {
		cfg.Cluster.DeadTimeout = Duration(30 * time.Second)
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 15608
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Cluster.TopologyFile == "" {
		return fmt.Errorf("cluster.topology_file is required")
	}
	seen := map[uint16]string{}
	for _, l := range []struct {
		name string
		port uint16
	}{
		{"gossip_port", c.Server.GossipPort},
		{"rpc_port", c.Server.RPCPort},
		{"xfer_port", c.Server.XferPort},
	} {
		if prev, ok := seen[l.port]; ok {
			return fmt.Errorf("server.%s and server.%s share port %d", prev, l.name, l.port)
		}
		seen[l.port] = l.name
	}
	if c.Cluster.DeadTimeout <= c.Cluster.SuspectTimeout {
		return fmt.Errorf("cluster.dead_timeout must exceed cluster.suspect_timeout")
	}
	return nil
}
