package config

import (
	"fmt"
	"os"
	"path/filepath"
	"panic_mesh/internal/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Peer is a statically configured neighbour reachable over the HTTP link.
type Peer struct {
	Name    string `yaml:"name" validate:"required,max=128"`
	Address string `yaml:"address" validate:"required,url"`
	// Host overrides the Host header, for peers behind a reverse proxy.
	Host string `yaml:"host"`
}

type MainConfig struct {
	NodeName          string        `yaml:"node_name" validate:"max=128"`
	Responder         bool          `yaml:"responder"`
	Location          string        `yaml:"location"`
	ListenAddr        string        `yaml:"listen_addr" validate:"required,hostname_port"`
	WebPath           string        `yaml:"web_path" validate:"required,startswith=/"`
	LogPath           string        `yaml:"log_path"`
	CycleInterval     time.Duration `yaml:"cycle_interval" validate:"gt=0"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval" validate:"gt=0"`
	DiscoveryTimeout  time.Duration `yaml:"discovery_timeout" validate:"gt=0"`
	BroadcastTimeout  time.Duration `yaml:"broadcast_timeout" validate:"gt=0"`
	PeerTTL           time.Duration `yaml:"peer_ttl" validate:"gt=0"`
	SeenRetention     time.Duration `yaml:"seen_retention" validate:"gt=0"`
	PruneInterval     time.Duration `yaml:"prune_interval" validate:"gt=0"`
	InboundQueueSize  int           `yaml:"inbound_queue_size" validate:"min=1"`
	InboundRateLimit  string        `yaml:"inbound_rate_limit"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max" validate:"gt=0"`
	MessageLogLimit   int           `yaml:"message_log_limit" validate:"min=1"`
	MaxEnvelopeBytes  int64         `yaml:"max_envelope_bytes" validate:"min=256"`
	Peers             []Peer        `yaml:"peers" validate:"dive"`
}

// DefaultMainConfig returns the settings used when no config file is present.
func DefaultMainConfig() MainConfig {
	return MainConfig{
		ListenAddr:        "0.0.0.0:25580",
		WebPath:           "/mesh",
		CycleInterval:     time.Second,
		DiscoveryInterval: 5 * time.Second,
		DiscoveryTimeout:  3 * time.Second,
		BroadcastTimeout:  5 * time.Second,
		PeerTTL:           30 * time.Second,
		SeenRetention:     30 * time.Minute,
		PruneInterval:     5 * time.Minute,
		InboundQueueSize:  256,
		InboundRateLimit:  "200/10s",
		RetryBackoffMax:   30 * time.Second,
		MessageLogLimit:   1000,
		MaxEnvelopeBytes:  64 * 1024,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadMainConfig reads <basePath>/config/mesh.yml over the defaults. When the
// file cannot be read the defaults are returned together with the error.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	defaultCfg := DefaultMainConfig()

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", "mesh.yml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return &defaultCfg, err
	}

	cfg, err := ParseMainConfig(data)
	if err != nil {
		return &defaultCfg, fmt.Errorf("[ERROR] failed to parse config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// ParseMainConfig decodes yaml over the defaults and validates the result.
func ParseMainConfig(data []byte) (*MainConfig, error) {
	cfg := DefaultMainConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MainConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.InboundRateLimit != "" {
		if _, _, err := c.RateLimit(); err != nil {
			return err
		}
	}
	return nil
}

// RateLimit parses InboundRateLimit. A zero limit means unlimited.
func (c *MainConfig) RateLimit() (int64, int64, error) {
	if c.InboundRateLimit == "" {
		return 0, 0, nil
	}
	limit, seconds, err := utils.ParseRate(c.InboundRateLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit <= 0 || seconds <= 0 {
		return 0, 0, fmt.Errorf("inbound_rate_limit must be positive: %s", c.InboundRateLimit)
	}
	return int64(limit), int64(seconds), nil
}
