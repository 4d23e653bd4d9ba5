package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseMainConfig_Overlay(t *testing.T) {
	data := []byte(`
node_name: Responder_Alpha
responder: true
listen_addr: 127.0.0.1:9000
discovery_interval: 2s
retry_backoff_max: 10s
inbound_rate_limit: 50/1m
peers:
  - name: User_Bob
    address: http://10.0.0.2:25580
`)
	cfg, err := ParseMainConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeName != "Responder_Alpha" || !cfg.Responder || cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.DiscoveryInterval != 2*time.Second {
		t.Errorf("Expected 2s discovery interval, got %v", cfg.DiscoveryInterval)
	}
	if cfg.RetryBackoffMax != 10*time.Second {
		t.Errorf("Expected 10s retry backoff, got %v", cfg.RetryBackoffMax)
	}
	// untouched keys keep their defaults
	if cfg.WebPath != "/mesh" || cfg.SeenRetention != 30*time.Minute {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].Name != "User_Bob" {
		t.Errorf("unexpected peers %+v", cfg.Peers)
	}
	limit, seconds, err := cfg.RateLimit()
	if err != nil || limit != 50 || seconds != 60 {
		t.Errorf("RateLimit() = %d, %d, %v", limit, seconds, err)
	}
}

func TestParseMainConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad listen addr", "listen_addr: nope"},
		{"web path without slash", "web_path: mesh"},
		{"peer without address", "peers:\n  - name: x\n"},
		{"peer with bad url", "peers:\n  - name: x\n    address: '::'\n"},
		{"zero queue", "inbound_queue_size: 0"},
		{"bad rate", "inbound_rate_limit: lots"},
		{"negative cycle", "cycle_interval: -1s"},
		{"zero retry backoff", "retry_backoff_max: 0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMainConfig([]byte(tt.yaml)); err == nil {
				t.Errorf("Expected error for %q", tt.yaml)
			}
		})
	}
}

func TestLoadMainConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadMainConfig(dir)
	if err == nil {
		t.Error("Expected error for missing file")
	}
	if cfg == nil || cfg.ListenAddr != DefaultMainConfig().ListenAddr {
		t.Errorf("Expected defaults alongside the error, got %+v", cfg)
	}

	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "mesh.yml"), []byte("node_name: User_Carol\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadMainConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeName != "User_Carol" {
		t.Errorf("Expected User_Carol, got %q", cfg.NodeName)
	}
}
