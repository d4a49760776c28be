// Package config loads the resolver's YAML configuration, adapted from the
// teacher's cmd/dnsscience-grpc/config.go (same os.ReadFile + yaml.Unmarshal
// shape), generalized from the gRPC admin server's flat listen/TLS fields to
// the full set of listeners and tunables this resolver needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration document.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	ACL      ACLConfig      `yaml:"acl"`
	Limiter  LimiterConfig  `yaml:"rate_limit"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Timeout bounds one transaction's upstream round trip (§4.3).
	Timeout time.Duration `yaml:"timeout"`
}

// ListenConfig holds the bind addresses for each transport. An empty
// address disables that listener.
type ListenConfig struct {
	UDP     string `yaml:"udp"`
	TCP     string `yaml:"tcp"`
	TLS     string `yaml:"tls"`
	QUIC    string `yaml:"quic"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// UpstreamConfig names the upstream resolver this process forwards to.
type UpstreamConfig struct {
	// Protocol is "udp" or "quic".
	Protocol string `yaml:"protocol"`
	Address  string `yaml:"address"`
}

// CacheConfig tunes the answer cache.
type CacheConfig struct {
	MaxEntriesPerShard int `yaml:"max_entries_per_shard"`
}

// ACLConfig seeds the access-control gate.
type ACLConfig struct {
	DefaultAllow bool     `yaml:"default_allow"`
	Allow        []string `yaml:"allow"`
	Deny         []string `yaml:"deny"`
}

// LimiterConfig tunes the per-client rate limiter.
type LimiterConfig struct {
	QueriesPerSecond float64       `yaml:"queries_per_second"`
	BurstSize        int           `yaml:"burst_size"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	Exempt           []string      `yaml:"exempt"`
}

// MetricsConfig configures the metrics HTTP listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config usable out of the box for local testing: UDP and
// TCP listeners on :1053, a UDP upstream at 127.0.0.1:53, default-allow ACL,
// and the limiter/cache defaults.
func Default() Config {
	return Config{
		Listen:   ListenConfig{UDP: ":1053", TCP: ":1053"},
		Upstream: UpstreamConfig{Protocol: "udp", Address: "127.0.0.1:53"},
		Cache:    CacheConfig{MaxEntriesPerShard: 2048},
		ACL:      ACLConfig{DefaultAllow: true},
		Limiter:  LimiterConfig{QueriesPerSecond: 100, BurstSize: 200, CleanupInterval: 5 * time.Minute},
		Timeout:  5 * time.Second,
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}
