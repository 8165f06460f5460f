// Package config loads the YAML process configuration for cmd/tuisessiond.
// It is deliberately minimal: the library packages (pkg/session,
// pkg/vectordb, pkg/rvm) take plain Go structs and know nothing about YAML
// or files; this package only bridges a config file on disk to those
// structs for the demo entrypoint.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// User is one statically-provisioned account. Password is stretched into a
// SPAKE2+ (w0, L) verifier pair at load time via DeriveUsers; it is never
// compared directly. DeriveUsers does not clear it; the loaded Config keeps
// it as read from the file.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Salt     string `yaml:"salt"`
	// UserID is the account's canonical UUID, surfaced as caller_id.user_id
	// on a successful login. Required - it is what lets the server enforce
	// at most one live Connection per account.
	UserID string `yaml:"userID"`
}

// VectorDB configures the embedded vector database instance.
type VectorDB struct {
	Path              string `yaml:"path"`
	Dimension         int    `yaml:"dimension"`
	SoftWALLimitBytes int64  `yaml:"softWALLimitBytes"`
}

// BruteForce configures the per-username invalid-login limiter.
type BruteForce struct {
	TrialsAllowedEachWindow int           `yaml:"trialsAllowedEachWindow"`
	InitialBlockTime        time.Duration `yaml:"initialBlockTime"`
	MaxBlockTime            time.Duration `yaml:"maxBlockTime"`
}

// Config is the top-level shape of a tuisessiond config file.
type Config struct {
	ListenAddr       string        `yaml:"listenAddr"`
	HandshakeContext string        `yaml:"handshakeContext"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	FakeCredCacheSize int          `yaml:"fakeCredCacheSize"`

	VectorDB   VectorDB   `yaml:"vectorDB"`
	BruteForce BruteForce `yaml:"bruteForce"`
	Users      []User     `yaml:"users"`
}

// applyDefaults fills in the zero-value fields a minimal config file can omit.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":4443"
	}
	if c.HandshakeContext == "" {
		c.HandshakeContext = "tuisessiond-v1"
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.FakeCredCacheSize == 0 {
		c.FakeCredCacheSize = 10000
	}
	if c.VectorDB.Dimension == 0 {
		c.VectorDB.Dimension = 128
	}
	if c.VectorDB.SoftWALLimitBytes == 0 {
		c.VectorDB.SoftWALLimitBytes = 4 * 1024 * 1024
	}
	if c.BruteForce.TrialsAllowedEachWindow == 0 {
		c.BruteForce.TrialsAllowedEachWindow = 3
	}
	if c.BruteForce.InitialBlockTime == 0 {
		c.BruteForce.InitialBlockTime = 100 * time.Millisecond
	}
	if c.BruteForce.MaxBlockTime == 0 {
		c.BruteForce.MaxBlockTime = 5 * time.Minute
	}
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.VectorDB.Path == "" {
		return nil, fmt.Errorf("config: vectorDB.path is required")
	}
	cfg.applyDefaults()
	return &cfg, nil
}
