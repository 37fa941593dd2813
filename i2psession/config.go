package i2psession

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/leasepool/lib/pool"
)

// Default configuration values
const (
	DefaultSAMAddress       = "127.0.0.1:7656"
	DefaultConstructTimeout = 2 * time.Minute
)

// Config holds all configuration for a session pool.
type Config struct {
	// SAMAddress is the SAM bridge address (host:port)
	SAMAddress string `toml:"sam_address"`
	// Options are raw SAM session options (tunnel length, quantity, and
	// the rest of the i2cp surface). Empty selects onramp's defaults.
	Options []string `toml:"options"`
	// TTL is how long an unreferenced session survives before teardown
	TTL time.Duration `toml:"ttl"`
	// ConstructTimeout bounds tunnel building for one session. Zero means
	// no bound beyond the caller's context.
	ConstructTimeout time.Duration `toml:"construct_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SAMAddress:       DefaultSAMAddress,
		TTL:              pool.DefaultTTL,
		ConstructTimeout: DefaultConstructTimeout,
	}
}

// LoadConfig reads configuration from a TOML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SAMAddress == "" {
		return errors.New("sam_address is required")
	}
	if c.TTL < 0 {
		return errors.New("ttl must not be negative")
	}
	if c.ConstructTimeout < 0 {
		return errors.New("construct_timeout must not be negative")
	}
	return nil
}
