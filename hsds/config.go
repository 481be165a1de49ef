package hsds

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds client connection settings. Transports consume it when
// dialing; the core itself only passes it through.
type Config struct {
	// Endpoint is the server base URL.
	Endpoint string `toml:"endpoint"`
	// Username and Password authenticate basic-auth deployments.
	Username string `toml:"username"`
	Password string `toml:"password"`
	// APIKey authenticates token deployments; it wins over basic auth
	// when both are set.
	APIKey string `toml:"api_key"`
	// Bucket selects a server storage bucket, empty for the default.
	Bucket string `toml:"bucket"`
	// RetryLimit is a hint for how many times a transport may retry a
	// failed request. The core never retries.
	RetryLimit int `toml:"retry_limit"`
}

// Environment variable overrides, applied over file values.
const (
	envEndpoint = "HS_ENDPOINT"
	envUsername = "HS_USERNAME"
	envPassword = "HS_PASSWORD"
	envAPIKey   = "HS_API_KEY"
	envBucket   = "HS_BUCKET"
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hsconfig"), nil
}

// LoadConfig reads a TOML config file and applies environment overrides.
// A missing file is not an error; the environment alone may configure the
// client.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("opening config: %w", err)
	default:
		defer f.Close()
		if err := decodeConfig(f, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func decodeConfig(r io.Reader, cfg *Config) error {
	_, err := toml.NewDecoder(r).Decode(cfg)
	return err
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(envUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(envPassword); v != "" {
		c.Password = v
	}
	if v := os.Getenv(envAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(envBucket); v != "" {
		c.Bucket = v
	}
}
