package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable the CLI reads
const EnvPrefix = "MATCHCTL_"

// Config holds CLI configuration
type Config struct {
	ServerURL string `env:"SERVER" envDefault:"http://localhost:8080"`
	Token     string `env:"TOKEN"`
	TokenFile string `env:"TOKEN_FILE"`
	Output    string `env:"OUTPUT" envDefault:"text"`
	Verbose   bool   `env:"VERBOSE"`
}

// LoadConfig reads the CLI configuration from the environment
func LoadConfig() (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	if c.TokenFile == "" {
		c.TokenFile = defaultTokenFile()
	}
	return c, nil
}

// LoadToken loads the token from file if not already set
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No token file is fine
		}
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken saves the token to the token file
func (c *Config) SaveToken(token string) error {
	c.Token = token

	dir := filepath.Dir(c.TokenFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.TokenFile, []byte(token), 0600)
}

// ClearToken forgets the saved token
func (c *Config) ClearToken() error {
	c.Token = ""
	if err := os.Remove(c.TokenFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matchctl/token"
	}
	return filepath.Join(home, ".matchctl", "token")
}
