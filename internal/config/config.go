// Package config handles toolcall configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./toolcall.yaml, ~/.config/toolcall/config.yaml, /etc/toolcall/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"toolcall.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "toolcall", "config.yaml"))
	}

	paths = append(paths, "/etc/toolcall/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// DefaultTimeout is used when server.timeout is not set.
const DefaultTimeout = 30 * time.Second

// Config holds all toolcall configuration.
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	Journal   JournalConfig `yaml:"journal"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // text or json
}

// ServerConfig identifies the MCP endpoint and its credential.
type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"` // usually ${SOME_ENV_VAR}

	// Timeout bounds each HTTP exchange, as a Go duration ("30s").
	Timeout string `yaml:"timeout"`

	// CheckIDs rejects replies whose id does not match the request.
	CheckIDs bool `yaml:"check_ids"`
}

// TimeoutDuration parses Timeout, falling back to DefaultTimeout.
func (s ServerConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(s.Timeout) == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("server.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("server.timeout must be positive, got %s", d)
	}
	return d, nil
}

// JournalConfig controls the exchange journal. An empty Path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ResolvedPath expands a leading "~/" in Path to the user's home directory.
func (j JournalConfig) ResolvedPath() string {
	if rest, ok := strings.CutPrefix(j.Path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return j.Path
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration. It has no server and is not
// valid on its own.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Timeout: DefaultTimeout.String()},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		errs = append(errs, fmt.Errorf("server.url must be http(s), got %q", c.Server.URL))
	}
	if c.Server.Token == "" {
		errs = append(errs, errors.New("server.token is required (is the environment variable set?)"))
	}
	if _, err := c.Server.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
