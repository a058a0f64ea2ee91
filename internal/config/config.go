package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goconfig "github.com/tpodg/go-config"

	"github.com/tpodg/fleetadmin/internal/server"
)

const (
	DefaultConfigFileName = ".fleetadmin.yaml"
	EnvPrefix             = "FLEETADMIN"

	DefaultConcurrency = 4
)

type Config struct {
	LogLevel    string        `yaml:"log_level"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	Concurrency int           `yaml:"concurrency"`
	// Defaults holds per-operation arguments merged under every command's args.
	Defaults map[string]any `yaml:"defaults"`
	Servers  []ServerConfig `yaml:"servers"`
}

type ServerConfig struct {
	Name               string          `yaml:"name"`
	Host               string          `yaml:"host"`
	Port               int             `yaml:"port"`
	Secure             bool            `yaml:"secure"`
	InsecureSkipVerify bool            `yaml:"insecure_skip_verify"`
	User               string          `yaml:"user"`
	Password           string          `yaml:"password"`
	// PasswordEnv names an environment variable that, when set, replaces Password.
	PasswordEnv        string          `yaml:"password_env"`
	Version            string          `yaml:"version"`
	Protocol           string          `yaml:"protocol"`
	Tunnel             TunnelConfig    `yaml:"tunnel"`
	Commands           []CommandConfig `yaml:"commands"`
}

// TunnelConfig routes admin traffic through an SSH jump host when Address is set.
type TunnelConfig struct {
	Address          string        `yaml:"address"`
	User             string        `yaml:"user"`
	SSHKey           string        `yaml:"ssh_key"`
	KnownHostsPath   string        `yaml:"known_hosts"`
	UseAgent         *bool         `yaml:"use_agent"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// CommandConfig is one step of a server's apply plan.
type CommandConfig struct {
	Op   string         `yaml:"op"`
	Args map[string]any `yaml:"args"`
}

// Load the configuration from the given file or default locations.
func Load(cfgFile string) (*Config, error) {
	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	c := goconfig.New()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		c.WithProviders(&goconfig.Yaml{Path: absPath})
	}

	c.WithProviders(&goconfig.Env{Prefix: EnvPrefix})

	cfg := &Config{}
	if err := c.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that server names are unique and every server is reachable in principle.
func (c *Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Servers))
	for i, s := range c.Servers {
		desc, err := s.Descriptor()
		if err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		if _, dup := seen[desc.ID()]; dup {
			return fmt.Errorf("servers[%d]: duplicate server %q", i, desc.ID())
		}
		seen[desc.ID()] = struct{}{}
		for j, cmd := range s.Commands {
			if strings.TrimSpace(cmd.Op) == "" {
				return fmt.Errorf("servers[%d].commands[%d]: op is required", i, j)
			}
		}
	}
	return nil
}

// Server returns the server whose descriptor ID equals name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if desc, err := s.Descriptor(); err == nil && desc.ID() == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// Descriptor converts the entry to a server descriptor.
func (s ServerConfig) Descriptor() (server.Descriptor, error) {
	desc := server.Descriptor{
		Name:               strings.TrimSpace(s.Name),
		Host:               strings.TrimSpace(s.Host),
		Port:               s.Port,
		Secure:             s.Secure,
		InsecureSkipVerify: s.InsecureSkipVerify,
		User:               s.User,
		Password:           s.password(),
		Version:            strings.TrimSpace(s.Version),
	}
	if s.Protocol != "" {
		gen, err := server.ParseGeneration(s.Protocol)
		if err != nil {
			return server.Descriptor{}, err
		}
		desc.Protocol = gen
	}
	if t := s.Tunnel; strings.TrimSpace(t.Address) != "" {
		desc.Tunnel = &server.TunnelConfig{
			Address:          strings.TrimSpace(t.Address),
			User:             t.User,
			SSHKey:           t.SSHKey,
			KnownHostsPath:   t.KnownHostsPath,
			UseAgent:         t.UseAgent,
			HandshakeTimeout: t.HandshakeTimeout,
		}
	}
	return desc, nil
}

func (s ServerConfig) password() string {
	if name := strings.TrimSpace(s.PasswordEnv); name != "" {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
	}
	return s.Password
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(value) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", value, err)
	}
	return level, nil
}

func findConfigFile(cfgFile string) (string, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return cfgFile, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, DefaultConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	return "", nil
}
