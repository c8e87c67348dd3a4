package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config defines farmsync configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Transport    TransportConfig    `yaml:"transport" toml:"transport"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	Local        LocalConfig        `yaml:"local" toml:"local"`
	Remote       RemoteConfig       `yaml:"remote" toml:"remote"`
	Outbox       OutboxConfig       `yaml:"outbox" toml:"outbox"`
	Connectivity ConnectivityConfig `yaml:"connectivity" toml:"connectivity"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode" toml:"mode"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	Path  string `yaml:"path" toml:"path"`
}

type LocalConfig struct {
	// Backend is "auto", "sqlite" or "flat".
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
	FlatDir string `yaml:"flat_dir" toml:"flat_dir"`
}

type RemoteConfig struct {
	DSN     string `yaml:"dsn" toml:"dsn"`
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// TimeoutDuration returns the parsed remote timeout.
func (r RemoteConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

type OutboxConfig struct {
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
}

type ConnectivityConfig struct {
	StatusFile  string `yaml:"status_file" toml:"status_file"`
	StartOnline bool   `yaml:"start_online" toml:"start_online"`
}

type AuthConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	DefaultOwner string `yaml:"default_owner" toml:"default_owner"`
	// Tokens maps hex sha256(token) to an owner id.
	Tokens map[string]string `yaml:"tokens" toml:"tokens"`
}

// Owners returns every owner id the configuration knows about.
func (a AuthConfig) Owners() []string {
	seen := map[string]bool{}
	var owners []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			owners = append(owners, id)
		}
	}
	add(a.DefaultOwner)
	for _, owner := range a.Tokens {
		add(owner)
	}
	return owners
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Log: LogConfig{
			Level: "info",
		},
		Local: LocalConfig{
			Backend: "auto",
			Path:    "farmsync.db",
			FlatDir: "farmsync-data",
		},
		Remote: RemoteConfig{
			DSN:     "memory://",
			Timeout: "15s",
		},
		Outbox: OutboxConfig{
			MaxAttempts: 5,
		},
		Connectivity: ConnectivityConfig{
			StartOnline: true,
		},
		Auth: AuthConfig{
			DefaultOwner: "local",
		},
	}
}

// Load reads configuration from the file named by FARMSYNC_CONFIG_PATH, if
// any, and environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("FARMSYNC_CONFIG_PATH"))
}

// LoadFrom reads configuration from an optional YAML or TOML file, then
// applies environment overrides.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("FARMSYNC_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("FARMSYNC_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FARMSYNC_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("FARMSYNC_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if level := os.Getenv("FARMSYNC_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if path := os.Getenv("FARMSYNC_LOG_PATH"); path != "" {
		cfg.Log.Path = path
	}
	if backend := os.Getenv("FARMSYNC_LOCAL_BACKEND"); backend != "" {
		cfg.Local.Backend = backend
	}
	if path := os.Getenv("FARMSYNC_DB_PATH"); path != "" {
		cfg.Local.Path = path
	}
	if dir := os.Getenv("FARMSYNC_FLAT_DIR"); dir != "" {
		cfg.Local.FlatDir = dir
	}
	if dsn := os.Getenv("FARMSYNC_REMOTE_DSN"); dsn != "" {
		cfg.Remote.DSN = dsn
	}
	if timeout := os.Getenv("FARMSYNC_REMOTE_TIMEOUT"); timeout != "" {
		cfg.Remote.Timeout = timeout
	}
	if attempts := os.Getenv("FARMSYNC_OUTBOX_MAX_ATTEMPTS"); attempts != "" {
		n, err := strconv.Atoi(attempts)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FARMSYNC_OUTBOX_MAX_ATTEMPTS: %w", err)
		}
		cfg.Outbox.MaxAttempts = n
	}
	if file := os.Getenv("FARMSYNC_STATUS_FILE"); file != "" {
		cfg.Connectivity.StatusFile = file
	}
	if online := os.Getenv("FARMSYNC_START_ONLINE"); online != "" {
		v, err := strconv.ParseBool(online)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FARMSYNC_START_ONLINE: %w", err)
		}
		cfg.Connectivity.StartOnline = v
	}
	if enabled := os.Getenv("FARMSYNC_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FARMSYNC_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if owner := os.Getenv("FARMSYNC_DEFAULT_OWNER"); owner != "" {
		cfg.Auth.DefaultOwner = owner
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	switch c.Local.Backend {
	case "auto", "sqlite", "flat":
	default:
		return fmt.Errorf("invalid local backend %q", c.Local.Backend)
	}
	if _, err := time.ParseDuration(c.Remote.Timeout); err != nil {
		return fmt.Errorf("invalid remote timeout: %w", err)
	}
	if c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("outbox max_attempts must not be negative")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
