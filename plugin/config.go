package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/MrEthical07/hostauth"
	"github.com/MrEthical07/hostauth/adapter"
	"github.com/MrEthical07/hostauth/host"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by LoadConfig.
const (
	EnvConfigPath  = "HOSTAUTH_CONFIG"
	EnvSecret      = "HOSTAUTH_SECRET"
	EnvSecretFile  = "HOSTAUTH_SECRET_FILE"
	EnvBaseURL     = "HOSTAUTH_BASE_URL"
	EnvDatabaseDSN = "HOSTAUTH_DATABASE_DSN"
	EnvRedisAddr   = "HOSTAUTH_REDIS_ADDR"
)

// ErrInvalidConfig wraps every validation failure reported by Config.Validate.
var ErrInvalidConfig = errors.New("plugin: invalid config")

// Config is the file form of InitParams plus the connection settings a
// standalone server needs.
type Config struct {
	IDType    adapter.IDType            `yaml:"idType"`
	Database  DatabaseConfig            `yaml:"database"`
	Redis     RedisConfig               `yaml:"redis"`
	Options   hostauth.Options          `yaml:"options"`
	Instances map[string]InstanceConfig `yaml:"instances"`
}

// DatabaseConfig selects the host application database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig points at secondary storage. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns the values LoadConfig starts from.
func DefaultConfig() Config {
	return Config{
		IDType: adapter.IDTypeText,
		Database: DatabaseConfig{
			Driver: host.DefaultDriver,
			DSN:    host.DefaultDSN,
		},
	}
}

// LoadConfig loads configuration in layers:
//  1. DefaultConfig
//  2. the YAML file at path, or at $HOSTAUTH_CONFIG when path is empty
//  3. environment overrides
//  4. validation
//
// With neither a path nor $HOSTAUTH_CONFIG only defaults and environment
// overrides apply. Unknown YAML keys are an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvSecretFile); v != "" && os.Getenv(EnvSecret) == "" {
		data, err := os.ReadFile(v)
		if err != nil {
			return fmt.Errorf("reading %s: %w", EnvSecretFile, err)
		}
		cfg.Options.Secret = strings.TrimSpace(string(data))
	}
	if v := os.Getenv(EnvSecret); v != "" {
		cfg.Options.Secret = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Options.BaseURL = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	return nil
}

// Validate checks the settings InitEngines cannot check itself. Options are
// validated per engine when the engines are built.
func (c *Config) Validate() error {
	if !c.IDType.Valid() {
		return fmt.Errorf("%w: idType %q must be %q or %q", ErrInvalidConfig, c.IDType, adapter.IDTypeNumber, adapter.IDTypeText)
	}

	seen := make(map[string]string, len(c.Instances))
	for _, name := range c.InstanceNames() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: instance name must not be empty", ErrInvalidConfig)
		}
		path := c.BasePath(name)
		if other, ok := seen[path]; ok {
			return fmt.Errorf("%w: instances %q and %q share base path %s", ErrInvalidConfig, other, name, path)
		}
		seen[path] = name
	}
	return nil
}

// InstanceNames returns the instance names in sorted order.
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BasePath returns the route prefix the named instance will serve under, or
// the single engine's prefix when name is empty.
func (c *Config) BasePath(name string) string {
	path := c.Options.BasePath
	if inst, ok := c.Instances[name]; ok && inst.OptionOverrides != nil && inst.OptionOverrides.BasePath != "" {
		path = inst.OptionOverrides.BasePath
	}
	if path == "" {
		path = hostauth.DefaultOptions().BasePath
	}
	return path
}

// Params converts c into InitParams bound to app. The returned options and
// instance overrides are copies.
func (c *Config) Params(app *host.App) InitParams {
	var instances map[string]InstanceConfig
	if c.Instances != nil {
		instances = make(map[string]InstanceConfig, len(c.Instances))
		for name, inst := range c.Instances {
			if inst.OptionOverrides != nil {
				overrides := inst.OptionOverrides.Clone()
				inst.OptionOverrides = &overrides
			}
			instances[name] = inst
		}
	}
	return InitParams{
		Host:      app,
		IDType:    c.IDType,
		Options:   c.Options.Clone(),
		Instances: instances,
	}
}
