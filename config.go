package creditsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level creditsync configuration.
type Config struct {
	ReconcileDelay time.Duration    `yaml:"reconcile_delay"`
	Endpoint       EndpointConfig   `yaml:"endpoint"`
	Preferences    PreferenceConfig `yaml:"preferences"`
	Costs          CostTable        `yaml:"costs"`
}

// EndpointConfig configures the balance read endpoint.
type EndpointConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Path      string        `yaml:"path"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	DeviceKey string        `yaml:"device_key"`
}

// PreferenceBackend selects where the durable confirmation preference lives.
type PreferenceBackend string

const (
	PreferencesMemory PreferenceBackend = "memory"
	PreferencesFile   PreferenceBackend = "file"
	PreferencesSQLite PreferenceBackend = "sqlite"
	PreferencesRedis  PreferenceBackend = "redis"
)

// PreferenceConfig configures the preference store.
type PreferenceConfig struct {
	Backend PreferenceBackend `yaml:"backend"`
	Path    string            `yaml:"path"`
	Addr    string            `yaml:"addr"`
	Key     string            `yaml:"key"`
}

// DefaultConfig returns a config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		ReconcileDelay: DefaultReconcileDelay,
		Endpoint: EndpointConfig{
			Path:    "/credits/balance",
			Timeout: 10 * time.Second,
		},
		Preferences: PreferenceConfig{Backend: PreferencesMemory},
	}
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("creditsync: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("creditsync: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.ReconcileDelay < 0 {
		return fmt.Errorf("%w: reconcile_delay must not be negative", ErrInvalidConfig)
	}
	if c.Endpoint.Timeout < 0 {
		return fmt.Errorf("%w: endpoint.timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Preferences.Backend {
	case "", PreferencesMemory:
	case PreferencesFile, PreferencesSQLite:
		if c.Preferences.Path == "" {
			return fmt.Errorf("%w: preferences.path is required for backend %q", ErrInvalidConfig, c.Preferences.Backend)
		}
	case PreferencesRedis:
		if c.Preferences.Addr == "" {
			return fmt.Errorf("%w: preferences.addr is required for backend %q", ErrInvalidConfig, c.Preferences.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown preferences.backend %q", ErrInvalidConfig, c.Preferences.Backend)
	}

	for feature, cost := range c.Costs {
		if feature == "" {
			return fmt.Errorf("%w: costs: empty feature name", ErrInvalidConfig)
		}
		if cost < 0 {
			return fmt.Errorf("%w: costs[%s]: must not be negative", ErrInvalidConfig, feature)
		}
	}
	return nil
}
