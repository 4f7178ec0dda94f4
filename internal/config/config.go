// Package config loads the cisaudit configuration from an optional YAML file
// and CISAUDIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CISAUDIT_AUDIT_WORKERS.
const EnvPrefix = "CISAUDIT"

// Config is the top-level application configuration.
// It is loaded from ~/.config/cisaudit/config.yaml and must never be
// committed with real secrets.
type Config struct {
	// Region is the home region used for global services and probes.
	Region string `mapstructure:"region"`

	// Profile is the shared-config profile used when no access key is given.
	Profile string `mapstructure:"profile"`

	// Regions pins the regions regional checks iterate. Empty means every
	// region the account has opted into.
	Regions []string `mapstructure:"regions"`

	// Policy is the path to a policy file. Empty disables policy filtering.
	Policy string `mapstructure:"policy"`

	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Output    OutputConfig    `mapstructure:"output"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// DiscoveryConfig tunes the existence probe stage.
type DiscoveryConfig struct {
	Workers int `mapstructure:"workers"`

	// ProbeTimeout bounds each probe. Zero means no per-probe timeout.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// AuditConfig tunes the check provider stage.
type AuditConfig struct {
	Workers int `mapstructure:"workers"`
}

// OutputConfig selects where scan results are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig configures the HTTP backend.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Loader is the interface for reading Config.
type Loader interface {
	// Load reads, parses, and validates the configuration.
	Load() (*Config, error)

	// ConfigPath returns the absolute path to the configuration file.
	ConfigPath() string
}

// FileLoader reads Config from a YAML file with environment overrides.
// A missing file at the default path is not an error; a missing file that
// was named explicitly is.
type FileLoader struct {
	path     string
	explicit bool
}

// NewFileLoader returns a loader for path. An empty path selects
// DefaultPath.
func NewFileLoader(path string) *FileLoader {
	if path == "" {
		return &FileLoader{path: DefaultPath()}
	}
	return &FileLoader{path: path, explicit: true}
}

// DefaultPath returns ~/.config/cisaudit/config.yaml, or a relative
// config.yaml when the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "cisaudit", "config.yaml")
}

// ConfigPath implements Loader.
func (l *FileLoader) ConfigPath() string { return l.path }

// Load implements Loader.
func (l *FileLoader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if l.explicit {
				return nil, fmt.Errorf("config file %s not found", l.path)
			}
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// CISAUDIT_REGIONS is comma separated and may carry spaces.
	cfg.Regions = splitList(strings.Join(cfg.Regions, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "")
	v.SetDefault("profile", "")
	v.SetDefault("regions", []string{})
	v.SetDefault("policy", "")
	v.SetDefault("discovery.workers", 10)
	v.SetDefault("discovery.probe_timeout", time.Duration(0))
	v.SetDefault("audit.workers", 5)
	v.SetDefault("output.dir", "scans")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.Workers < 1 {
		errs = append(errs, fmt.Errorf("discovery.workers must be at least 1, got %d", c.Discovery.Workers))
	}
	if c.Audit.Workers < 1 {
		errs = append(errs, fmt.Errorf("audit.workers must be at least 1, got %d", c.Audit.Workers))
	}
	if c.Discovery.ProbeTimeout < 0 {
		errs = append(errs, fmt.Errorf("discovery.probe_timeout must not be negative"))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir must not be empty"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
