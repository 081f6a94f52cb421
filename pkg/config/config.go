// Package config holds the runtime configuration for chanserv: backend
// selection, storage paths, the commit cycle interval and logging options.
// Configuration is read from a YAML file and may be overridden by flags in
// main.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fgalloway/chanserv/pkg/logging"
)

// Backend names a persistence backend.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendFile   Backend = "file"
)

// Duration is a time.Duration that unmarshals from YAML as either a Go
// duration string ("25s", "5m") or a plain number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("config: invalid duration value")
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Config is the full chanserv configuration.
type Config struct {
	Backend Backend `yaml:"backend"`

	// DBPath is the SQLite database file (sqlite backend).
	DBPath string `yaml:"db_path"`
	// DataDir is the channel document directory (file backend).
	DataDir string `yaml:"data_dir"`

	// CommitInterval is how often pending mutations are flushed.
	CommitInterval Duration `yaml:"commit_interval"`
	// IdleTimeout is how long the sqlite connection may sit unused before
	// being closed.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// ChannelsFile optionally names a seed file of channels to ensure at
	// startup.
	ChannelsFile string `yaml:"channels_file"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when no file or flags are given.
func Default() Config {
	return Config{
		Backend:        BackendSQLite,
		DBPath:         "chanserv.db",
		DataDir:        "channels",
		CommitInterval: Duration(25 * time.Second),
		IdleTimeout:    Duration(5 * time.Minute),
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadFile reads a YAML configuration file over the defaults. The result
// is not validated; call Validate after applying any flag overrides.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

var ErrMissingDBPath = errors.New("config: sqlite backend requires db_path")
var ErrMissingDataDir = errors.New("config: file backend requires data_dir")

// Validate reports whether the configuration can start a server. Missing
// required backend parameters are errors, not defaults.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return ErrMissingDBPath
		}
	case BackendFile:
		if c.DataDir == "" {
			return ErrMissingDataDir
		}
	default:
		return fmt.Errorf("config: unknown backend %q (valid: sqlite, file)", c.Backend)
	}
	if c.CommitInterval <= 0 {
		return fmt.Errorf("config: commit_interval must be positive")
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
