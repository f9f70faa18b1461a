// Package config holds the daemon configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the full daemon configuration.
type Config struct {
	// Addr is the REST listen address.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path, ":memory:" for testing.
	DBPath string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Backend selects the execution backend ("local", "gridengine").
	Backend string `yaml:"backend"`

	Scheduling SchedulingConfig `yaml:"scheduling"`
}

// SchedulingConfig controls the manager's submission and polling behavior.
type SchedulingConfig struct {
	// JobLimit caps concurrently submitted or running jobs. Zero means
	// unlimited.
	JobLimit int `yaml:"job_limit"`

	// MaxAttempts is the submission attempt budget per job.
	MaxAttempts int `yaml:"max_attempts"`

	PollInterval    Duration `yaml:"poll_interval"`
	RetryBackoff    Duration `yaml:"retry_backoff"`
	RetryBackoffMax Duration `yaml:"retry_backoff_max"`

	// JobPrefix is prepended to scheduler-visible job names.
	JobPrefix string `yaml:"job_prefix"`
}

// Default returns the daemon defaults.
func Default() Config {
	return Config{
		Addr:      ":8080",
		DBPath:    defaultDBPath(),
		LogLevel:  "info",
		LogFormat: "text",
		Backend:   "local",
		Scheduling: SchedulingConfig{
			JobLimit:        0,
			MaxAttempts:     3,
			PollInterval:    Duration(15 * time.Second),
			RetryBackoff:    Duration(30 * time.Second),
			RetryBackoffMax: Duration(10 * time.Minute),
			JobPrefix:       "flwbst_",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "flowsched.db"
	}
	return home + "/.flowsched/flowsched.db"
}
