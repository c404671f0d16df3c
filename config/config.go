// Package config loads Vesper configuration using Viper.
//
// Sources, in precedence order: explicit file path, ./vesper.toml,
// $HOME/.config/vesper/vesper.toml, VESPER_* environment variables,
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level Vesper configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Actions   ActionsConfig   `mapstructure:"actions"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the job runner and ticker
type SchedulerConfig struct {
	// TickInterval is how often the ticker sweeps for due jobs
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// StaleAfter is how long a job may sit in 'running' before the
	// reaper treats it as a crashed execution and fails it
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// ActionsConfig configures the action dispatcher and its collaborators
type ActionsConfig struct {
	NotesDir       string        `mapstructure:"notes_dir"`
	WhitelistPath  string        `mapstructure:"whitelist_path"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// SetDefaults registers the built-in defaults on a Viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "vesper.db")
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.stale_after", 5*time.Minute)
	v.SetDefault("actions.notes_dir", "notes")
	v.SetDefault("actions.whitelist_path", "whitelist.yaml")
	v.SetDefault("actions.command_timeout", 30*time.Second)
	v.SetDefault("actions.search_timeout", 10*time.Second)
	v.SetDefault("log.json", false)
}

// Load reads configuration from the default locations
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("vesper")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "vesper"))
	}
	v.SetEnvPrefix("VESPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Missing config file is fine - defaults and env cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from %s: %w", configPath, err)
	}

	return &config, nil
}
