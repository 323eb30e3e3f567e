package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads and writes the configuration file.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// ~/.stinger/stinger.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the effective config file path.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stinger", "stinger.json")
}

// Load reads the config file, layering STINGER_* environment variables on
// top. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	path := l.Path()
	if path == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("json")
		v.SetEnvPrefix("STINGER")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	l.applyDefaults(cfg, path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyDefaults(cfg *Config, path string) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	if cfg.AgentsDir == "" {
		cfg.AgentsDir = filepath.Join(cfg.DataDir, "agents")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "stinger.log")
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = filepath.Join(cfg.DataDir, "memory.db")
	}
	if cfg.WorkspacePath == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.WorkspacePath = wd
		}
	}
}

// Save writes the configuration to disk.
func (l *Loader) Save(cfg *Config) error {
	path := l.Path()
	if path == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("agents_dir", cfg.AgentsDir)
	v.Set("data_dir", cfg.DataDir)
	v.Set("workspace_path", cfg.WorkspacePath)
	v.Set("session", cfg.Session)
	v.Set("memory", cfg.Memory)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)
	v.Set("browser", cfg.Browser)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience wrapper around NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
