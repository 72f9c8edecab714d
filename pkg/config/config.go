package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

const (
	xdgAppName  = "taskboard"
	configFile  = "config.yaml"
	projectFile = ".taskboard.yaml"
	envPrefix   = "TASKBOARD"

	defaultCalendar = "Tasks"
)

// Backend names accepted in the backends list.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendGoogle = "google"
)

type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// DataDir holds pending queues, the sqlite database and calendar caches.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// Backends is the fallback chain, tried in order.
	Backends []string     `mapstructure:"backends" yaml:"backends"`
	Calendar string       `mapstructure:"calendar" yaml:"calendar"`
	SQLite   SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	HTTP     HTTPConfig   `mapstructure:"http" yaml:"http"`
	Roster   model.Roster `mapstructure:"roster" yaml:"roster"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// GetConfigDir returns ~/.config/taskboard.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func Default() *Config {
	dataDir := ""
	if dir, err := GetConfigDir(); err == nil {
		dataDir = dir
	}
	return &Config{
		LogLevel: "info",
		DataDir:  dataDir,
		Backends: []string{BackendSQLite},
		Calendar: defaultCalendar,
		HTTP:     HTTPConfig{Addr: ":8000"},
	}
}

// Load merges the global config, then the project config in the working
// directory, then TASKBOARD_* environment variables over Default. When
// explicit is set, only that file is read.
func Load(explicit string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range map[string]any{
		"log_level":       cfg.LogLevel,
		"data_dir":        cfg.DataDir,
		"backends":        cfg.Backends,
		"calendar":        cfg.Calendar,
		"sqlite.path":     "",
		"http.addr":       cfg.HTTP.Addr,
		"http.jwt_secret": "",
	} {
		v.SetDefault(key, value)
	}

	var paths []string
	if explicit != "" {
		paths = []string{explicit}
	} else {
		if global, err := GetConfigPath(); err == nil {
			paths = append(paths, global)
		}
		if cwd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(cwd, projectFile))
		}
	}
	for _, path := range paths {
		if err := mergeFile(v, path); err != nil {
			if explicit == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// A comma separated TASKBOARD_BACKENDS arrives as a single element.
	if len(cfg.Backends) == 1 && strings.Contains(cfg.Backends[0], ",") {
		cfg.Backends = strings.Split(cfg.Backends[0], ",")
	}
	for i, b := range cfg.Backends {
		cfg.Backends[i] = strings.TrimSpace(strings.ToLower(b))
	}
	if cfg.Calendar == "" {
		cfg.Calendar = defaultCalendar
	}
	if cfg.SQLite.Path == "" && cfg.DataDir != "" {
		cfg.SQLite.Path = filepath.Join(cfg.DataDir, "tasks.db")
	}
	return cfg, cfg.Validate()
}

func mergeFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("config: at least one backend is required")
	}
	seen := make(map[string]bool)
	for _, b := range c.Backends {
		switch b {
		case BackendMemory, BackendSQLite, BackendGoogle:
		default:
			return fmt.Errorf("config: unknown backend %q", b)
		}
		if seen[b] {
			return fmt.Errorf("config: backend %q listed twice", b)
		}
		seen[b] = true
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	return nil
}

// SaveCalendar persists the default calendar name into the global config
// file, keeping whatever else is already there.
func SaveCalendar(name string) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	doc["calendar"] = name

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
