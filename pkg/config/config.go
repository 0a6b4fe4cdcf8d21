// Package config resolves codeboard settings. Defaults are overridden by an optional YAML file,
// then by a .env file, then by the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/astromechza/codeboard/pkg/execution"
)

type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Relay     Relay     `yaml:"relay"`
	Client    Client    `yaml:"client"`
	Execution Execution `yaml:"execution"`
}

type Relay struct {
	Addr           string        `yaml:"addr"`
	StoreURL       string        `yaml:"store_url"`
	BackupInterval time.Duration `yaml:"backup_interval"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	Advertise      bool          `yaml:"advertise"`
}

type Client struct {
	RelayURL  string `yaml:"relay_url"`
	Board     string `yaml:"board"`
	Name      string `yaml:"name"`
	Color     string `yaml:"color"`
	File      string `yaml:"file"`
	PrefsPath string `yaml:"prefs_path"`
	// Restore seeds an empty board with the input saved by the last session.
	Restore bool `yaml:"restore"`
}

type Execution struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	APIHost         string        `yaml:"api_host"`
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

func (e Execution) ClientConfig() execution.Config {
	return execution.Config{
		BaseURL:         e.URL,
		APIKey:          e.APIKey,
		APIHost:         e.APIHost,
		MaxAttempts:     e.MaxAttempts,
		InitialInterval: e.InitialInterval,
		MaxInterval:     e.MaxInterval,
		MaxElapsed:      e.MaxElapsed,
	}
}

func Default() Config {
	ex := execution.DefaultConfig()
	return Config{
		LogLevel: "info",
		Relay: Relay{
			Addr:           "localhost:8080",
			StoreURL:       "sqlite://codeboard.sqlite3",
			BackupInterval: 5 * time.Second,
			FlushInterval:  time.Second,
		},
		Client: Client{
			RelayURL:  "http://localhost:8080",
			Board:     "default",
			Color:     "#3b82f6",
			File:      "board.txt",
			PrefsPath: "codeboard-prefs.sqlite3",
		},
		Execution: Execution{
			URL:             ex.BaseURL,
			APIHost:         ex.APIHost,
			MaxAttempts:     ex.MaxAttempts,
			InitialInterval: ex.InitialInterval,
			MaxInterval:     ex.MaxInterval,
			MaxElapsed:      ex.MaxElapsed,
		},
	}
}

// Load resolves the configuration. path may be empty when there is no config file.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	// variables already in the environment win over the .env file
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.LogLevel = getEnv("CODEBOARD_LOG_LEVEL", cfg.LogLevel)

	cfg.Relay.Addr = getEnv("CODEBOARD_ADDR", cfg.Relay.Addr)
	cfg.Relay.StoreURL = getEnv("CODEBOARD_STORE_URL", cfg.Relay.StoreURL)
	cfg.Client.RelayURL = getEnv("CODEBOARD_RELAY_URL", cfg.Client.RelayURL)
	cfg.Client.Board = getEnv("CODEBOARD_BOARD", cfg.Client.Board)
	cfg.Client.Name = getEnv("CODEBOARD_NAME", cfg.Client.Name)
	cfg.Client.Color = getEnv("CODEBOARD_COLOR", cfg.Client.Color)
	cfg.Client.File = getEnv("CODEBOARD_FILE", cfg.Client.File)
	cfg.Client.PrefsPath = getEnv("CODEBOARD_PREFS", cfg.Client.PrefsPath)
	cfg.Execution.URL = getEnv("JUDGE0_URL", cfg.Execution.URL)
	cfg.Execution.APIKey = getEnv("JUDGE0_API_KEY", cfg.Execution.APIKey)
	cfg.Execution.APIHost = getEnv("JUDGE0_API_HOST", cfg.Execution.APIHost)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getDuration("CODEBOARD_BACKUP_INTERVAL", &cfg.Relay.BackupInterval))
	collect(getDuration("CODEBOARD_FLUSH_INTERVAL", &cfg.Relay.FlushInterval))
	collect(getBool("CODEBOARD_ADVERTISE", &cfg.Relay.Advertise))
	collect(getBool("CODEBOARD_RESTORE", &cfg.Client.Restore))
	collect(getInt("JUDGE0_MAX_ATTEMPTS", &cfg.Execution.MaxAttempts))
	collect(getDuration("JUDGE0_MAX_ELAPSED", &cfg.Execution.MaxElapsed))
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func getBool(key string, dst *bool) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func getInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
