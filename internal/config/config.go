package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Store      StoreConfig      `yaml:"store"`
	Log        LogConfig        `yaml:"log"`
	Generation GenerationConfig `yaml:"generation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
}

type StoreConfig struct {
	Driver string      `yaml:"driver"` // "sqlite" or "redis"
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type GenerationConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	MaxJobs int    `yaml:"max_jobs"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "deskset.db",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "deskset:",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
		Generation: GenerationConfig{
			MaxJobs: 8,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}

	if path := os.Getenv("DESKSET_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("DESKSET_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("DESKSET_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DESKSET_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("DESKSET_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if driver := os.Getenv("DESKSET_STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if dbPath := os.Getenv("DESKSET_DB_PATH"); dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if addr := os.Getenv("DESKSET_REDIS_ADDR"); addr != "" {
		cfg.Store.Redis.Addr = addr
	}
	if level := os.Getenv("DESKSET_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("DESKSET_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if key := os.Getenv("DESKSET_OPENAI_API_KEY"); key != "" {
		cfg.Generation.APIKey = key
	}
	if model := os.Getenv("DESKSET_OPENAI_MODEL"); model != "" {
		cfg.Generation.Model = model
	}
	if baseURL := os.Getenv("DESKSET_OPENAI_BASE_URL"); baseURL != "" {
		cfg.Generation.BaseURL = baseURL
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
	switch c.Store.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
