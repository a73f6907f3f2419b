package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds console settings, loaded from an optional YAML file with
// environment overrides.
type Config struct {
	Server struct {
		URL              string `yaml:"url"`
		ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
		WriteTimeoutMS   int    `yaml:"write_timeout_ms"`
	} `yaml:"server"`

	// Channel is the session channel this console is bound to. Normalized
	// to lowercase at load time; event admission compares case-sensitively
	// against it.
	Channel string `yaml:"channel"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and normalizes the channel tag. A missing file is not an error;
// env and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// fall through to env and defaults
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.Server.URL = getEnv("CONSOLE_SERVER_URL", cfg.Server.URL)
	cfg.Server.ConnectTimeoutMS = getEnvAsInt("CONSOLE_CONNECT_TIMEOUT_MS", cfg.Server.ConnectTimeoutMS)
	cfg.Server.WriteTimeoutMS = getEnvAsInt("CONSOLE_WRITE_TIMEOUT_MS", cfg.Server.WriteTimeoutMS)
	cfg.Channel = getEnv("CONSOLE_CHANNEL", cfg.Channel)
	cfg.HTTP.Addr = getEnv("CONSOLE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Channel = strings.ToLower(cfg.Channel)

	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server url is required (CONSOLE_SERVER_URL or server.url)")
	}
	return cfg, nil
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutMS) * time.Millisecond
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.ConnectTimeoutMS = 10000
	cfg.Server.WriteTimeoutMS = 10000
	cfg.HTTP.Addr = ":8082"
	cfg.NATS.SubjectPrefix = "console.events"
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
