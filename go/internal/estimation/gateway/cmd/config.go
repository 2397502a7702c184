package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/pointing/go/internal/estimation/gateway"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from an optional YAML
// file (CONFIG_PATH) and are then overridden by environment variables.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	Port      string `yaml:"port"`
	APIPrefix string `yaml:"api_prefix"`
	StaticDir string `yaml:"static_dir"`

	WebSocket struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		SendBuffer     int           `yaml:"send_buffer"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

func defaultConfig() Config {
	conn := gateway.DefaultConnectionConfig()

	var cfg Config
	cfg.LogLevel = "info"
	cfg.Port = "8080"
	cfg.APIPrefix = gateway.DefaultConfig().APIPrefix
	cfg.WebSocket.WriteTimeout = conn.WriteTimeout
	cfg.WebSocket.ReadTimeout = conn.ReadTimeout
	cfg.WebSocket.PingInterval = conn.PingInterval
	cfg.WebSocket.SendBuffer = conn.SendBufferSize
	cfg.WebSocket.MaxMessageSize = conn.MaxMessageSize
	cfg.NATS.SubjectPrefix = gateway.DefaultNATSConfig().SubjectPrefix
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Port = getEnv("GATEWAY_PORT", cfg.Port)
	cfg.APIPrefix = getEnv("API_PREFIX", cfg.APIPrefix)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.WebSocket.WriteTimeout = getEnvAsDuration("WS_WRITE_TIMEOUT", cfg.WebSocket.WriteTimeout)
	cfg.WebSocket.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", cfg.WebSocket.ReadTimeout)
	cfg.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", cfg.WebSocket.PingInterval)
	cfg.WebSocket.SendBuffer = getEnvAsInt("WS_SEND_BUFFER", cfg.WebSocket.SendBuffer)
	cfg.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(cfg.WebSocket.MaxMessageSize)))
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	if cfg.WebSocket.PingInterval >= cfg.WebSocket.ReadTimeout {
		return cfg, fmt.Errorf("ping interval %s must be shorter than read timeout %s",
			cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)
	}
	return cfg, nil
}

// gatewayConfig converts the process configuration into the service configuration
func (c Config) gatewayConfig() gateway.Config {
	gc := gateway.DefaultConfig()
	gc.APIPrefix = c.APIPrefix
	gc.ConnectionConfig.WriteTimeout = c.WebSocket.WriteTimeout
	gc.ConnectionConfig.ReadTimeout = c.WebSocket.ReadTimeout
	gc.ConnectionConfig.PingInterval = c.WebSocket.PingInterval
	gc.ConnectionConfig.SendBufferSize = c.WebSocket.SendBuffer
	gc.ConnectionConfig.MaxMessageSize = c.WebSocket.MaxMessageSize

	if c.NATS.URL != "" {
		nc := gateway.DefaultNATSConfig()
		nc.URL = c.NATS.URL
		nc.SubjectPrefix = c.NATS.SubjectPrefix
		gc.NATS = &nc
	}
	return gc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
