package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration, loaded from an optional
// yaml file with environment variable overrides.
type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Store struct {
		// Backend selects persistence: memory, postgres or redis.
		Backend  string         `yaml:"backend"`
		Postgres PostgresConfig `yaml:"postgres"`
		Redis    RedisConfig    `yaml:"redis"`
	} `yaml:"store"`

	Realtime struct {
		// ExclusiveRooms limits a connection to one board room; joining a
		// second board leaves the first.
		ExclusiveRooms  bool `yaml:"exclusive_rooms"`
		PingIntervalSec int  `yaml:"ping_interval_sec"`
		SendBufferSize  int  `yaml:"send_buffer_size"`
		BroadcastBuffer int  `yaml:"broadcast_buffer"`
	} `yaml:"realtime"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DSN builds the Postgres connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 4000
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Store.Backend = "memory"
	cfg.Store.Postgres = PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "leancoffee",
		SSLMode:  "disable",
	}
	cfg.Store.Redis = RedisConfig{Addr: "localhost:6379"}
	cfg.Realtime.ExclusiveRooms = true
	cfg.Realtime.PingIntervalSec = 30
	cfg.Realtime.SendBufferSize = 256
	cfg.Realtime.BroadcastBuffer = 1000
	return &cfg
}

// Load reads the optional config file at path, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	if origins := os.Getenv("CORS_ORIGIN"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Server.CORSOrigins = parts
	}

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Postgres.Host = getEnv("DB_HOST", cfg.Store.Postgres.Host)
	cfg.Store.Postgres.Port = getEnvAsInt("DB_PORT", cfg.Store.Postgres.Port)
	cfg.Store.Postgres.User = getEnv("DB_USER", cfg.Store.Postgres.User)
	cfg.Store.Postgres.Password = getEnv("DB_PASSWORD", cfg.Store.Postgres.Password)
	cfg.Store.Postgres.Database = getEnv("DB_NAME", cfg.Store.Postgres.Database)
	cfg.Store.Postgres.SSLMode = getEnv("DB_SSLMODE", cfg.Store.Postgres.SSLMode)
	cfg.Store.Redis.Addr = getEnv("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Store.Redis.DB)

	switch cfg.Store.Backend {
	case "memory", "postgres", "redis":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return cfg, nil
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
