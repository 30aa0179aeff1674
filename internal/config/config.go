package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 血糖读数服务配置
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// trustomer 配置服务
	Trustomer struct {
		BaseURL      string
		CustomerCode string
		APIKey       string
		CacheTTL     int // 秒
	}

	// 日历日计算使用的服务端时区
	Timezone string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "bg_readings")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Trustomer.BaseURL = getEnv("TRUSTOMER_BASE_URL", "http://localhost:5000")
	cfg.Trustomer.CustomerCode = getEnv("TRUSTOMER_CUSTOMER_CODE", "dev")
	cfg.Trustomer.APIKey = getEnv("TRUSTOMER_API_KEY", "")
	cfg.Trustomer.CacheTTL = getEnvInt("TRUSTOMER_CACHE_TTL", 3600)

	cfg.Timezone = getEnv("SERVER_TIMEZONE", "UTC")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// DSN PostgreSQL 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Database, c.Database.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
