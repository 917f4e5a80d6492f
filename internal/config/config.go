package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、コマンドラインオプションで上書きした後はイミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Logging
	LogLevel string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchInterval      time.Duration
	FetchHostRate      float64
	FetchAllowPrivate  bool
	UserAgent          string

	// Content
	SanitizeContent bool

	// Server
	ServerPort string
}

// DefaultDatabaseURL はDATABASE_URL未設定時に使用するSQLiteデータベース。
const DefaultDatabaseURL = "sqlite:///var/db/rssroll.db"

// Load は環境変数からConfigを読み込む。
// 値が不正な場合はデフォルト値を使用し、ログレベルのみ検証してエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", DefaultDatabaseURL)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 1)
	cfg.FetchInterval = getEnvDuration("FETCH_INTERVAL", 30*time.Minute)
	cfg.FetchHostRate = getEnvFloat("FETCH_HOST_RATE", 1)
	cfg.FetchAllowPrivate = getEnvBool("FETCH_ALLOW_PRIVATE", false)
	cfg.UserAgent = getEnvString("USER_AGENT", "rssroll/1.0")
	cfg.SanitizeContent = getEnvBool("SANITIZE_CONTENT", true)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q (allowed: debug, info)", c.LogLevel)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is empty")
	}
	if c.FetchMaxConcurrent <= 0 {
		c.FetchMaxConcurrent = 1
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
