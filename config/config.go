package config

import (
	"log/slog"
	"os"
	"strconv"
)

const (
	EnvDevelopment = "DEV"
	EnvProduction  = "PROD"

	DefaultLoginFile         = "reddit_login.txt"
	DefaultAPIKeysFile       = "api_keys.txt"
	DefaultUserAgent         = "small_feed_0.0.1"
	DefaultFetchConcurrency  = 1
	DefaultRequestsPerMinute = 60
)

type AppConfig struct {
	LoginFile         string
	APIKeysFile       string
	UserAgent         string
	ProxyURL          string
	FetchConcurrency  int
	RequestsPerMinute int
	RetryRateLimited  bool
	MetricsFile       string
	AppEnv            string // EnvDevelopment or EnvProduction
	LogLevel          slog.Level
}

var Config AppConfig

func LoadConfig() {
	Config = Parse(os.Getenv)
}

// Parse builds the configuration from getenv. Invalid values are logged and
// replaced with their defaults.
func Parse(getenv func(string) string) AppConfig {
	env := envReader{getenv}
	cfg := AppConfig{}

	cfg.AppEnv = getenv("APP_ENV")
	cfg.LoginFile = env.optional("REDDIT_LOGIN_FILE", DefaultLoginFile)
	cfg.APIKeysFile = env.optional("API_KEYS_FILE", DefaultAPIKeysFile)
	cfg.UserAgent = env.optional("USER_AGENT", DefaultUserAgent)
	cfg.ProxyURL = getenv("PROXY_URL")
	cfg.MetricsFile = getenv("METRICS_FILE")
	cfg.FetchConcurrency = env.positiveInt("FETCH_CONCURRENCY", DefaultFetchConcurrency)
	cfg.RequestsPerMinute = env.positiveInt("REQUESTS_PER_MINUTE", DefaultRequestsPerMinute)
	cfg.RetryRateLimited = env.boolean("RETRY_RATE_LIMITED", false)

	lvlString := env.optional("LOG_LEVEL", "INFO")
	var err error
	cfg.LogLevel, err = parseLogLevel(lvlString)
	if err != nil {
		slog.Error("Invalid LOG_LEVEL", "error", err)
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	var err = level.UnmarshalText([]byte(s))
	return level, err
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) optional(key, defaultValue string) string {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (e envReader) positiveInt(key string, defaultValue int) int {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		slog.Error("Invalid env var, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Error("Invalid env var, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func (c AppConfig) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c AppConfig) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}
