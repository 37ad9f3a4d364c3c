// Package config provides configuration management for the frontier server and CLI.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Simulation SimulationConfig
	Data       DataConfig
	Storage    StorageConfig
	Logging    LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string
	Port         string
	StaticDir    string
	RateLimitRPS int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SimulationConfig holds defaults and bounds for simulation requests
type SimulationConfig struct {
	DefaultSimulations int
	MaxSimulations     int
	RiskFreeRate       float64
	PeriodsPerYear     int
	Workers            int
	Sampler            string
	ReturnKind         string
}

// DataConfig holds market data configuration
type DataConfig struct {
	YahooBaseURL string
	Years        int
	MaxTickers   int
	FetchRPS     float64
	FetchTimeout time.Duration
}

// StorageConfig holds run history and cache configuration
type StorageConfig struct {
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PriceCacheTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			StaticDir:    getEnv("STATIC_DIR", "./static"),
			RateLimitRPS: getEnvAsInt("API_RATE_LIMIT_RPS", 5),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
		},
		Simulation: SimulationConfig{
			DefaultSimulations: getEnvAsInt("SIM_DEFAULT_SIMULATIONS", 10000),
			MaxSimulations:     getEnvAsInt("SIM_MAX_SIMULATIONS", 50000),
			RiskFreeRate:       getEnvAsFloat("SIM_RISK_FREE_RATE", 0.02),
			PeriodsPerYear:     getEnvAsInt("SIM_PERIODS_PER_YEAR", 252),
			Workers:            getEnvAsInt("SIM_WORKERS", 1),
			Sampler:            getEnv("SIM_SAMPLER", "uniform"),
			ReturnKind:         getEnv("SIM_RETURN_KIND", "simple"),
		},
		Data: DataConfig{
			YahooBaseURL: getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			Years:        getEnvAsInt("DATA_YEARS", 2),
			MaxTickers:   getEnvAsInt("DATA_MAX_TICKERS", 20),
			FetchRPS:     getEnvAsFloat("DATA_FETCH_RPS", 4),
			FetchTimeout: getEnvAsDuration("DATA_FETCH_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			DBPath:        getEnv("DB_PATH", "frontier.db"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			PriceCacheTTL: getEnvAsDuration("PRICE_CACHE_TTL", 6*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks bounds that would otherwise surface as failed runs.
func (c *Config) Validate() error {
	if c.Simulation.DefaultSimulations < 1 {
		return fmt.Errorf("SIM_DEFAULT_SIMULATIONS must be at least 1, got %d", c.Simulation.DefaultSimulations)
	}
	if c.Simulation.MaxSimulations < c.Simulation.DefaultSimulations {
		return fmt.Errorf("SIM_MAX_SIMULATIONS (%d) is below SIM_DEFAULT_SIMULATIONS (%d)",
			c.Simulation.MaxSimulations, c.Simulation.DefaultSimulations)
	}
	if c.Simulation.PeriodsPerYear <= 0 {
		return fmt.Errorf("SIM_PERIODS_PER_YEAR must be positive, got %d", c.Simulation.PeriodsPerYear)
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("SIM_WORKERS must be at least 1, got %d", c.Simulation.Workers)
	}
	if c.Data.Years < 1 {
		return fmt.Errorf("DATA_YEARS must be at least 1, got %d", c.Data.Years)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
