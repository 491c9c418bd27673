package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Databases
	AppDBPath  string
	MartDBPath string

	// Source System
	SourceDBHost     string
	SourceDBPort     int
	SourceDBName     string
	SourceDBUser     string
	SourceDBPassword string
	SourceDBSSLMode  string

	// API Server
	APIPort string
	APIHost string

	// Logging
	LogLevel string

	// Data Retention
	DataRetentionDays int

	// Worker Pool
	WorkerPoolSize int

	// Cache
	CacheTTLMinutes int

	// Queries from YAML
	Queries QueryConfig

	// Analysis parameters
	Analysis AnalysisConfig

	// Default area -> lines table seeded into the area manager
	Areas map[string][]string `mapstructure:"areas"`

	// Mock data settings
	MockData MockDataConfig `mapstructure:"mock_data"`

	// Area Config Manager
	AreaManager *AreaConfigManager

	// Scheduler
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// QueryConfig holds the source SQL templates
type QueryConfig struct {
	Production string `mapstructure:"production"`
	Downtime   string `mapstructure:"downtime"`
	Machines   string `mapstructure:"machines"`
}

// AnalysisConfig holds analysis parameters
type AnalysisConfig struct {
	TopNLimit int `mapstructure:"top_n_limit" json:"top_n_limit"`
	TrendDays int `mapstructure:"trend_days" json:"trend_days"`
}

// MockDataConfig holds mock data generation settings
type MockDataConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Seed            int64    `mapstructure:"seed"`
	TimeRangeDays   int      `mapstructure:"time_range_days"`
	MachinesPerLine int      `mapstructure:"machines_per_line"`
	Items           []string `mapstructure:"items"`
	DefectTypes     []string `mapstructure:"defect_types"`
	DowntimeReasons []string `mapstructure:"downtime_reasons"`
}

// Defaults applied when config.yaml leaves a value unset
const (
	DefaultTopN      = 5
	DefaultTrendDays = 7
)

// LoadConfig loads configuration from .env and config.yaml
func LoadConfig() (*Config, error) {
	// .env file is optional
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	config := &Config{
		AppDBPath:         getEnv("APP_DB_PATH", "./data/app.db"),
		MartDBPath:        getEnv("MART_DB_PATH", "./data/mart.duckdb"),
		SourceDBHost:      getEnv("SOURCE_DB_HOST", "localhost"),
		SourceDBPort:      getEnvAsInt("SOURCE_DB_PORT", 5432),
		SourceDBName:      getEnv("SOURCE_DB_NAME", "manufacturing_db"),
		SourceDBUser:      getEnv("SOURCE_DB_USER", "etl_user"),
		SourceDBPassword:  getEnv("SOURCE_DB_PASSWORD", ""),
		SourceDBSSLMode:   getEnv("SOURCE_DB_SSLMODE", "disable"),
		APIPort:           getEnv("API_PORT", "8080"),
		APIHost:           getEnv("API_HOST", "0.0.0.0"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DataRetentionDays: getEnvAsInt("DATA_RETENTION_DAYS", 30),
		WorkerPoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 4),
		CacheTTLMinutes:   getEnvAsInt("CACHE_TTL_MINUTES", 10),
	}

	if err := viper.UnmarshalKey("queries", &config.Queries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queries: %w", err)
	}
	if err := viper.UnmarshalKey("analysis", &config.Analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis config: %w", err)
	}
	if err := viper.UnmarshalKey("areas", &config.Areas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal areas: %w", err)
	}
	if err := viper.UnmarshalKey("mock_data", &config.MockData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mock_data config: %w", err)
	}
	if err := viper.UnmarshalKey("scheduler", &config.Scheduler); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scheduler config: %w", err)
	}
	config.applyDefaults()

	// Area edits are persisted next to the app database
	areaPath := getEnv("AREA_CONFIG_PATH", filepath.Join(filepath.Dir(config.AppDBPath), "config_areas.json"))
	config.AreaManager = NewAreaConfigManager(areaPath, config.Areas)
	if err := config.AreaManager.Load(); err != nil {
		fmt.Printf("Warning: Failed to load area config: %v\n", err)
	}

	if config.AppDBPath == "" {
		return nil, fmt.Errorf("APP_DB_PATH is required")
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Analysis.TopNLimit <= 0 {
		c.Analysis.TopNLimit = DefaultTopN
	}
	if c.Analysis.TrendDays <= 0 {
		c.Analysis.TrendDays = DefaultTrendDays
	}
	if c.MockData.TimeRangeDays <= 0 {
		c.MockData.TimeRangeDays = 30
	}
	if c.MockData.MachinesPerLine <= 0 {
		c.MockData.MachinesPerLine = 3
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = DefaultSchedulerCron
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 1
	}
}

// SourceDSN returns the lib/pq connection string for the source database
func (c *Config) SourceDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.SourceDBHost, c.SourceDBPort, c.SourceDBUser, c.SourceDBPassword, c.SourceDBName, c.SourceDBSSLMode)
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
