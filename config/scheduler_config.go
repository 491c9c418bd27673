package config

// DefaultSchedulerCron runs the ingest/mart/cleanup cycle at the top of every hour
const DefaultSchedulerCron = "0 * * * *"

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Cron    string `mapstructure:"cron" json:"cron"`
	// Source is "postgres" or "mock"
	Source string `mapstructure:"source" json:"source"`
}
