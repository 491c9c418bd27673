package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

var configMutex sync.RWMutex

// AnalysisSettings returns the current analysis parameters
func (c *Config) AnalysisSettings() AnalysisConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return c.Analysis
}

// UpdateAnalysisSettings updates analysis settings and saves to file
func (c *Config) UpdateAnalysisSettings(topN, trendDays int) error {
	if topN < 1 || trendDays < 1 {
		return fmt.Errorf("top_n_limit and trend_days must be >= 1")
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	c.Analysis.TopNLimit = topN
	c.Analysis.TrendDays = trendDays

	viper.Set("analysis.top_n_limit", topN)
	viper.Set("analysis.trend_days", trendDays)

	if viper.ConfigFileUsed() == "" {
		return nil
	}
	return viper.WriteConfig()
}
