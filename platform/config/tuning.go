package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the pipeline's numeric knobs. Production defaults match
// the values the metrics pipeline was calibrated with; a YAML file can
// override them per deployment.
type Tuning struct {
	SmoothingAlpha        float64       `yaml:"smoothingAlpha"`
	MinForecastSamples    int           `yaml:"minForecastSamples"`
	ForecastFloor         float64       `yaml:"forecastFloor"`
	ForecastMonths        int           `yaml:"forecastMonths"`
	MonthFetchDelay       time.Duration `yaml:"monthFetchDelay"`
	RequestTimeout        time.Duration `yaml:"requestTimeout"`
	MaxRetries            int           `yaml:"maxRetries"`
	RetryBaseDelay        time.Duration `yaml:"retryBaseDelay"`
	CacheTTL              time.Duration `yaml:"cacheTTL"`
	CacheVersion          int           `yaml:"cacheVersion"`
	ZoneBatchSize         int           `yaml:"zoneBatchSize"`
	ExcludedStockCategory string        `yaml:"excludedStockCategory"`
}

// DefaultTuning returns the production defaults.
func DefaultTuning() Tuning {
	return Tuning{
		SmoothingAlpha:        0.3,
		MinForecastSamples:    10,
		ForecastFloor:         0.1,
		ForecastMonths:        12,
		MonthFetchDelay:       500 * time.Millisecond,
		RequestTimeout:        20 * time.Second,
		MaxRetries:            2,
		RetryBaseDelay:        1500 * time.Millisecond,
		CacheTTL:              5 * time.Minute,
		CacheVersion:          3,
		ZoneBatchSize:         200,
		ExcludedStockCategory: "services",
	}
}

// LoadTuning reads the tuning file when a path is given, applying
// defaults for any omitted field. An empty path yields pure defaults.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file: %w", err)
	}

	if tuning.SmoothingAlpha <= 0 || tuning.SmoothingAlpha > 1 {
		return Tuning{}, fmt.Errorf("smoothingAlpha must be in (0, 1], got %v", tuning.SmoothingAlpha)
	}
	if tuning.MinForecastSamples < 1 {
		return Tuning{}, fmt.Errorf("minForecastSamples must be positive, got %d", tuning.MinForecastSamples)
	}
	if tuning.CacheVersion < 1 {
		return Tuning{}, fmt.Errorf("cacheVersion must be positive, got %d", tuning.CacheVersion)
	}

	return tuning, nil
}
