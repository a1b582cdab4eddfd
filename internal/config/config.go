// Package config provides configuration loading and validation for canjebot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// SourceConfig configures one collection source. Sources are created from
// configuration at startup and only their run state mutates afterwards.
type SourceConfig struct {
	Name    string `json:"name" validate:"required"`
	Kind    string `json:"kind" validate:"required,oneof=greenhouse lever careerpage infojobs"`
	URL     string `json:"url" validate:"required,url"`
	Enabled bool   `json:"enabled"`
	Profile string `json:"profile" validate:"required"` // target document profile

	// Rate-limit policy: the scheduler draws the inter-run delay uniformly
	// from [MinDelay, MaxDelay]; failures scale the next delay by
	// BackoffMultiplier.
	MinDelay          Duration `json:"min_delay" validate:"required"`
	MaxDelay          Duration `json:"max_delay" validate:"required"`
	BackoffMultiplier float64  `json:"backoff_multiplier"`
}

// FilterConfig holds the eligibility thresholds. Changing them affects only
// future verdicts; decided jobs keep their persisted verdict.
type FilterConfig struct {
	SalaryFloorAnnual  float64  `json:"salary_floor_annual" validate:"gt=0"`
	SalaryFloorMonthly float64  `json:"salary_floor_monthly" validate:"gt=0"`
	MinWeeklyHours     int      `json:"min_weekly_hours" validate:"gt=0,lte=60"`
	BlockedCompanies   []string `json:"blocked_companies,omitempty"`
}

// GenerationConfig configures the document-generation collaborator.
type GenerationConfig struct {
	Model          string  `json:"model"`
	QualityMinimum float64 `json:"quality_minimum" validate:"gte=0,lte=10"`
	Workers        int     `json:"workers" validate:"gte=1,lte=16"`
}

// Config is the full startup configuration, loaded once. Secrets
// (DATABASE_URL, GEMINI_API_KEY) come from the environment, not the file.
type Config struct {
	HTTPPort int `json:"http_port" validate:"gte=1,lte=65535"`

	ReviewWindow  Duration `json:"review_window"`
	ReviewWarning Duration `json:"review_warning"`

	CircuitBreakerThreshold int `json:"circuit_breaker_threshold" validate:"gte=1"`

	// Per-company application cap: at most MaxPerCompany live applications
	// within CompanyCapDays.
	MaxPerCompany  int `json:"max_per_company" validate:"gte=1"`
	CompanyCapDays int `json:"company_cap_days" validate:"gte=1"`

	// Retention for terminal rows.
	JobRetentionDays         int `json:"job_retention_days" validate:"gte=1"`
	ApplicationRetentionDays int `json:"application_retention_days" validate:"gte=1"`

	Filter     FilterConfig     `json:"filter"`
	Generation GenerationConfig `json:"generation"`
	Sources    []SourceConfig   `json:"sources" validate:"min=1,dive"`
}

// Duration is a time.Duration that unmarshals from JSON strings like "3s".
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(value))
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// MarshalJSON writes the duration as its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given. The source
// list is empty on purpose; a real deployment always names its sources.
func Default() *Config {
	return &Config{
		HTTPPort:                 8080,
		ReviewWindow:             Duration(30 * time.Minute),
		ReviewWarning:            Duration(25 * time.Minute),
		CircuitBreakerThreshold:  5,
		MaxPerCompany:            2,
		CompanyCapDays:           14,
		JobRetentionDays:         90,
		ApplicationRetentionDays: 365,
		Filter: FilterConfig{
			SalaryFloorAnnual:  15876,
			SalaryFloorMonthly: 1134,
			MinWeeklyHours:     35,
		},
		Generation: GenerationConfig{
			Model:          "gemini-1.5-flash",
			QualityMinimum: 7.0,
			Workers:        2,
		},
	}
}

// Load reads a JSON config file, fills unset fields from defaults, and
// validates the result. Configuration errors are fatal at startup by design.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.ReviewWindow <= 0 {
		return fmt.Errorf("config error: review_window must be positive")
	}
	if c.ReviewWarning >= c.ReviewWindow {
		return fmt.Errorf("config error: review_warning must be shorter than review_window")
	}

	for _, src := range c.Sources {
		if src.MinDelay > src.MaxDelay {
			return fmt.Errorf("config error: source %s has min_delay > max_delay", src.Name)
		}
		if src.BackoffMultiplier != 0 && src.BackoffMultiplier < 1 {
			return fmt.Errorf("config error: source %s backoff_multiplier must be >= 1", src.Name)
		}
	}
	return nil
}
