package pgcalendar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahmed-com/pgcalendar/cron"
	"github.com/ahmed-com/pgcalendar/date"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Storage drivers
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
)

// Config describes a calendar, its journal and the rules run against it
type Config struct {
	Active bool `yaml:"active"`
	// HourLength is the real-time length of an in-world hour, in seconds
	HourLength   uint64 `yaml:"hour_length"`
	StartHour    int    `yaml:"start_hour"`
	StartWeekday int    `yaml:"start_weekday"`
	StartDate    string `yaml:"start_date"`
	LogLevel     string `yaml:"log_level"`

	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rules     []RuleSpec      `yaml:"rules"`
}

// StorageConfig selects the firing journal backend
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// RuleSpec declares a rule in configuration
type RuleSpec struct {
	Name       string     `yaml:"name"`
	Expression string     `yaml:"expression"`
	Config     RuleConfig `yaml:",inline"`
}

// DefaultConfig returns the stock calendar: active, 5 second hours,
// starting Monday 2000-01-01 at 06:00.
func DefaultConfig() Config {
	return Config{
		Active:       true,
		HourLength:   5,
		StartHour:    6,
		StartWeekday: 1,
		StartDate:    "2000-01-01",
		LogLevel:     "info",
		Storage:      StorageConfig{Driver: StorageMemory},
		Scheduler: SchedulerConfig{
			FrameInterval:        50 * time.Millisecond,
			MaxConcurrentActions: 10,
			ReaperInterval:       5 * time.Minute,
			StaleThreshold:       time.Hour,
		},
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON-with-comments (.json, .jsonc)
// file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are gone
		data = jsonc.ToJSON(data)
	default:
		return cfg, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges, the start date, the storage driver and every rule
func (c Config) Validate() error {
	if c.HourLength == 0 {
		return fmt.Errorf("%w: hour_length must be positive", ErrInvalidConfig)
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("%w: start_hour %d out of range 0-23", ErrInvalidConfig, c.StartHour)
	}
	if c.StartWeekday < 1 || c.StartWeekday > 7 {
		return fmt.Errorf("%w: start_weekday %d out of range 1-7", ErrInvalidConfig, c.StartWeekday)
	}
	if _, err := date.Parse(c.StartDate); err != nil {
		return fmt.Errorf("%w: start_date: %w", ErrInvalidConfig, err)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
		}
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: badger storage needs a path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule %d has no name", ErrInvalidConfig, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule %q", ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = true

		if _, err := cron.Parse(r.Expression); err != nil {
			return fmt.Errorf("%w: rule %q: %w", ErrInvalidConfig, r.Name, err)
		}
		switch r.Config.OverlapPolicy {
		case "", OverlapPolicyAllow, OverlapPolicySkip:
		default:
			return fmt.Errorf("%w: rule %q: unknown overlap policy %q", ErrInvalidConfig, r.Name, r.Config.OverlapPolicy)
		}
	}
	return nil
}

// HourDuration returns HourLength as a duration
func (c Config) HourDuration() time.Duration {
	return time.Duration(c.HourLength) * time.Second
}

// NewCalendar builds the calendar the config describes
func (c Config) NewCalendar() (*Calendar, error) {
	return NewCalendar(c.Active, c.StartHour, c.StartWeekday, c.HourDuration(), c.StartDate)
}

// BuildRules creates the configured rules, all bound to action
func (c Config) BuildRules(action ActionFunc) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(c.Rules))
	for _, spec := range c.Rules {
		r, err := NewRule(spec.Name, spec.Expression, action, spec.Config)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
