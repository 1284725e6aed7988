package pgcalendar

import (
	"time"

	"github.com/ahmed-com/pgcalendar/date"
	"github.com/ahmed-com/pgcalendar/metrics"
	"go.uber.org/zap"
)

// EventKind identifies a calendar transition
type EventKind string

const (
	EventKindHour EventKind = "Hour"
	EventKindDay  EventKind = "Day"
)

// Event is a transition emitted by Calendar.Tick
type Event interface {
	Kind() EventKind
}

// HourTransition is emitted on every completed hour, carrying the new hour
type HourTransition struct {
	Hour int `json:"hour"`
}

func (HourTransition) Kind() EventKind { return EventKindHour }

// DayTransition is emitted when the hour wraps from 23 to 0, carrying the new weekday
type DayTransition struct {
	Weekday int `json:"weekday"`
}

func (DayTransition) Kind() EventKind { return EventKindDay }

// State is a point-in-time copy of a calendar's fields
type State struct {
	DaysPassed uint64        `json:"days_passed"`
	Hour       int           `json:"hour"`
	Weekday    int           `json:"weekday"`
	Date       date.Date     `json:"date"`
	HourLength time.Duration `json:"hour_length"`
	Progress   float64       `json:"progress"`
	Active     bool          `json:"active"`
	Epoch      uint64        `json:"epoch"`
}

// OverlapPolicy defines how to handle a rule firing while its previous firing is still running
type OverlapPolicy string

const (
	OverlapPolicySkip  OverlapPolicy = "Skip"
	OverlapPolicyAllow OverlapPolicy = "Allow"
)

// RetryPolicy defines retry behavior for rule actions
type RetryPolicy struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
}

// RuleConfig holds rule-level configuration
type RuleConfig struct {
	// Strict matches all four expression fields instead of hour and weekday only
	Strict        bool          `yaml:"strict" json:"strict"`
	OverlapPolicy OverlapPolicy `yaml:"overlap_policy" json:"overlap_policy"`
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`
	RetryPolicy   *RetryPolicy  `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
}

// SchedulerConfig holds scheduler-level configuration
type SchedulerConfig struct {
	FrameInterval        time.Duration            `yaml:"frame_interval"`
	MaxConcurrentActions int                      `yaml:"max_concurrent_actions"`
	ReaperInterval       time.Duration            `yaml:"reaper_interval"`
	StaleThreshold       time.Duration            `yaml:"stale_threshold"`
	Metrics              metrics.MetricsCollector `yaml:"-"`
	Logger               *zap.Logger              `yaml:"-"`
}

// FiringContext describes the in-world moment a rule action runs for
type FiringContext struct {
	FiringID   string
	RuleID     string
	RuleName   string
	Attempt    int
	Hour       int
	Weekday    int
	DaysPassed uint64
	Date       date.Date
}
