package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by create operations for an existing ID
	ErrAlreadyExists = errors.New("already exists")
)

// Storage is the firing journal: a record of every rule firing and its
// action attempts during the life of a scheduler.
type Storage interface {
	// Firing operations
	CreateFiring(ctx context.Context, firing *Firing) error
	GetFiring(ctx context.Context, firingID string) (*Firing, error)
	UpdateFiring(ctx context.Context, firing *Firing) error
	DeleteFiring(ctx context.Context, firingID string) error
	ListFiringsByRuleID(ctx context.Context, ruleID string) ([]*Firing, error)
	ListRunningFirings(ctx context.Context) ([]*Firing, error)
	ListStaleFirings(ctx context.Context, threshold time.Duration) ([]*Firing, error)

	// Attempt operations
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	UpdateAttempt(ctx context.Context, attempt *Attempt) error
	ListAttemptsByFiringID(ctx context.Context, firingID string) ([]*Attempt, error)

	// Close closes the storage connection
	Close() error
}

// FiringStatus represents the status of a rule firing
type FiringStatus string

const (
	FiringStatusPending     FiringStatus = "Pending"
	FiringStatusRunning     FiringStatus = "Running"
	FiringStatusCompleted   FiringStatus = "Completed"
	FiringStatusFailed      FiringStatus = "Failed"
	FiringStatusSkipped     FiringStatus = "Skipped"
	FiringStatusFailedStale FiringStatus = "Failed_Stale"
)

// AttemptStatus represents the status of a single action attempt
type AttemptStatus string

const (
	AttemptStatusRunning  AttemptStatus = "Running"
	AttemptStatusSuccess  AttemptStatus = "Success"
	AttemptStatusFailed   AttemptStatus = "Failed"
	AttemptStatusTimeout  AttemptStatus = "Timeout"
	AttemptStatusCanceled AttemptStatus = "Canceled"
)

// Firing records one rule match at an in-world moment
type Firing struct {
	ID           string       `json:"id"`
	RuleID       string       `json:"rule_id"`
	RuleName     string       `json:"rule_name"`
	Epoch        uint64       `json:"epoch"`
	DaysPassed   uint64       `json:"days_passed"`
	Hour         int          `json:"hour"`
	Weekday      int          `json:"weekday"`
	Date         string       `json:"date"`
	Status       FiringStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	StartTime    *time.Time   `json:"start_time,omitempty"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Attempt records one execution of a rule action
type Attempt struct {
	ID            string        `json:"id"`
	FiringID      string        `json:"firing_id"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// IsStale reports whether a running firing started before now-threshold
func (f *Firing) IsStale(now time.Time, threshold time.Duration) bool {
	return f.Status == FiringStatusRunning && f.StartTime != nil && f.StartTime.Before(now.Add(-threshold))
}
