package pgcalendar

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahmed-com/pgcalendar/cron"
	"github.com/ahmed-com/pgcalendar/id"
)

// ActionFunc is run when a rule fires
type ActionFunc func(ctx context.Context, firing *FiringContext) error

// Rule is a named recurring schedule registered against a calendar
type Rule struct {
	ID         string
	Name       string
	Expression *cron.Expression
	Config     RuleConfig
	Action     ActionFunc
	Active     bool

	mu sync.RWMutex
}

// NewRule parses expr and creates an active rule with a deterministic ID
func NewRule(name, expr string, action ActionFunc, config RuleConfig) (*Rule, error) {
	parsed, err := cron.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}

	if config.OverlapPolicy == "" {
		config.OverlapPolicy = OverlapPolicyAllow
	}

	return &Rule{
		ID:         id.GenerateRuleID(name),
		Name:       name,
		Expression: parsed,
		Config:     config,
		Action:     action,
		Active:     true,
	}, nil
}

// Due reports whether the rule matches the given state. Strict rules check
// all four fields; others check hour and weekday only.
func (r *Rule) Due(s State) (bool, error) {
	if !r.IsActive() {
		return false, nil
	}
	if r.Config.Strict {
		return r.Expression.MatchesAll(s.Hour, s.Date.Day(), s.Date.Month(), s.Weekday)
	}
	return r.Expression.Matches(s.Hour, s.Weekday)
}

// SetActive enables or disables the rule
func (r *Rule) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Active = active
}

// IsActive reports whether the rule is enabled
func (r *Rule) IsActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Active
}
