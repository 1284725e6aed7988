package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ahmed-com/pgcalendar"
	"github.com/ahmed-com/pgcalendar/date"
	"github.com/ahmed-com/pgcalendar/id"
	"github.com/ahmed-com/pgcalendar/metrics"
	"github.com/ahmed-com/pgcalendar/storage"
	"go.uber.org/zap"
)

// DefaultActionTimeout bounds a single action attempt when the rule sets none
const DefaultActionTimeout = 30 * time.Second

// Executor runs rule actions for recorded firings
type Executor struct {
	store   storage.Storage
	metrics metrics.MetricsCollector
	logger  *zap.Logger
}

// NewExecutor creates a new executor instance
func NewExecutor(store storage.Storage) *Executor {
	return &Executor{
		store:   store,
		metrics: metrics.NewNoOpMetrics(),
		logger:  zap.NewNop(),
	}
}

// SetMetrics sets the metrics collector for this executor
func (e *Executor) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		e.metrics = m
	}
}

// SetLogger sets the logger for this executor
func (e *Executor) SetLogger(l *zap.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Execute runs the rule action for a firing, retrying per the rule's retry
// policy. The firing and each attempt are written to storage as they
// progress. The returned error is the last attempt's error.
func (e *Executor) Execute(ctx context.Context, rule *pgcalendar.Rule, firing *storage.Firing) error {
	log := e.logger.With(
		zap.String("rule", rule.Name),
		zap.String("firing_id", firing.ID),
	)

	when, err := date.Parse(firing.Date)
	if err != nil {
		return e.finish(ctx, rule, firing, fmt.Errorf("firing %s: %w", firing.ID, err))
	}

	startTime := time.Now()
	firing.Status = storage.FiringStatusRunning
	firing.StartTime = &startTime
	if err := e.store.UpdateFiring(ctx, firing); err != nil {
		return fmt.Errorf("failed to mark firing running: %w", err)
	}

	policy := rule.Config.RetryPolicy
	if policy == nil {
		policy = &pgcalendar.RetryPolicy{}
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		fc := &pgcalendar.FiringContext{
			FiringID:   firing.ID,
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Attempt:    attempt,
			Hour:       firing.Hour,
			Weekday:    firing.Weekday,
			DaysPassed: firing.DaysPassed,
			Date:       when,
		}

		lastErr = e.attempt(ctx, rule, firing, fc)
		firing.Attempts = attempt + 1
		if lastErr == nil {
			break
		}
		log.Warn("rule action failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(backoff(policy, attempt)):
			continue
		}
		break
	}

	if lastErr != nil {
		log.Error("rule firing failed", zap.Int("attempts", firing.Attempts), zap.Error(lastErr))
	} else {
		log.Info("rule firing completed",
			zap.Int("attempts", firing.Attempts),
			zap.Duration("duration", time.Since(startTime)))
	}
	return e.finish(ctx, rule, firing, lastErr)
}

// finish records the terminal status of a firing
func (e *Executor) finish(ctx context.Context, rule *pgcalendar.Rule, firing *storage.Firing, runErr error) error {
	endTime := time.Now()
	firing.EndTime = &endTime
	if runErr != nil {
		firing.Status = storage.FiringStatusFailed
		firing.ErrorMessage = runErr.Error()
	} else {
		firing.Status = storage.FiringStatusCompleted
		firing.ErrorMessage = ""
	}

	// the firing outcome is recorded even when the caller's context is done
	if err := e.store.UpdateFiring(context.WithoutCancel(ctx), firing); err != nil {
		e.logger.Error("failed to record firing outcome",
			zap.String("firing_id", firing.ID),
			zap.Error(err))
	}
	e.metrics.IncRuleFirings(rule.Name, string(firing.Status))
	return runErr
}

// attempt runs the action once under the rule's timeout
func (e *Executor) attempt(ctx context.Context, rule *pgcalendar.Rule, firing *storage.Firing, fc *pgcalendar.FiringContext) error {
	record := &storage.Attempt{
		ID:            id.GenerateAttemptID(firing.ID, fc.Attempt),
		FiringID:      firing.ID,
		AttemptNumber: fc.Attempt,
		Status:        storage.AttemptStatusRunning,
		StartTime:     time.Now(),
	}
	if err := e.store.CreateAttempt(ctx, record); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	timeout := rule.Config.ActionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := runAction(actionCtx, rule.Action, fc)

	endTime := time.Now()
	record.EndTime = &endTime
	switch {
	case err == nil:
		record.Status = storage.AttemptStatusSuccess
	case errors.Is(actionCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		record.Status = storage.AttemptStatusTimeout
		err = fmt.Errorf("action timed out after %s: %w", timeout, err)
	case ctx.Err() != nil:
		record.Status = storage.AttemptStatusCanceled
	default:
		record.Status = storage.AttemptStatusFailed
	}
	if err != nil {
		record.ErrorMessage = err.Error()
	}

	if uerr := e.store.UpdateAttempt(context.WithoutCancel(ctx), record); uerr != nil {
		e.logger.Error("failed to record attempt outcome",
			zap.String("attempt_id", record.ID),
			zap.Error(uerr))
	}

	e.metrics.IncActionAttempts(rule.Name, string(record.Status))
	e.metrics.ObserveActionDuration(rule.Name, endTime.Sub(record.StartTime))
	return err
}

// runAction calls the action, converting a panic into an error
func runAction(ctx context.Context, action pgcalendar.ActionFunc, fc *pgcalendar.FiringContext) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(ctx, fc)
}

// backoff returns the wait before the retry following attempt
func backoff(policy *pgcalendar.RetryPolicy, attempt int) time.Duration {
	wait := policy.RetryInterval
	if policy.BackoffFactor > 1.0 {
		wait = time.Duration(float64(wait) * math.Pow(policy.BackoffFactor, float64(attempt)))
	}
	return wait
}
