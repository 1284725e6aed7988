package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahmed-com/pgcalendar"
	"github.com/ahmed-com/pgcalendar/concurrency"
	"github.com/ahmed-com/pgcalendar/executor"
	"github.com/ahmed-com/pgcalendar/id"
	"github.com/ahmed-com/pgcalendar/metrics"
	"github.com/ahmed-com/pgcalendar/recovery"
	"github.com/ahmed-com/pgcalendar/storage"
	"github.com/ahmed-com/pgcalendar/ticker"
	"go.uber.org/zap"
)

// DefaultFrameInterval is used when the config leaves FrameInterval unset
const DefaultFrameInterval = 50 * time.Millisecond

var (
	ErrRuleExists       = errors.New("rule already registered")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrAlreadyRunning   = errors.New("scheduler already running")
	ErrStopped          = errors.New("scheduler stopped")
	ErrShutdownTimeout  = errors.New("timed out waiting for rule actions")
	errCalendarRequired = errors.New("calendar is required")
)

// Handler receives every calendar transition together with the calendar
// state right after the step that produced it.
type Handler func(ev pgcalendar.Event, state pgcalendar.State)

// Scheduler owns one Calendar. All calendar access is serialized through it;
// each step reconciles the hour length, ticks the clock, publishes the
// resulting events and fires the rules due on every new hour.
type Scheduler struct {
	config  pgcalendar.SchedulerConfig
	store   storage.Storage
	exec    *executor.Executor
	pool    *concurrency.WorkerPool
	reaper  *recovery.Reaper
	metrics metrics.MetricsCollector
	logger  *zap.Logger

	cal   *pgcalendar.Calendar
	calMu sync.Mutex

	rules   map[string]*pgcalendar.Rule
	rulesMu sync.RWMutex

	subs   []Handler
	subsMu sync.RWMutex

	inflight   map[string]int
	inflightMu sync.Mutex

	ticker    ticker.Ticker
	running   bool
	stopped   bool
	runningMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler driving cal
func NewScheduler(cal *pgcalendar.Calendar, store storage.Storage, config pgcalendar.SchedulerConfig) (*Scheduler, error) {
	if cal == nil {
		return nil, errCalendarRequired
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := config.Metrics
	if mc == nil {
		mc = metrics.NewNoOpMetrics()
	}

	exec := executor.NewExecutor(store)
	exec.SetMetrics(mc)
	exec.SetLogger(logger.Named("executor"))

	pool := concurrency.NewWorkerPool(config.MaxConcurrentActions)
	pool.OnPanic(func(r any) {
		logger.Error("rule task panicked", zap.Any("panic", r))
	})

	reaper := recovery.NewReaper(store, config.ReaperInterval, config.StaleThreshold)
	reaper.SetMetrics(mc)
	reaper.SetLogger(logger.Named("reaper"))

	return &Scheduler{
		config:   config,
		store:    store,
		exec:     exec,
		pool:     pool,
		reaper:   reaper,
		metrics:  mc,
		logger:   logger,
		cal:      cal,
		rules:    make(map[string]*pgcalendar.Rule),
		inflight: make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// RegisterRule adds a rule to the scheduler
func (s *Scheduler) RegisterRule(rule *pgcalendar.Rule) error {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.Name)
	}
	s.rules[rule.ID] = rule
	s.metrics.SetRulesRegistered(len(s.rules))
	s.logger.Info("rule registered",
		zap.String("rule", rule.Name),
		zap.String("expression", rule.Expression.String()))
	return nil
}

// UnregisterRule removes a rule. Firings already submitted still run.
func (s *Scheduler) UnregisterRule(ruleID string) error {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()

	if _, exists := s.rules[ruleID]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	delete(s.rules, ruleID)
	s.metrics.SetRulesRegistered(len(s.rules))
	return nil
}

// GetRule returns a registered rule by ID
func (s *Scheduler) GetRule(ruleID string) (*pgcalendar.Rule, bool) {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	rule, exists := s.rules[ruleID]
	return rule, exists
}

// ListRules returns all registered rules ordered by name
func (s *Scheduler) ListRules() []*pgcalendar.Rule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	rules := make([]*pgcalendar.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// Subscribe registers a handler for calendar transitions. Handlers run on
// the stepping goroutine in emission order and must not block.
func (s *Scheduler) Subscribe(h Handler) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, h)
}

// Step advances the calendar by elapsed real time and returns the
// transitions it produced.
func (s *Scheduler) Step(elapsed time.Duration) ([]pgcalendar.Event, error) {
	s.calMu.Lock()
	events, err := s.cal.Step(elapsed)
	state := s.cal.Snapshot()
	s.calMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("calendar step: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	for _, ev := range events {
		switch e := ev.(type) {
		case pgcalendar.DayTransition:
			s.metrics.IncDayTransitions()
			s.logger.Debug("day transition",
				zap.Int("weekday", e.Weekday),
				zap.Uint64("days_passed", state.DaysPassed),
				zap.Stringer("date", state.Date))
		case pgcalendar.HourTransition:
			s.metrics.IncHourTransitions()
			s.logger.Debug("hour transition",
				zap.Int("hour", e.Hour),
				zap.String("time", pgcalendar.FormatTime(e.Hour)))
		}

		s.publish(ev, state)

		if _, ok := ev.(pgcalendar.HourTransition); ok {
			s.evaluate(state)
		}
	}

	s.metrics.SetCurrentHour(state.Hour)
	s.metrics.SetDaysPassed(state.DaysPassed)
	return events, nil
}

func (s *Scheduler) publish(ev pgcalendar.Event, state pgcalendar.State) {
	s.subsMu.RLock()
	subs := make([]Handler, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	for _, h := range subs {
		h(ev, state)
	}
}

// evaluate fires every rule due at state
func (s *Scheduler) evaluate(state pgcalendar.State) {
	for _, rule := range s.ListRules() {
		due, err := rule.Due(state)
		if err != nil {
			s.logger.Error("rule evaluation failed", zap.String("rule", rule.Name), zap.Error(err))
			continue
		}
		if due {
			s.fire(rule, state)
		}
	}
}

// fire records a firing for rule at state and hands it to the worker pool.
// Firing IDs are deterministic, so a moment already recorded is not fired
// twice.
func (s *Scheduler) fire(rule *pgcalendar.Rule, state pgcalendar.State) {
	now := time.Now()
	firing := &storage.Firing{
		ID:         id.GenerateFiringID(rule.ID, state.Epoch, state.DaysPassed, state.Hour),
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Epoch:      state.Epoch,
		DaysPassed: state.DaysPassed,
		Hour:       state.Hour,
		Weekday:    state.Weekday,
		Date:       state.Date.String(),
		Status:     storage.FiringStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := s.logger.With(zap.String("rule", rule.Name), zap.String("firing_id", firing.ID))

	if rule.Config.OverlapPolicy == pgcalendar.OverlapPolicySkip && s.busy(rule.ID) {
		firing.Status = storage.FiringStatusSkipped
		firing.ErrorMessage = "previous firing still running"
	}

	if err := s.store.CreateFiring(s.ctx, firing); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			log.Debug("firing already recorded")
			return
		}
		log.Error("failed to record firing", zap.Error(err))
		return
	}

	if firing.Status == storage.FiringStatusSkipped {
		s.metrics.IncRuleFirings(rule.Name, string(storage.FiringStatusSkipped))
		log.Info("rule firing skipped", zap.String("reason", firing.ErrorMessage))
		return
	}

	log.Info("rule fired",
		zap.Int("hour", state.Hour),
		zap.Int("weekday", state.Weekday),
		zap.Uint64("days_passed", state.DaysPassed))

	s.track(rule.ID, 1)
	err := s.pool.Submit(s.ctx, func() {
		defer s.track(rule.ID, -1)
		// outcome is recorded on the firing
		_ = s.exec.Execute(s.ctx, rule, firing)
	})
	if err != nil {
		s.track(rule.ID, -1)
		firing.Status = storage.FiringStatusFailed
		firing.ErrorMessage = fmt.Sprintf("not submitted: %v", err)
		if uerr := s.store.UpdateFiring(context.WithoutCancel(s.ctx), firing); uerr != nil {
			log.Error("failed to record firing outcome", zap.Error(uerr))
		}
		s.metrics.IncRuleFirings(rule.Name, string(storage.FiringStatusFailed))
		log.Warn("rule firing not submitted", zap.Error(err))
	}
	s.metrics.SetActionsInQueue(s.pool.QueueLength())
}

func (s *Scheduler) track(ruleID string, delta int) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight[ruleID] += delta
	if s.inflight[ruleID] <= 0 {
		delete(s.inflight, ruleID)
	}
}

func (s *Scheduler) busy(ruleID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return s.inflight[ruleID] > 0
}

// Update runs fn with exclusive access to the calendar. Changes to the hour
// length take effect on the next step.
func (s *Scheduler) Update(fn func(cal *pgcalendar.Calendar) error) error {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	return fn(s.cal)
}

// Reset restores the calendar to its start state and begins a new epoch
func (s *Scheduler) Reset() {
	s.calMu.Lock()
	s.cal.Reset()
	state := s.cal.Snapshot()
	s.calMu.Unlock()

	s.metrics.SetCurrentHour(state.Hour)
	s.metrics.SetDaysPassed(state.DaysPassed)
	s.logger.Info("calendar reset", zap.Uint64("epoch", state.Epoch))
}

// Snapshot returns a copy of the current calendar state
func (s *Scheduler) Snapshot() pgcalendar.State {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	return s.cal.Snapshot()
}

// SetTicker replaces the frame source used by Start. It has no effect once
// the scheduler is running.
func (s *Scheduler) SetTicker(t ticker.Ticker) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		s.ticker = t
	}
}

// Start drives the calendar from the ticker and starts the worker pool and
// the stale firing reaper.
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrAlreadyRunning
	}

	if s.ticker == nil {
		interval := s.config.FrameInterval
		if interval <= 0 {
			interval = DefaultFrameInterval
		}
		ft, err := ticker.NewFrameTicker(interval)
		if err != nil {
			return err
		}
		s.ticker = ft
	}

	s.reaper.Start(s.ctx)
	s.pool.Start()
	if err := s.ticker.Start(); err != nil {
		return fmt.Errorf("failed to start ticker: %w", err)
	}

	s.wg.Add(1)
	go s.watch(s.ticker)

	s.running = true
	s.logger.Info("scheduler started", zap.Int("rules", len(s.ListRules())))
	return nil
}

// watch steps the calendar on every frame
func (s *Scheduler) watch(t ticker.Ticker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-t.Channel():
			if _, err := s.Step(frame.Elapsed); err != nil {
				s.logger.Error("step failed", zap.Error(err))
			}
		}
	}
}

// Shutdown stops the ticker, cancels running actions and waits up to
// timeout for the worker pool to drain.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return nil
	}

	if err := s.ticker.Stop(); err != nil {
		s.logger.Warn("failed to stop ticker", zap.Error(err))
	}
	s.cancel()
	s.wg.Wait()
	s.reaper.Stop()

	done := make(chan struct{})
	go func() {
		s.pool.Stop()
		close(done)
	}()

	s.running = false
	s.stopped = true

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
