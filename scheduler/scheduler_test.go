package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmed-com/pgcalendar"
	"github.com/ahmed-com/pgcalendar/metrics"
	"github.com/ahmed-com/pgcalendar/storage"
	"github.com/ahmed-com/pgcalendar/storage/memory"
	"github.com/ahmed-com/pgcalendar/ticker"
)

func newTestScheduler(t *testing.T, startHour, startWeekday int) (*Scheduler, *memory.MemoryStorage, *metrics.InMemoryMetrics) {
	t.Helper()
	cal, err := pgcalendar.NewCalendar(true, startHour, startWeekday, time.Second, "2000-01-01")
	if err != nil {
		t.Fatalf("Failed to create calendar: %v", err)
	}
	store := memory.NewMemoryStorage()
	m := metrics.NewInMemoryMetrics()

	s, err := NewScheduler(cal, store, pgcalendar.SchedulerConfig{Metrics: m})
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	return s, store, m
}

func mustRule(t *testing.T, name, expr string, action pgcalendar.ActionFunc, cfg pgcalendar.RuleConfig) *pgcalendar.Rule {
	t.Helper()
	r, err := pgcalendar.NewRule(name, expr, action, cfg)
	if err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	return r
}

func TestNewSchedulerRequiresCalendar(t *testing.T) {
	if _, err := NewScheduler(nil, memory.NewMemoryStorage(), pgcalendar.SchedulerConfig{}); err == nil {
		t.Error("Expected error for nil calendar")
	}
}

func TestRuleRegistry(t *testing.T) {
	s, _, m := newTestScheduler(t, 6, 1)

	b := mustRule(t, "b-rule", "* * * *", nil, pgcalendar.RuleConfig{})
	a := mustRule(t, "a-rule", "9 * * *", nil, pgcalendar.RuleConfig{})

	if err := s.RegisterRule(b); err != nil {
		t.Fatalf("RegisterRule failed: %v", err)
	}
	if err := s.RegisterRule(a); err != nil {
		t.Fatalf("RegisterRule failed: %v", err)
	}
	if err := s.RegisterRule(a); !errors.Is(err, ErrRuleExists) {
		t.Errorf("Expected ErrRuleExists, got %v", err)
	}

	rules := s.ListRules()
	if len(rules) != 2 || rules[0].Name != "a-rule" || rules[1].Name != "b-rule" {
		t.Errorf("Expected rules ordered by name, got %v", rules)
	}
	if got := m.GetRulesRegistered(); got != 2 {
		t.Errorf("Expected 2 registered rules, got %d", got)
	}

	if _, ok := s.GetRule(a.ID); !ok {
		t.Error("GetRule should find a registered rule")
	}
	if err := s.UnregisterRule(a.ID); err != nil {
		t.Fatalf("UnregisterRule failed: %v", err)
	}
	if err := s.UnregisterRule(a.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Expected ErrRuleNotFound, got %v", err)
	}
	if _, ok := s.GetRule(a.ID); ok {
		t.Error("GetRule should not find an unregistered rule")
	}
}

func TestStepPublishesDayBeforeHour(t *testing.T) {
	s, _, m := newTestScheduler(t, 23, 7)

	var got []pgcalendar.Event
	var states []pgcalendar.State
	s.Subscribe(func(ev pgcalendar.Event, st pgcalendar.State) {
		got = append(got, ev)
		states = append(states, st)
	})

	events, err := s.Step(time.Second)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if len(events) != 2 || len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d returned and %d published", len(events), len(got))
	}
	if got[0] != (pgcalendar.DayTransition{Weekday: 1}) {
		t.Errorf("Expected DayTransition{1} first, got %#v", got[0])
	}
	if got[1] != (pgcalendar.HourTransition{Hour: 0}) {
		t.Errorf("Expected HourTransition{0} second, got %#v", got[1])
	}
	if states[1].DaysPassed != 1 || states[1].Date.String() != "2000-01-02" {
		t.Errorf("Unexpected state after midnight: %+v", states[1])
	}

	if m.GetDayTransitions() != 1 || m.GetHourTransitions() != 1 {
		t.Errorf("Expected one day and one hour transition, got %d and %d",
			m.GetDayTransitions(), m.GetHourTransitions())
	}

	// a partial hour emits nothing
	events, err = s.Step(500 * time.Millisecond)
	if err != nil || events != nil {
		t.Errorf("Expected no events for a partial hour, got %v, %v", events, err)
	}
}

func TestStepFiresDueRules(t *testing.T) {
	s, store, m := newTestScheduler(t, 8, 1)

	var calls []pgcalendar.FiringContext
	rule := mustRule(t, "workday", "9-17 * * 1;2;3;4;5", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		calls = append(calls, *fc)
		return nil
	}, pgcalendar.RuleConfig{})
	if err := s.RegisterRule(rule); err != nil {
		t.Fatalf("RegisterRule failed: %v", err)
	}

	// before Start actions run synchronously
	for i := 0; i < 3; i++ {
		if _, err := s.Step(time.Second); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	if len(calls) != 3 {
		t.Fatalf("Expected 3 firings (hours 9, 10, 11), got %d", len(calls))
	}
	for i, fc := range calls {
		if fc.Hour != 9+i {
			t.Errorf("Firing %d: expected hour %d, got %d", i, 9+i, fc.Hour)
		}
		if fc.Weekday != 1 {
			t.Errorf("Firing %d: expected weekday 1, got %d", i, fc.Weekday)
		}
	}

	firings, err := store.ListFiringsByRuleID(context.Background(), rule.ID)
	if err != nil {
		t.Fatalf("ListFiringsByRuleID failed: %v", err)
	}
	if len(firings) != 3 {
		t.Fatalf("Expected 3 recorded firings, got %d", len(firings))
	}
	for _, f := range firings {
		if f.Status != storage.FiringStatusCompleted {
			t.Errorf("Firing %s: expected Completed, got %s", f.ID, f.Status)
		}
	}
	if got := m.GetRuleFirings("workday", "Completed"); got != 3 {
		t.Errorf("Expected 3 completed firings in metrics, got %d", got)
	}
}

func TestStepSkipsNonMatchingHours(t *testing.T) {
	s, _, _ := newTestScheduler(t, 17, 6)

	var calls int
	rule := mustRule(t, "workday", "9-17 * * 1;2;3;4;5", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		calls++
		return nil
	}, pgcalendar.RuleConfig{})
	s.RegisterRule(rule)

	for i := 0; i < 24; i++ {
		s.Step(time.Second)
	}
	if calls != 0 {
		t.Errorf("Saturday should never fire a weekday rule, got %d calls", calls)
	}
}

func TestStepFiringIsIdempotentWithinEpoch(t *testing.T) {
	s, store, _ := newTestScheduler(t, 8, 1)

	var calls int
	rule := mustRule(t, "nine", "9 * * *", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		calls++
		return nil
	}, pgcalendar.RuleConfig{})
	s.RegisterRule(rule)

	s.Step(time.Second)

	// rewinding the hour revisits the same moment
	if err := s.Update(func(cal *pgcalendar.Calendar) error { return cal.SetCurrentHour(8) }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	s.Step(time.Second)
	if calls != 1 {
		t.Errorf("Expected the repeated moment to fire once, got %d", calls)
	}

	// a reset starts a new epoch, so the same moment fires again
	s.Reset()
	s.Update(func(cal *pgcalendar.Calendar) error { return cal.SetCurrentHour(8) })
	s.Step(time.Second)
	if calls != 2 {
		t.Errorf("Expected a firing in the new epoch, got %d calls", calls)
	}

	firings, _ := store.ListFiringsByRuleID(context.Background(), rule.ID)
	if len(firings) != 2 {
		t.Errorf("Expected 2 recorded firings, got %d", len(firings))
	}
	if firings[0].Epoch == firings[1].Epoch {
		t.Error("Firings should belong to different epochs")
	}
}

func TestStepStrictRule(t *testing.T) {
	s, _, _ := newTestScheduler(t, 8, 1)

	var dates []string
	rule := mustRule(t, "payday", "9 2 * *", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		dates = append(dates, fc.Date.String())
		return nil
	}, pgcalendar.RuleConfig{Strict: true})
	s.RegisterRule(rule)

	// run two in-world days: 2000-01-01 and 2000-01-02
	for i := 0; i < 48; i++ {
		s.Step(time.Second)
	}
	if len(dates) != 1 || dates[0] != "2000-01-02" {
		t.Errorf("Expected a single firing on 2000-01-02, got %v", dates)
	}
}

func TestStepInactiveRule(t *testing.T) {
	s, _, _ := newTestScheduler(t, 8, 1)

	var calls int
	rule := mustRule(t, "any", "* * * *", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		calls++
		return nil
	}, pgcalendar.RuleConfig{})
	rule.SetActive(false)
	s.RegisterRule(rule)

	s.Step(time.Second)
	if calls != 0 {
		t.Errorf("Inactive rule should not fire, got %d calls", calls)
	}
}

func TestStepReconcilesHourLength(t *testing.T) {
	s, _, _ := newTestScheduler(t, 8, 1)

	s.Step(500 * time.Millisecond)
	if err := s.Update(func(cal *pgcalendar.Calendar) error { return cal.SetHourLength(4 * time.Second) }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// half of the new 4s hour has already elapsed
	events, err := s.Step(2 * time.Second)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected the rescaled hour to complete, got %d events", len(events))
	}
	if got := s.Snapshot().HourLength; got != 4*time.Second {
		t.Errorf("Expected hour length 4s, got %v", got)
	}
}

func TestOverlapSkip(t *testing.T) {
	s, store, m := newTestScheduler(t, 8, 1)
	s.SetTicker(ticker.NewManualTicker(time.Now()))

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	rule := mustRule(t, "slow", "* * * *", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, pgcalendar.RuleConfig{OverlapPolicy: pgcalendar.OverlapPolicySkip})
	s.RegisterRule(rule)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Step(time.Second)
	<-started
	s.Step(time.Second)
	close(release)

	if err := s.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	firings, _ := store.ListFiringsByRuleID(context.Background(), rule.ID)
	if len(firings) != 2 {
		t.Fatalf("Expected 2 recorded firings, got %d", len(firings))
	}
	if firings[0].Status != storage.FiringStatusCompleted {
		t.Errorf("Expected first firing Completed, got %s", firings[0].Status)
	}
	if firings[1].Status != storage.FiringStatusSkipped {
		t.Errorf("Expected second firing Skipped, got %s", firings[1].Status)
	}
	if got := m.GetRuleFirings("slow", "Skipped"); got != 1 {
		t.Errorf("Expected 1 skipped firing in metrics, got %d", got)
	}
}

func TestStartDrivesCalendarFromTicker(t *testing.T) {
	s, _, _ := newTestScheduler(t, 6, 1)
	mt := ticker.NewManualTicker(time.Now())
	s.SetTicker(mt)

	var mu sync.Mutex
	var hours []int
	hourCh := make(chan struct{}, 8)
	s.Subscribe(func(ev pgcalendar.Event, st pgcalendar.State) {
		if h, ok := ev.(pgcalendar.HourTransition); ok {
			mu.Lock()
			hours = append(hours, h.Hour)
			mu.Unlock()
			hourCh <- struct{}{}
		}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	mt.Advance(time.Second)
	mt.Advance(time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-hourCh:
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for an hour transition")
		}
	}

	if err := s.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after shutdown, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hours) != 2 || hours[0] != 7 || hours[1] != 8 {
		t.Errorf("Expected hours [7 8], got %v", hours)
	}
}

func TestStepAfterShutdownMarksFiringFailed(t *testing.T) {
	s, store, _ := newTestScheduler(t, 8, 1)
	s.SetTicker(ticker.NewManualTicker(time.Now()))

	var calls int32
	rule := mustRule(t, "any", "* * * *", func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, pgcalendar.RuleConfig{})
	s.RegisterRule(rule)

	s.Start()
	s.Shutdown(time.Second)

	s.Step(time.Second)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("Action should not run after shutdown")
	}
	firings, _ := store.ListFiringsByRuleID(context.Background(), rule.ID)
	if len(firings) != 1 || firings[0].Status != storage.FiringStatusFailed {
		t.Errorf("Expected one Failed firing, got %+v", firings)
	}
}
