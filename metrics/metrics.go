package metrics

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting calendar metrics
type MetricsCollector interface {
	// Gauges - current state
	SetCurrentHour(hour int)
	SetDaysPassed(days uint64)
	SetRulesRegistered(count int)
	SetActionsInQueue(count int)

	// Counters - event tracking
	IncHourTransitions()
	IncDayTransitions()
	IncRuleFirings(ruleName, status string)
	IncActionAttempts(ruleName, status string)
	IncStaleFirings(ruleName string)

	// Histograms - duration tracking
	ObserveActionDuration(ruleName string, duration time.Duration)

	// Query methods for testing and monitoring
	GetCurrentHour() int
	GetDaysPassed() uint64
	GetRulesRegistered() int
	GetActionsInQueue() int
	GetHourTransitions() int64
	GetDayTransitions() int64
	GetRuleFirings(ruleName, status string) int64
	GetActionAttempts(ruleName, status string) int64
	GetStaleFirings(ruleName string) int64
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) SetCurrentHour(hour int)                                       {}
func (m *NoOpMetrics) SetDaysPassed(days uint64)                                     {}
func (m *NoOpMetrics) SetRulesRegistered(count int)                                  {}
func (m *NoOpMetrics) SetActionsInQueue(count int)                                   {}
func (m *NoOpMetrics) IncHourTransitions()                                           {}
func (m *NoOpMetrics) IncDayTransitions()                                            {}
func (m *NoOpMetrics) IncRuleFirings(ruleName, status string)                        {}
func (m *NoOpMetrics) IncActionAttempts(ruleName, status string)                     {}
func (m *NoOpMetrics) IncStaleFirings(ruleName string)                               {}
func (m *NoOpMetrics) ObserveActionDuration(ruleName string, duration time.Duration) {}
func (m *NoOpMetrics) GetCurrentHour() int                                           { return 0 }
func (m *NoOpMetrics) GetDaysPassed() uint64                                         { return 0 }
func (m *NoOpMetrics) GetRulesRegistered() int                                       { return 0 }
func (m *NoOpMetrics) GetActionsInQueue() int                                        { return 0 }
func (m *NoOpMetrics) GetHourTransitions() int64                                     { return 0 }
func (m *NoOpMetrics) GetDayTransitions() int64                                      { return 0 }
func (m *NoOpMetrics) GetRuleFirings(ruleName, status string) int64                  { return 0 }
func (m *NoOpMetrics) GetActionAttempts(ruleName, status string) int64               { return 0 }
func (m *NoOpMetrics) GetStaleFirings(ruleName string) int64                         { return 0 }

// InMemoryMetrics keeps metrics in process, for tests and the CLI summary
type InMemoryMetrics struct {
	mu sync.RWMutex

	// Gauges
	currentHour     int
	daysPassed      uint64
	rulesRegistered int
	actionsInQueue  int

	// Counters
	hourTransitions int64
	dayTransitions  int64
	ruleFirings     map[string]int64 // key: "rule:status"
	actionAttempts  map[string]int64 // key: "rule:status"
	staleFirings    map[string]int64 // key: "rule"

	actionDurations map[string][]time.Duration // key: "rule"
}

func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.clear()
	return m
}

func (m *InMemoryMetrics) clear() {
	m.currentHour = 0
	m.daysPassed = 0
	m.rulesRegistered = 0
	m.actionsInQueue = 0
	m.hourTransitions = 0
	m.dayTransitions = 0
	m.ruleFirings = make(map[string]int64)
	m.actionAttempts = make(map[string]int64)
	m.staleFirings = make(map[string]int64)
	m.actionDurations = make(map[string][]time.Duration)
}

// Gauges
func (m *InMemoryMetrics) SetCurrentHour(hour int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentHour = hour
}

func (m *InMemoryMetrics) SetDaysPassed(days uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daysPassed = days
}

func (m *InMemoryMetrics) SetRulesRegistered(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rulesRegistered = count
}

func (m *InMemoryMetrics) SetActionsInQueue(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionsInQueue = count
}

func (m *InMemoryMetrics) GetCurrentHour() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentHour
}

func (m *InMemoryMetrics) GetDaysPassed() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.daysPassed
}

func (m *InMemoryMetrics) GetRulesRegistered() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rulesRegistered
}

func (m *InMemoryMetrics) GetActionsInQueue() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actionsInQueue
}

// Counters
func (m *InMemoryMetrics) IncHourTransitions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hourTransitions++
}

func (m *InMemoryMetrics) IncDayTransitions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayTransitions++
}

func (m *InMemoryMetrics) IncRuleFirings(ruleName, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleFirings[ruleName+":"+status]++
}

func (m *InMemoryMetrics) IncActionAttempts(ruleName, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionAttempts[ruleName+":"+status]++
}

func (m *InMemoryMetrics) IncStaleFirings(ruleName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleFirings[ruleName]++
}

func (m *InMemoryMetrics) GetHourTransitions() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hourTransitions
}

func (m *InMemoryMetrics) GetDayTransitions() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dayTransitions
}

func (m *InMemoryMetrics) GetRuleFirings(ruleName, status string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ruleFirings[ruleName+":"+status]
}

func (m *InMemoryMetrics) GetActionAttempts(ruleName, status string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actionAttempts[ruleName+":"+status]
}

func (m *InMemoryMetrics) GetStaleFirings(ruleName string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staleFirings[ruleName]
}

// Histograms
func (m *InMemoryMetrics) ObserveActionDuration(ruleName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionDurations[ruleName] = append(m.actionDurations[ruleName], duration)
}

// GetActionDurations returns a copy of the observed durations for a rule
func (m *InMemoryMetrics) GetActionDurations(ruleName string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	durations := m.actionDurations[ruleName]
	result := make([]time.Duration, len(durations))
	copy(result, durations)
	return result
}

// Reset clears all metrics
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
}
