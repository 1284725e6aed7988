package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pgcalendar"

// OTelMetrics exports calendar metrics through an OpenTelemetry meter. It
// also keeps in-memory totals so the query methods keep working.
type OTelMetrics struct {
	*InMemoryMetrics

	currentHour     metric.Int64Gauge
	daysPassed      metric.Int64Gauge
	rulesRegistered metric.Int64Gauge
	actionsInQueue  metric.Int64Gauge
	hourTransitions metric.Int64Counter
	dayTransitions  metric.Int64Counter
	ruleFirings     metric.Int64Counter
	actionAttempts  metric.Int64Counter
	staleFirings    metric.Int64Counter
	actionDuration  metric.Float64Histogram
}

var _ MetricsCollector = (*OTelMetrics)(nil)

// NewOTelMetrics creates the instruments on provider, or on the global
// provider when nil.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &OTelMetrics{InMemoryMetrics: NewInMemoryMetrics()}

	gauges := []struct {
		dst  *metric.Int64Gauge
		name string
		desc string
		unit string
	}{
		{&m.currentHour, "calendar.hour", "Current in-world hour", "{hour}"},
		{&m.daysPassed, "calendar.days_passed", "In-world days since start", "{day}"},
		{&m.rulesRegistered, "calendar.rules.registered", "Number of registered rules", "{rule}"},
		{&m.actionsInQueue, "calendar.actions.queued", "Rule actions waiting for a worker", "{action}"},
	}
	for _, g := range gauges {
		inst, err := meter.Int64Gauge(g.name, metric.WithDescription(g.desc), metric.WithUnit(g.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s gauge: %w", g.name, err)
		}
		*g.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.hourTransitions, "calendar.transitions.hour", "Completed in-world hours", "{hour}"},
		{&m.dayTransitions, "calendar.transitions.day", "Completed in-world days", "{day}"},
		{&m.ruleFirings, "calendar.rule.firings", "Rule firings by outcome", "{firing}"},
		{&m.actionAttempts, "calendar.action.attempts", "Rule action attempts by outcome", "{attempt}"},
		{&m.staleFirings, "calendar.rule.firings.stale", "Firings marked stale by the reaper", "{firing}"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = inst
	}

	var err error
	m.actionDuration, err = meter.Float64Histogram(
		"calendar.action.duration",
		metric.WithDescription("Wall time of a rule action attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar.action.duration histogram: %w", err)
	}

	return m, nil
}

func ruleAttrs(ruleName string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("rule", ruleName))
}

func ruleStatusAttrs(ruleName, status string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("rule", ruleName), attribute.String("status", status))
}

func (m *OTelMetrics) SetCurrentHour(hour int) {
	m.InMemoryMetrics.SetCurrentHour(hour)
	m.currentHour.Record(context.Background(), int64(hour))
}

func (m *OTelMetrics) SetDaysPassed(days uint64) {
	m.InMemoryMetrics.SetDaysPassed(days)
	m.daysPassed.Record(context.Background(), int64(days))
}

func (m *OTelMetrics) SetRulesRegistered(count int) {
	m.InMemoryMetrics.SetRulesRegistered(count)
	m.rulesRegistered.Record(context.Background(), int64(count))
}

func (m *OTelMetrics) SetActionsInQueue(count int) {
	m.InMemoryMetrics.SetActionsInQueue(count)
	m.actionsInQueue.Record(context.Background(), int64(count))
}

func (m *OTelMetrics) IncHourTransitions() {
	m.InMemoryMetrics.IncHourTransitions()
	m.hourTransitions.Add(context.Background(), 1)
}

func (m *OTelMetrics) IncDayTransitions() {
	m.InMemoryMetrics.IncDayTransitions()
	m.dayTransitions.Add(context.Background(), 1)
}

func (m *OTelMetrics) IncRuleFirings(ruleName, status string) {
	m.InMemoryMetrics.IncRuleFirings(ruleName, status)
	m.ruleFirings.Add(context.Background(), 1, ruleStatusAttrs(ruleName, status))
}

func (m *OTelMetrics) IncActionAttempts(ruleName, status string) {
	m.InMemoryMetrics.IncActionAttempts(ruleName, status)
	m.actionAttempts.Add(context.Background(), 1, ruleStatusAttrs(ruleName, status))
}

func (m *OTelMetrics) IncStaleFirings(ruleName string) {
	m.InMemoryMetrics.IncStaleFirings(ruleName)
	m.staleFirings.Add(context.Background(), 1, ruleAttrs(ruleName))
}

func (m *OTelMetrics) ObserveActionDuration(ruleName string, duration time.Duration) {
	m.InMemoryMetrics.ObserveActionDuration(ruleName, duration)
	m.actionDuration.Record(context.Background(), duration.Seconds(), ruleAttrs(ruleName))
}
