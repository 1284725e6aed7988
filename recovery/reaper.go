package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/ahmed-com/pgcalendar/metrics"
	"github.com/ahmed-com/pgcalendar/storage"
	"go.uber.org/zap"
)

const (
	DefaultReapInterval   = 5 * time.Minute
	DefaultStaleThreshold = time.Hour
)

// Reaper periodically marks firings stuck in Running as Failed_Stale
type Reaper struct {
	store     storage.Storage
	interval  time.Duration
	threshold time.Duration
	metrics   metrics.MetricsCollector
	logger    *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReaper creates a new reaper instance. Zero durations take the defaults.
func NewReaper(store storage.Storage, interval, threshold time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	return &Reaper{
		store:     store,
		interval:  interval,
		threshold: threshold,
		metrics:   metrics.NewNoOpMetrics(),
		logger:    zap.NewNop(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector
func (r *Reaper) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		r.metrics = m
	}
}

// SetLogger sets the logger
func (r *Reaper) SetLogger(l *zap.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Start starts the reaper goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.Reap(ctx); err != nil {
				r.logger.Warn("stale firing scan failed", zap.Error(err))
			}
		}
	}
}

// Reap marks every stale firing as Failed_Stale and returns how many it marked
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	stale, err := r.store.ListStaleFirings(ctx, r.threshold)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, f := range stale {
		now := time.Now()
		f.Status = storage.FiringStatusFailedStale
		f.EndTime = &now
		f.ErrorMessage = "firing exceeded stale threshold " + r.threshold.String()
		if err := r.store.UpdateFiring(ctx, f); err != nil {
			r.logger.Warn("failed to mark firing stale",
				zap.String("firing_id", f.ID),
				zap.Error(err))
			continue
		}
		reaped++
		r.metrics.IncStaleFirings(f.RuleName)
		r.logger.Warn("firing marked stale",
			zap.String("firing_id", f.ID),
			zap.String("rule", f.RuleName),
			zap.Timep("started", f.StartTime))
	}
	return reaped, nil
}

// Stop stops the reaper and waits for the loop to exit. It must only be
// called after Start.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}
