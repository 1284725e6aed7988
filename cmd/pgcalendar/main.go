// pgcalendar runs a virtual calendar in real time and fires the rules from
// its configuration as in-world hours pass.
//
// Usage:
//
//	pgcalendar [--config calendar.yaml] [--run-for 1m] [--log-level debug]
//	pgcalendar --explain "9-17 * * 1;2;3;4;5"
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmed-com/pgcalendar"
	"github.com/ahmed-com/pgcalendar/metrics"
	"github.com/ahmed-com/pgcalendar/scheduler"
	"github.com/ahmed-com/pgcalendar/storage"
	badgerstore "github.com/ahmed-com/pgcalendar/storage/badger"
	"github.com/ahmed-com/pgcalendar/storage/memory"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		logLevel   string
		dev        bool
		runFor     time.Duration
		explain    string
	)

	flagSet := pflag.NewFlagSet("pgcalendar", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a .yaml or .jsonc config file (default: built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flagSet.BoolVar(&dev, "dev", false, "human-readable development logging")
	flagSet.DurationVar(&runFor, "run-for", 0, "stop after this much real time (default: until interrupted)")
	flagSet.StringVar(&explain, "explain", "", "describe a schedule expression and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := pgcalendar.DefaultConfig()
	if configPath != "" {
		loaded, err := pgcalendar.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if explain != "" {
		return explainExpression(os.Stdout, explain, cfg, time.Now())
	}

	logger, err := newLogger(cfg.LogLevel, dev)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg pgcalendar.Config, logger *zap.Logger) error {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	cal, err := cfg.NewCalendar()
	if err != nil {
		return err
	}

	m, err := metrics.NewOTelMetrics(nil)
	if err != nil {
		return err
	}
	schedCfg := cfg.Scheduler
	schedCfg.Metrics = m
	schedCfg.Logger = logger

	sched, err := scheduler.NewScheduler(cal, store, schedCfg)
	if err != nil {
		return err
	}

	rules, err := cfg.BuildRules(logAction(logger))
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := sched.RegisterRule(r); err != nil {
			return err
		}
	}

	sched.Subscribe(func(ev pgcalendar.Event, st pgcalendar.State) {
		if day, ok := ev.(pgcalendar.DayTransition); ok {
			name, _ := pgcalendar.WeekdayName(day.Weekday)
			logger.Info("new day",
				zap.String("weekday", name),
				zap.Stringer("date", st.Date),
				zap.Uint64("days_passed", st.DaysPassed))
		}
	})

	if err := sched.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	if err := sched.Shutdown(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	st := sched.Snapshot()
	name, _ := pgcalendar.WeekdayName(st.Weekday)
	logger.Info("calendar stopped",
		zap.String("time", pgcalendar.FormatTime(st.Hour)),
		zap.String("weekday", name),
		zap.Stringer("date", st.Date),
		zap.Uint64("days_passed", st.DaysPassed),
		zap.Int64("hours", m.GetHourTransitions()),
		zap.Int64("days", m.GetDayTransitions()))
	return nil
}

// logAction is bound to every configured rule
func logAction(logger *zap.Logger) pgcalendar.ActionFunc {
	return func(ctx context.Context, fc *pgcalendar.FiringContext) error {
		name, _ := pgcalendar.WeekdayName(fc.Weekday)
		logger.Info("rule action",
			zap.String("rule", fc.RuleName),
			zap.String("time", pgcalendar.FormatTime(fc.Hour)),
			zap.String("weekday", name),
			zap.Stringer("date", fc.Date))
		return nil
	}
}

func openStorage(cfg pgcalendar.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case pgcalendar.StorageBadger:
		return badgerstore.NewBadgerStorage(cfg.Path)
	case pgcalendar.StorageMemory, "":
		return memory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
