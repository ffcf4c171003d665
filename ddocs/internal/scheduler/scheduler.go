package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/common/middleware"
	"github.com/fileverse/ddocs-stack/ddocs/internal/metrics"
)

// Trigger names and the cron expressions deployments schedule them with.
const (
	TriggerSubmit  = "submit"
	TriggerResolve = "resolve"

	CronSubmit  = "*/2 * * * *"
	CronResolve = "*/1 * * * *"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger")
	// ErrTriggerBusy means the trigger's previous run has not finished.
	ErrTriggerBusy = errors.New("trigger already running")
)

type trigger struct {
	name     string
	cron     string
	interval time.Duration
	run      func(context.Context) RunReport
	running  sync.Mutex
}

// Scheduler fires the submit and resolve triggers on their intervals and
// on demand. A trigger never overlaps itself; the two triggers run
// independently of each other.
type Scheduler struct {
	engine   *Engine
	triggers map[string]*trigger
	logger   *logging.Logger
	stop     chan struct{}
	stopped  chan struct{}
}

// NewScheduler creates a scheduler for engine.
func NewScheduler(engine *Engine, submitEvery, resolveEvery time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scheduler{
		engine:  engine,
		logger:  logger,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.triggers = map[string]*trigger{
		TriggerSubmit:  {name: TriggerSubmit, cron: CronSubmit, interval: submitEvery, run: engine.SubmitPending},
		TriggerResolve: {name: TriggerResolve, cron: CronResolve, interval: resolveEvery, run: engine.ResolveSubmitted},
	}
	return s
}

// Triggers returns the trigger names, sorted.
func (s *Scheduler) Triggers() []string {
	names := make([]string, 0, len(s.triggers))
	for name := range s.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) lookup(nameOrCron string) (*trigger, bool) {
	if t, ok := s.triggers[nameOrCron]; ok {
		return t, true
	}
	for _, t := range s.triggers {
		if t.cron == nameOrCron {
			return t, true
		}
	}
	return nil, false
}

// Fire runs the trigger identified by name or cron expression now.
func (s *Scheduler) Fire(ctx context.Context, nameOrCron string) (RunReport, error) {
	t, ok := s.lookup(nameOrCron)
	if !ok {
		return RunReport{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, nameOrCron)
	}
	if !t.running.TryLock() {
		metrics.SyncRunsSkipped.WithLabelValues(t.name).Inc()
		s.logger.WarnContext(ctx, "skipping trigger, previous run still in flight", logging.Trigger(t.name))
		return RunReport{}, fmt.Errorf("%w: %s", ErrTriggerBusy, t.name)
	}
	defer t.running.Unlock()

	if middleware.GetRequestID(ctx) == "" {
		ctx = middleware.WithRequestID(ctx, uuid.NewString())
	}
	report := t.run(ctx)
	metrics.SyncRunDuration.WithLabelValues(t.name).Observe(report.Duration.Seconds())
	s.engine.RefreshGauges(ctx)
	return report, nil
}

// Start runs every trigger on its interval until Stop is called or ctx is
// done. Each trigger fires once immediately. Call Start in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	var wg sync.WaitGroup
	for _, t := range s.triggers {
		if t.interval <= 0 {
			s.logger.Warn("trigger disabled, no interval", logging.Trigger(t.name))
			continue
		}
		wg.Add(1)
		go func(t *trigger) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	s.logger.Info("sync scheduler started", slog.Int("triggers", len(s.triggers)))
	wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t *trigger) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	s.fireLogged(ctx, t.name)
	for {
		select {
		case <-ticker.C:
			s.fireLogged(ctx, t.name)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) fireLogged(ctx context.Context, name string) {
	if _, err := s.Fire(ctx, name); err != nil && !errors.Is(err, ErrTriggerBusy) {
		s.logger.ErrorContext(ctx, "trigger failed", logging.Trigger(name), logging.Error(err))
	}
}

// Stop signals the loops to exit and waits for in-flight runs to finish.
// It must only be called after Start.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}
