package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/nudge/internal/metrics"
)

// DefaultSpec runs the sweep twice a minute.
const DefaultSpec = "@every 30s"

// Sweeper drives FireDue from a cron schedule. Overlapping ticks are skipped
// rather than queued.
type Sweeper struct {
	mu        sync.Mutex
	cron      *cron.Cron
	scheduler *Scheduler
	spec      string
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
	started   bool
}

func NewSweeper(s *Scheduler, spec string, logger *slog.Logger) *Sweeper {
	if spec == "" {
		spec = DefaultSpec
	}
	cl := cronLogger{logger: logger}
	return &Sweeper{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		scheduler: s,
		spec:      spec,
		timeout:   2 * time.Minute,
		now:       time.Now,
		logger:    logger,
	}
}

// AddJob schedules an extra housekeeping job on the same cron.
func (sw *Sweeper) AddJob(spec string, fn func()) (cron.EntryID, error) {
	id, err := sw.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("add cron job %q: %w", spec, err)
	}
	return id, nil
}

// Start registers the sweep and starts the cron.
func (sw *Sweeper) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.started {
		return nil
	}

	if _, err := sw.cron.AddFunc(sw.spec, sw.tick); err != nil {
		return fmt.Errorf("add sweep job %q: %w", sw.spec, err)
	}
	sw.cron.Start()
	sw.started = true
	sw.logger.Info("sweeper started", "spec", sw.spec)
	return nil
}

// Stop stops the cron and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.started {
		return
	}
	ctx := sw.cron.Stop()
	<-ctx.Done()
	sw.started = false
	sw.logger.Info("sweeper stopped")
}

// RunOnce sweeps immediately.
func (sw *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	res, err := sw.scheduler.FireDue(ctx, sw.now().UTC())
	metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	return res, err
}

func (sw *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sw.timeout)
	defer cancel()

	res, err := sw.RunOnce(ctx)
	if err != nil {
		sw.logger.Error("sweep", "error", err)
		return
	}
	if res.Fired > 0 || res.Lost > 0 || res.Failed > 0 {
		sw.logger.Info("sweep", "fired", res.Fired, "skipped", res.Skipped, "lost", res.Lost, "failed", res.Failed)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
