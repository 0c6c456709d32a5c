// Package scheduler triggers recurring passes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	applog "finman/internal/log"
	"finman/internal/services"
)

// DefaultSpec runs the pass daily at 00:05.
const DefaultSpec = "5 0 * * *"

// ErrPassInFlight is returned by RunOnce when another pass has not finished yet.
var ErrPassInFlight = errors.New("recurring pass already in flight")

// PassRunner executes one recurring pass. *services.RecurringProcessor implements it.
type PassRunner interface {
	RunPass(ctx context.Context) (services.PassSummary, error)
}

// Config controls when and how passes run.
type Config struct {
	// Spec is a standard five-field cron expression. Empty means DefaultSpec.
	Spec string
	// Location is the time zone Spec is evaluated in. Nil means time.Local.
	Location *time.Location
	// RunOnStartup triggers one pass as soon as Start is called.
	RunOnStartup bool
	// PassTimeout bounds a single pass. Zero means unbounded.
	PassTimeout time.Duration
}

// Scheduler owns the cron trigger and guarantees at most one pass runs at a time.
// Triggers that fire while a pass is running are skipped, not queued.
type Scheduler struct {
	runner  PassRunner
	cfg     Config
	cron    *cron.Cron
	entryID cron.EntryID
	logger  *applog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

func New(runner PassRunner, cfg Config) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a pass runner")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	logger := applog.NewComponent(applog.ComponentScheduler)
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
	}

	id, err := s.cron.AddFunc(cfg.Spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	s.entryID = id

	return s, nil
}

// Start begins firing passes on the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()

	s.logger.Info("Recurring scheduler started",
		"schedule", s.cfg.Spec,
		"timezone", s.cfg.Location.String(),
		"next_run", s.Next().Format(time.RFC3339))

	if s.cfg.RunOnStartup {
		s.TriggerNow()
	}
}

// Stop halts the schedule and waits for an in-flight pass to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Recurring scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Recurring scheduler stop timed out with a pass in flight")
		return ctx.Err()
	}
}

// TriggerNow starts a pass in the background unless one is already running.
func (s *Scheduler) TriggerNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTriggered()
	}()
}

// Next returns the next scheduled run. It is zero until Start is called.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// RunOnce runs a pass synchronously and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (services.PassSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return services.PassSummary{}, ErrPassInFlight
	}
	defer s.running.Store(false)

	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}

	summary, err := s.runner.RunPass(ctx)
	s.logOutcome(ctx, summary, err)
	return summary, err
}

// trigger is the cron job.
func (s *Scheduler) trigger() {
	s.wg.Add(1)
	defer s.wg.Done()
	s.runTriggered()
}

func (s *Scheduler) runTriggered() {
	// Scheduled passes are not tied to any caller's lifetime.
	_, err := s.RunOnce(context.Background())
	if errors.Is(err, ErrPassInFlight) {
		s.logger.Warn("Skipping recurring pass, previous pass still running")
	}
}

func (s *Scheduler) logOutcome(ctx context.Context, summary services.PassSummary, err error) {
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring pass aborted",
			"date", summary.Date.String(),
			"error", err)
		return
	}

	for _, f := range summary.Failures {
		s.logger.WarnContext(ctx, "Recurring template failed",
			"recurring_id", f.TemplateID,
			"kind", string(f.Kind),
			"detail", f.Detail)
	}

	s.logger.InfoContext(ctx, "Recurring pass finished",
		"date", summary.Date.String(),
		"due", summary.Due,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed(),
		"duration", summary.Duration,
		"next_run", s.Next().Format(time.RFC3339))
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *applog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
