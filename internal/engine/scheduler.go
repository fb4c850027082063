package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type SchedulerOptions struct {
	Interval     time.Duration
	BatchSize    int
	Workers      int
	ExecutorName string
	Heartbeat    time.Duration
}

func SchedulerOptionsFromConfig() SchedulerOptions {
	return SchedulerOptions{
		Interval:     config.GetSystemSettingDuration(config.ENGINE_ESCALATION_INTERVAL, time.Minute),
		BatchSize:    config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE),
		Workers:      config.GetSystemSettingInteger(config.ENGINE_WORKERS),
		ExecutorName: config.GetSystemSettingString(config.ENGINE_EXECUTOR_NAME),
		Heartbeat:    config.GetSystemSettingDuration(config.ENGINE_HEARTBEAT_INTERVAL, 30*time.Second),
	}
}

// TickResult summarises one scan.
type TickResult struct {
	Scanned   int
	Escalated int
	Skipped   int
	Failed    int
}

// EscalationScheduler periodically scans for overdue steps and escalates
// them. Any number of schedulers may run against the same store; the
// version check in Escalate lets exactly one of them act on an instance.
type EscalationScheduler struct {
	store      *repository.Store
	escalator  Escalator
	clock      core.Clock
	opts       SchedulerOptions
	executorID int64
}

func NewEscalationScheduler(store *repository.Store, escalator Escalator, clock core.Clock, opts SchedulerOptions) *EscalationScheduler {
	if clock == nil {
		clock = core.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	return &EscalationScheduler{store: store, escalator: escalator, clock: clock, opts: opts}
}

func (s *EscalationScheduler) ExecutorID() int64 { return s.executorID }

// Start registers the executor and scans every interval until ctx is done.
func (s *EscalationScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.registerExecutorInstance(ctx)

	slog.InfoContext(ctx, "Escalation scheduler started", "interval", s.opts.Interval.String(),
		"workers", s.opts.Workers, "batch_size", s.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Escalation scheduler stopping due to context cancel")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "Escalation scan failed", "error", err)
			}
		}
	}
}

// Tick runs one scan: overdue instances are fed to a pool of workers, each
// escalating with the version the scan observed.
func (s *EscalationScheduler) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() { schedulerTick.Observe(time.Since(start).Seconds()) }()

	overdue, err := s.store.Instances.FindOverdue(ctx, s.clock.Now(), s.opts.BatchSize)
	if err != nil {
		return TickResult{}, err
	}
	res := TickResult{Scanned: len(overdue)}
	if len(overdue) == 0 {
		return res, nil
	}

	queue := make(chan domain.WorkflowInstance, len(overdue))
	for _, inst := range overdue {
		queue <- inst
	}
	close(queue)

	var escalated, skipped, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, queue, &escalated, &skipped, &failed)
		}(i)
	}
	wg.Wait()

	res.Escalated = int(escalated.Load())
	res.Skipped = int(skipped.Load())
	res.Failed = int(failed.Load())
	if s.executorID != 0 {
		if err := s.store.Executors.UpdateLastActive(ctx, s.executorID, s.clock.Now()); err != nil {
			slog.WarnContext(ctx, "Failed to update executor last_active", "executor_id", s.executorID, "error", err)
		}
	}
	slog.DebugContext(ctx, "Escalation scan finished", "scanned", res.Scanned, "escalated", res.Escalated,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// worker drains the queue of one scan.
func (s *EscalationScheduler) worker(ctx context.Context, id int, queue <-chan domain.WorkflowInstance, escalated, skipped, failed *atomic.Int64) {
	for inst := range queue {
		if ctx.Err() != nil {
			return
		}
		ok, err := s.escalator.Escalate(ctx, inst.ID, inst.CurrentStep, inst.Version)
		switch {
		case err != nil:
			failed.Add(1)
			slog.ErrorContext(ctx, "Escalation failed", "worker_id", id, "instance_id", inst.ID, "step", inst.CurrentStep, "error", err)
		case ok:
			escalated.Add(1)
		default:
			skipped.Add(1)
		}
	}
}

func (s *EscalationScheduler) registerExecutorInstance(ctx context.Context) {
	name := s.opts.ExecutorName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "approvalflow"
		} else {
			name = hostname
		}
	}
	now := s.clock.Now()
	exec := &domain.Executor{Name: name, Started: now, LastActive: now}
	id, err := s.store.Executors.Save(ctx, exec)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to register executor", "error", err)
		return
	}
	s.executorID = id
	slog.InfoContext(ctx, "Registered executor", "executor_id", id, "name", name)

	go func(executorID int64) {
		hb := time.NewTicker(s.opts.Heartbeat)
		defer hb.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.C:
				if err := s.store.Executors.UpdateLastActive(ctx, executorID, s.clock.Now()); err != nil {
					slog.ErrorContext(ctx, "Failed to update executor last_active", "executor_id", executorID, "error", err)
				} else {
					slog.DebugContext(ctx, "Updated executor last_active", "executor_id", executorID)
				}
			}
		}
	}(id)
}
