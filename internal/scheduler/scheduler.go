// Package scheduler runs the monitoring daemon: a poll loop that fires the
// ping-enable cycle when the persisted schedule comes due, plus the lifecycle
// operations (start, stop, status, run-now, configure) the CLI exposes.
//
// Daemon state lives in a JSON file next to the schedule configuration.
// Liveness is judged by the recorded PID, so a daemon that died without
// cleaning up is detected and its state corrected instead of blocking a
// restart forever.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/runner"
	"github.com/atrejom/vcfping/internal/schedule"
	"github.com/atrejom/vcfping/internal/store"
)

const (
	// DefaultPollInterval bounds how long the daemon sleeps between checks
	// of the schedule file, so external configure commands take effect
	// without a restart.
	DefaultPollInterval = 30 * time.Second

	// DefaultStopTimeout is how long StopDaemon waits for the signalled
	// process to exit.
	DefaultStopTimeout = 30 * time.Second

	scheduleFileName = "vcf-monitoring-schedule.json"
	stateFileName    = "daemon-state.json"
	runLockFileName  = "run.lock"

	// runLockWait bounds how long a run-now invocation waits for an
	// in-flight scheduled cycle before giving up.
	runLockWait = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start when a live daemon process already
// owns the data directory.
var ErrAlreadyRunning = errors.New("scheduler daemon is already running")

// ErrNotRunning is returned by StopDaemon when no live daemon exists.
var ErrNotRunning = errors.New("scheduler daemon is not running")

// CycleRunner executes one monitoring cycle over the given VM names
// (nil means all VMs).
type CycleRunner interface {
	Run(ctx context.Context, vmNames []string, policy schedule.CachePolicy) (runner.Summary, error)
}

// Options configures a Scheduler. Zero fields fall back to defaults.
type Options struct {
	DataDir      string
	PollInterval time.Duration
	StopTimeout  time.Duration
	Clock        Clock
	Metrics      *Metrics
	Logger       *logger.Logger
}

// Scheduler owns the daemon lifecycle and the persisted schedule.
type Scheduler struct {
	dataDir      string
	schedStore   *store.Store
	stateStore   *store.Store
	runLock      *flock.Flock
	runner       CycleRunner
	clock        Clock
	metrics      *Metrics
	pollInterval time.Duration
	stopTimeout  time.Duration
	logger       *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// StatusInfo is the combined answer to a status query.
type StatusInfo struct {
	State    RunState
	Schedule schedule.Config
}

// New creates a scheduler over the given cycle runner.
func New(cycleRunner CycleRunner, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	return &Scheduler{
		dataDir:      opts.DataDir,
		schedStore:   store.New(filepath.Join(opts.DataDir, scheduleFileName), opts.Logger),
		stateStore:   store.New(filepath.Join(opts.DataDir, stateFileName), opts.Logger),
		runLock:      flock.New(filepath.Join(opts.DataDir, runLockFileName)),
		runner:       cycleRunner,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		stopTimeout:  opts.StopTimeout,
		logger:       opts.Logger,
		stopCh:       make(chan struct{}),
	}
}

// Schedule returns the persisted schedule configuration, falling back to the
// default when no file exists yet.
func (s *Scheduler) Schedule(ctx context.Context) (schedule.Config, error) {
	var cfg schedule.Config
	if err := s.schedStore.Load(ctx, &cfg); err != nil {
		return schedule.Config{}, err
	}
	if cfg.ScheduleType == "" {
		cfg = schedule.Default()
	}
	return cfg, nil
}

// Configure applies fn to the persisted schedule under the file lock,
// validates the result, and recomputes the next run when the schedule is
// enabled. Validation failure leaves the stored configuration untouched.
func (s *Scheduler) Configure(ctx context.Context, fn func(*schedule.Config) error) (schedule.Config, error) {
	var cfg schedule.Config
	err := s.schedStore.Update(ctx, &cfg, func() error {
		if cfg.ScheduleType == "" {
			cfg = schedule.Default()
		}
		before := cfg

		if err := fn(&cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// A schedule change invalidates the previously computed fire time.
		if scheduleChanged(before, cfg) {
			cfg.NextRun = nil
		}
		if cfg.Enabled && cfg.NextRun == nil {
			next, err := s.computeNextRun(cfg, s.clock.Now())
			if err != nil {
				return err
			}
			cfg.NextRun = &next
		}
		if !cfg.Enabled {
			cfg.NextRun = nil
		}
		return nil
	})
	if err != nil {
		return schedule.Config{}, err
	}

	s.logger.Info("schedule configured",
		logger.Field{Key: "description", Value: schedule.Describe(cfg)},
		logger.Field{Key: "enabled", Value: cfg.Enabled})

	return cfg, nil
}

func scheduleChanged(a, b schedule.Config) bool {
	return a.ScheduleType != b.ScheduleType ||
		a.CronExpression != b.CronExpression ||
		a.IntervalUnit != b.IntervalUnit ||
		a.IntervalValue != b.IntervalValue
}

// computeNextRun derives the next fire time. Cron schedules always use the
// next matching calendar instant. Interval schedules resume from the last
// run when one is recorded, clamped to now when overdue, so a restart does
// not reset the cadence.
func (s *Scheduler) computeNextRun(cfg schedule.Config, now time.Time) (time.Time, error) {
	if cfg.ScheduleType == schedule.TypeInterval && cfg.LastRun != nil {
		next, err := cfg.Next(*cfg.LastRun)
		if err != nil {
			return time.Time{}, err
		}
		if next.Before(now) {
			return now, nil
		}
		return next, nil
	}
	return cfg.Next(now)
}

// Start runs the daemon loop in the calling goroutine until Stop is called,
// the context is cancelled, or a fatal error occurs. It refuses to start
// when a live daemon already owns the data directory, and repairs state
// left behind by one that died uncleanly.
func (s *Scheduler) Start(ctx context.Context) error {
	pid := os.Getpid()

	var state RunState
	err := s.stateStore.Update(ctx, &state, func() error {
		if state.Alive() && state.PID != pid {
			return ErrAlreadyRunning
		}
		if state.Status != StatusStopped && state.Status != "" {
			s.logger.Warn("recovering stale daemon state",
				logger.Field{Key: "recorded_status", Value: state.Status},
				logger.Field{Key: "recorded_pid", Value: state.PID})
		}
		state = RunState{
			Status:      StatusStarting,
			PID:         pid,
			StartedAt:   s.clock.Now(),
			HeartbeatAt: s.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := WritePID(s.dataDir, pid); err != nil {
		s.setStopped(ctx)
		return err
	}

	// Make sure a schedule file exists and its next run is current before
	// entering the loop.
	if _, err := s.refreshNextRun(ctx); err != nil {
		s.setStopped(ctx)
		return err
	}

	if err := s.persistStatus(ctx, StatusRunning); err != nil {
		s.setStopped(ctx)
		return err
	}

	s.logger.Info("scheduler daemon started",
		logger.Field{Key: "pid", Value: pid},
		logger.Field{Key: "data_dir", Value: s.dataDir})

	loopErr := s.loop(ctx)

	s.persistStatus(ctx, StatusStopping)
	s.setStopped(ctx)

	s.logger.Info("scheduler daemon stopped",
		logger.Field{Key: "pid", Value: pid})

	return loopErr
}

// refreshNextRun recomputes a missing or stale next run for an enabled
// schedule and persists it.
func (s *Scheduler) refreshNextRun(ctx context.Context) (schedule.Config, error) {
	var cfg schedule.Config
	err := s.schedStore.Update(ctx, &cfg, func() error {
		if cfg.ScheduleType == "" {
			cfg = schedule.Default()
		}
		if !cfg.Enabled {
			cfg.NextRun = nil
			return nil
		}
		if cfg.NextRun == nil {
			next, err := s.computeNextRun(cfg, s.clock.Now())
			if err != nil {
				return err
			}
			cfg.NextRun = &next
		}
		return nil
	})
	return cfg, err
}

func (s *Scheduler) loop(ctx context.Context) error {
	for {
		cfg, err := s.Schedule(ctx)
		if err != nil {
			return err
		}

		wait := s.pollInterval
		if cfg.Enabled && cfg.NextRun != nil {
			until := cfg.NextRun.Sub(s.clock.Now())
			if until <= 0 {
				s.executeCycle(ctx, cfg)
				continue
			}
			if until < wait {
				wait = until
			}
		}

		s.heartbeat(ctx)

		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// executeCycle runs one monitoring cycle and advances the schedule. The
// cycle itself runs under a context that survives daemon shutdown, so a stop
// request never interrupts in-flight API calls. Cycle failures are logged
// and the loop continues; only persistence failures are fatal to the daemon.
func (s *Scheduler) executeCycle(ctx context.Context, cfg schedule.Config) {
	unlock, err := s.acquireRunLock(ctx)
	if err != nil {
		// A manual run-now holds the lock. Skip this fire and let the loop
		// recompute after it releases.
		s.logger.Warn("cycle skipped, another run is in progress",
			logger.Field{Key: "error", Value: err})
		s.advanceSchedule(ctx, false)
		return
	}
	defer unlock()

	started := s.clock.Now()
	s.logger.Info("monitoring cycle starting",
		logger.Field{Key: "schedule", Value: schedule.Describe(cfg)},
		logger.Field{Key: "cache_policy", Value: cfg.CachePolicy})

	cycleCtx := context.WithoutCancel(ctx)
	summary, runErr := s.runner.Run(cycleCtx, cfg.Targets(), cfg.CachePolicy)
	duration := s.clock.Now().Sub(started)

	s.metrics.RecordCycle(summary, runErr, duration)

	if runErr != nil {
		s.logger.Error("monitoring cycle failed", runErr,
			logger.Field{Key: "duration", Value: duration},
			logger.Field{Key: "summary", Value: summary.String()})
	} else {
		s.logger.Info("monitoring cycle finished",
			logger.Field{Key: "duration", Value: duration},
			logger.Field{Key: "summary", Value: summary.String()})
	}

	s.advanceSchedule(ctx, true)
}

// advanceSchedule persists the cycle outcome: last run (when one ran) and
// the freshly computed next run.
func (s *Scheduler) advanceSchedule(ctx context.Context, ran bool) {
	now := s.clock.Now()
	var cfg schedule.Config
	err := s.schedStore.Update(ctx, &cfg, func() error {
		if cfg.ScheduleType == "" {
			cfg = schedule.Default()
		}
		if ran {
			cfg.LastRun = &now
		}
		if !cfg.Enabled {
			cfg.NextRun = nil
			return nil
		}
		next, err := cfg.Next(now)
		if err != nil {
			return err
		}
		cfg.NextRun = &next
		return nil
	})
	if err != nil {
		s.logger.Error("failed to persist schedule progress", err)
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	var state RunState
	err := s.stateStore.Update(ctx, &state, func() error {
		state.HeartbeatAt = s.clock.Now()
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record heartbeat",
			logger.Field{Key: "error", Value: err})
	}
}

func (s *Scheduler) persistStatus(ctx context.Context, status Status) error {
	var state RunState
	return s.stateStore.Update(ctx, &state, func() error {
		state.Status = status
		state.HeartbeatAt = s.clock.Now()
		return nil
	})
}

func (s *Scheduler) setStopped(ctx context.Context) {
	var state RunState
	err := s.stateStore.Update(ctx, &state, func() error {
		state = RunState{Status: StatusStopped}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to persist stopped state", err)
	}
	if err := RemovePID(s.dataDir); err != nil {
		s.logger.Error("failed to remove PID file", err)
	}
}

// Stop asks a daemon loop running in this process to exit. Safe to call more
// than once and from signal handlers.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// StopDaemon signals the daemon process recorded in the PID file and waits
// for it to exit. Stale state (a recorded daemon whose process is gone) is
// corrected in place and reported as ErrNotRunning.
func (s *Scheduler) StopDaemon(ctx context.Context) error {
	info, err := s.Status(ctx)
	if err != nil {
		return err
	}
	if !info.State.Alive() {
		return ErrNotRunning
	}

	process, err := os.FindProcess(info.State.PID)
	if err != nil {
		return fmt.Errorf("failed to find daemon process %d: %w", info.State.PID, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon process %d: %w", info.State.PID, err)
	}

	s.logger.Info("stop signal sent",
		logger.Field{Key: "pid", Value: info.State.PID})

	deadline := s.clock.Now().Add(s.stopTimeout)
	for IsProcessRunning(info.State.PID) {
		if s.clock.Now().After(deadline) {
			return fmt.Errorf("daemon process %d did not exit within %s", info.State.PID, s.stopTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(200 * time.Millisecond):
		}
	}

	return nil
}

// Status reports the daemon state and the current schedule. A recorded
// running daemon whose process no longer exists is corrected to stopped
// before reporting.
func (s *Scheduler) Status(ctx context.Context) (StatusInfo, error) {
	var state RunState
	err := s.stateStore.Update(ctx, &state, func() error {
		if state.Status == "" {
			state.Status = StatusStopped
		}
		if state.Status != StatusStopped && !IsProcessRunning(state.PID) {
			s.logger.Warn("daemon state is stale, correcting to stopped",
				logger.Field{Key: "recorded_status", Value: state.Status},
				logger.Field{Key: "recorded_pid", Value: state.PID})
			state = RunState{Status: StatusStopped}
		}
		return nil
	})
	if err != nil {
		return StatusInfo{}, err
	}

	cfg, err := s.Schedule(ctx)
	if err != nil {
		return StatusInfo{}, err
	}

	return StatusInfo{State: state, Schedule: cfg}, nil
}

// RunNow executes one monitoring cycle immediately with the configured
// targets. force ignores the idempotency cache for this run only. The last
// run timestamp advances; the scheduled next run does not.
func (s *Scheduler) RunNow(ctx context.Context, force bool) (runner.Summary, error) {
	cfg, err := s.Schedule(ctx)
	if err != nil {
		return runner.Summary{}, err
	}

	policy := cfg.CachePolicy
	if force {
		policy = schedule.IgnoreCache
	}

	unlock, err := s.acquireRunLock(ctx)
	if err != nil {
		return runner.Summary{}, fmt.Errorf("another monitoring run is in progress: %w", err)
	}
	defer unlock()

	summary, runErr := s.runner.Run(ctx, cfg.Targets(), policy)
	if runErr != nil {
		return summary, runErr
	}

	now := s.clock.Now()
	var stored schedule.Config
	err = s.schedStore.Update(ctx, &stored, func() error {
		if stored.ScheduleType == "" {
			stored = schedule.Default()
		}
		stored.LastRun = &now
		return nil
	})
	if err != nil {
		s.logger.Error("failed to record manual run", err)
	}

	return summary, nil
}

// acquireRunLock serializes monitoring cycles across processes (a manual
// run-now racing the daemon's own fire).
func (s *Scheduler) acquireRunLock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, runLockWait)
	defer cancel()

	locked, err := s.runLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("run lock is held")
	}

	return func() {
		if err := s.runLock.Unlock(); err != nil {
			s.logger.Error("failed to release run lock", err)
		}
	}, nil
}
