package scheduler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/runner"
	"github.com/atrejom/vcfping/internal/schedule"
)

// fakeClock reports a fixed instant and never fires timers, so the daemon
// loop only leaves its select through the stop channel.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// fakeCycleRunner records invocations.
type fakeCycleRunner struct {
	mu      sync.Mutex
	calls   []cycleCall
	summary runner.Summary
	err     error
}

type cycleCall struct {
	vmNames []string
	policy  schedule.CachePolicy
}

func (f *fakeCycleRunner) Run(ctx context.Context, vmNames []string, policy schedule.CachePolicy) (runner.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cycleCall{vmNames: vmNames, policy: policy})
	return f.summary, f.err
}

func (f *fakeCycleRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T, cycleRunner CycleRunner, clock Clock) *Scheduler {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return New(cycleRunner, Options{
		DataDir: t.TempDir(),
		Clock:   clock,
		Logger:  log,
	})
}

func TestScheduler_Schedule_DefaultWhenMissing(t *testing.T) {
	s := newTestScheduler(t, nil, nil)

	cfg, err := s.Schedule(context.Background())

	require.NoError(t, err)
	assert.Equal(t, schedule.Default(), cfg)
	assert.False(t, cfg.Enabled)
}

func TestScheduler_Configure_EnableComputesNextRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, nil, newFakeClock(now))
	ctx := context.Background()

	cfg, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.ScheduleType = schedule.TypeInterval
		c.IntervalUnit = schedule.UnitHours
		c.IntervalValue = 6
		c.Enabled = true
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, cfg.NextRun)
	assert.Equal(t, now.Add(6*time.Hour), *cfg.NextRun)

	// The configuration survives a reload
	loaded, err := s.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestScheduler_Configure_DisableClearsNextRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, nil, newFakeClock(now))
	ctx := context.Background()

	_, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.Enabled = true
		return nil
	})
	require.NoError(t, err)

	cfg, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.Enabled = false
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, cfg.NextRun)
}

func TestScheduler_Configure_ScheduleChangeResetsNextRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, nil, newFakeClock(now))
	ctx := context.Background()

	_, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.Enabled = true
		return nil
	})
	require.NoError(t, err)

	cfg, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.ScheduleType = schedule.TypeCron
		c.CronExpression = "0 8 * * *"
		c.IntervalUnit = ""
		c.IntervalValue = 0
		return nil
	})
	require.NoError(t, err)

	// 08:00 tomorrow, not the old interval-derived time
	require.NotNil(t, cfg.NextRun)
	assert.Equal(t, time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC), *cfg.NextRun)
}

func TestScheduler_Configure_ValidationFailureLeavesStoreUntouched(t *testing.T) {
	s := newTestScheduler(t, nil, newFakeClock(time.Now()))
	ctx := context.Background()

	before, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.Enabled = true
		return nil
	})
	require.NoError(t, err)

	_, err = s.Configure(ctx, func(c *schedule.Config) error {
		c.IntervalValue = -5
		return nil
	})

	var vErr *schedule.ValidationError
	require.ErrorAs(t, err, &vErr)

	after, err := s.Schedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestScheduler_ComputeNextRun_IntervalResumesFromLastRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, nil, newFakeClock(now))

	lastRun := now.Add(-2 * time.Hour)
	cfg := schedule.Config{
		ScheduleType:  schedule.TypeInterval,
		IntervalUnit:  schedule.UnitHours,
		IntervalValue: 6,
		LastRun:       &lastRun,
	}

	next, err := s.computeNextRun(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, lastRun.Add(6*time.Hour), next)
}

func TestScheduler_ComputeNextRun_OverdueIntervalClampsToNow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, nil, newFakeClock(now))

	lastRun := now.Add(-48 * time.Hour)
	cfg := schedule.Config{
		ScheduleType:  schedule.TypeInterval,
		IntervalUnit:  schedule.UnitHours,
		IntervalValue: 6,
		LastRun:       &lastRun,
	}

	next, err := s.computeNextRun(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, now, next)
}

func TestScheduler_Status_DefaultsToStopped(t *testing.T) {
	s := newTestScheduler(t, nil, nil)

	info, err := s.Status(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusStopped, info.State.Status)
	assert.False(t, info.State.Alive())
}

func TestScheduler_Status_CorrectsStaleState(t *testing.T) {
	s := newTestScheduler(t, nil, nil)
	ctx := context.Background()

	// Simulate a daemon that died without cleaning up. The PID is chosen
	// from a range the kernel never assigns in practice.
	require.NoError(t, s.stateStore.Save(ctx, RunState{
		Status:    StatusRunning,
		PID:       1 << 22,
		StartedAt: time.Now(),
	}))

	info, err := s.Status(ctx)

	require.NoError(t, err)
	assert.Equal(t, StatusStopped, info.State.Status)
	assert.Zero(t, info.State.PID)

	// The correction is persisted
	var state RunState
	require.NoError(t, s.stateStore.Load(ctx, &state))
	assert.Equal(t, StatusStopped, state.Status)
}

func TestScheduler_Start_RefusesWhenLiveDaemonRecorded(t *testing.T) {
	s := newTestScheduler(t, &fakeCycleRunner{}, nil)
	ctx := context.Background()

	// The parent process is alive and is not us
	require.NoError(t, s.stateStore.Save(ctx, RunState{
		Status: StatusRunning,
		PID:    os.Getppid(),
	}))

	err := s.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestScheduler_Start_RecoversStaleStateAndRuns(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	cycleRunner := &fakeCycleRunner{}
	s := newTestScheduler(t, cycleRunner, clock)
	ctx := context.Background()

	// Stale record from a dead daemon
	require.NoError(t, s.stateStore.Save(ctx, RunState{
		Status: StatusRunning,
		PID:    1 << 22,
	}))

	// Enabled schedule that is already due
	due := now.Add(-time.Minute)
	cfg := schedule.Default()
	cfg.Enabled = true
	cfg.NextRun = &due
	require.NoError(t, s.schedStore.Save(ctx, cfg))

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// The due schedule fires on loop entry
	require.Eventually(t, func() bool {
		return cycleRunner.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	require.NoError(t, <-done)

	// The cycle advanced the schedule
	var stored schedule.Config
	require.NoError(t, s.schedStore.Load(ctx, &stored))
	require.NotNil(t, stored.LastRun)
	assert.Equal(t, now, stored.LastRun.UTC())
	require.NotNil(t, stored.NextRun)
	assert.Equal(t, now.Add(24*time.Hour), stored.NextRun.UTC())

	// Shutdown cleaned up the daemon record and PID file
	var state RunState
	require.NoError(t, s.stateStore.Load(ctx, &state))
	assert.Equal(t, StatusStopped, state.Status)
	_, err := os.ReadFile(PIDPath(s.dataDir))
	assert.True(t, os.IsNotExist(err))
}

func TestScheduler_Start_DisabledScheduleNeverFires(t *testing.T) {
	clock := newFakeClock(time.Now())
	cycleRunner := &fakeCycleRunner{}
	s := newTestScheduler(t, cycleRunner, clock)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// Give the loop a moment to reach its select
	require.Eventually(t, func() bool {
		info, err := s.Status(ctx)
		return err == nil && info.State.Status == StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	require.NoError(t, <-done)
	assert.Zero(t, cycleRunner.callCount())
}

func TestScheduler_RunNow_UsesConfiguredTargets(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cycleRunner := &fakeCycleRunner{summary: runner.Summary{Succeeded: 2}}
	s := newTestScheduler(t, cycleRunner, newFakeClock(now))
	ctx := context.Background()

	_, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.TargetAllVMs = false
		c.TargetVMs = []string{"vm-a", "vm-b"}
		return nil
	})
	require.NoError(t, err)

	summary, err := s.RunNow(ctx, false)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	require.Len(t, cycleRunner.calls, 1)
	assert.Equal(t, []string{"vm-a", "vm-b"}, cycleRunner.calls[0].vmNames)
	assert.Equal(t, schedule.UseCache, cycleRunner.calls[0].policy)
}

func TestScheduler_RunNow_ForceIgnoresCache(t *testing.T) {
	cycleRunner := &fakeCycleRunner{}
	s := newTestScheduler(t, cycleRunner, newFakeClock(time.Now()))

	_, err := s.RunNow(context.Background(), true)

	require.NoError(t, err)
	require.Len(t, cycleRunner.calls, 1)
	assert.Equal(t, schedule.IgnoreCache, cycleRunner.calls[0].policy)
}

func TestScheduler_RunNow_AdvancesLastRunOnly(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cycleRunner := &fakeCycleRunner{}
	s := newTestScheduler(t, cycleRunner, newFakeClock(now))
	ctx := context.Background()

	cfg, err := s.Configure(ctx, func(c *schedule.Config) error {
		c.Enabled = true
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.NextRun)
	scheduledNext := *cfg.NextRun

	_, err = s.RunNow(ctx, false)
	require.NoError(t, err)

	stored, err := s.Schedule(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRun)
	assert.Equal(t, now, stored.LastRun.UTC())

	// The scheduled fire time is untouched
	require.NotNil(t, stored.NextRun)
	assert.Equal(t, scheduledNext.UTC(), stored.NextRun.UTC())
}
