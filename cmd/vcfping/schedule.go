package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/schedule"
	"github.com/atrejom/vcfping/internal/scheduler"
)

var (
	startForeground bool
	runNowForce     bool

	cfgDaily         string
	cfgWeekly        string
	cfgMonthly       string
	cfgEvery         string
	cfgScheduleType  string
	cfgIntervalUnit  string
	cfgIntervalValue int
	cfgCronExpr      string
	cfgTargetVMs     []string
	cfgTargetAllVMs  bool
	cfgUseCache      bool
	cfgIgnoreCache   bool
	cfgEnable        bool
	cfgDisable       bool
)

// scheduleCmd groups the daemon lifecycle commands.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the recurring monitoring schedule",
	Long: `Manage the background daemon that enables ping monitoring on a
recurring schedule. The schedule, daemon state and processing cache are
persisted under the configured data directory.`,
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon",
	Long: `Start the scheduler daemon. By default the process detaches and runs
in the background; --foreground keeps it attached to the terminal.`,
	Run: scheduleStartHandler,
}

var scheduleStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the scheduler daemon",
	Run:   scheduleStopHandler,
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon state and the configured schedule",
	Run:   scheduleStatusHandler,
}

var scheduleRunNowCmd = &cobra.Command{
	Use:   "run-now",
	Short: "Run one monitoring cycle immediately",
	Long: `Run one monitoring cycle immediately with the configured targets.
The scheduled next run is not affected.`,
	Run: scheduleRunNowHandler,
}

var scheduleConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Change the monitoring schedule",
	Long: `Change the monitoring schedule, its targets, or its cache policy.

Friendly forms:
  --daily 08:30            every day at 08:30
  --weekly "mon 09:00"     every Monday at 09:00
  --monthly "15 23:30"     the 15th of each month at 23:30
  --every "6 hours"        every 6 hours

Advanced forms:
  --schedule-type cron --cron-expression "30 8 * * 1-5"
  --schedule-type interval --interval-unit hours --interval-value 6

A failed validation leaves the stored schedule untouched.`,
	Run: scheduleConfigureHandler,
}

func scheduleStartHandler(cmd *cobra.Command, args []string) {
	a := initApp()
	ctx := cmd.Context()

	// Refuse early in both modes so the caller gets the exit code
	// synchronously instead of from a detached child.
	probe := a.newScheduler(nil, nil)
	info, err := probe.Status(ctx)
	if err != nil {
		exitWith(err)
	}
	if info.State.Alive() {
		exitWith(fmt.Errorf("%w (pid %d)", scheduler.ErrAlreadyRunning, info.State.PID))
	}

	if !startForeground {
		spawnDaemon()
		return
	}

	cycleRunner, err := a.newRunner()
	if err != nil {
		exitWith(err)
	}

	metrics := scheduler.InitMetrics("vcfping", nil)
	if addr := a.cfg.Scheduler.MetricsListenAddr; addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				a.log.Error("metrics listener failed", err,
					logger.Field{Key: "addr", Value: addr})
			}
		}()
		a.log.Info("metrics listener started",
			logger.Field{Key: "addr", Value: addr})
	}

	sched := a.newScheduler(cycleRunner, metrics)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.log.Info("⏳ Received shutdown signal",
			logger.Field{Key: "signal", Value: sig.String()})
		sched.Stop()
	}()

	if err := sched.Start(runCtx); err != nil {
		exitWith(err)
	}
}

// spawnDaemon re-executes this binary in foreground mode, detached from the
// terminal, and returns once the child is launched.
func spawnDaemon() {
	self, err := os.Executable()
	if err != nil {
		exitWith(fmt.Errorf("failed to resolve executable path: %w", err))
	}

	daemonArgs := []string{"schedule", "start", "--foreground"}
	if rootConfigPath != "" {
		daemonArgs = append(daemonArgs, "--config", rootConfigPath)
	}

	child := exec.Command(self, daemonArgs...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil

	if err := child.Start(); err != nil {
		exitWith(fmt.Errorf("failed to launch daemon: %w", err))
	}

	fmt.Printf("✅ Scheduler daemon started (pid %d)\n", child.Process.Pid)
	// Let init reparent the child.
	_ = child.Process.Release()
}

func scheduleStopHandler(cmd *cobra.Command, args []string) {
	a := initApp()

	sched := a.newScheduler(nil, nil)
	err := sched.StopDaemon(cmd.Context())
	if errors.Is(err, scheduler.ErrNotRunning) {
		fmt.Printf("Scheduler daemon is not running\n")
		return
	}
	if err != nil {
		exitWith(err)
	}

	fmt.Printf("✅ Scheduler daemon stopped\n")
}

func scheduleStatusHandler(cmd *cobra.Command, args []string) {
	a := initApp()

	sched := a.newScheduler(nil, nil)
	info, err := sched.Status(cmd.Context())
	if err != nil {
		exitWith(err)
	}

	fmt.Printf("Daemon:    %s\n", info.State.Status)
	if info.State.Alive() {
		fmt.Printf("PID:       %d\n", info.State.PID)
		fmt.Printf("Started:   %s\n", info.State.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Heartbeat: %s\n", info.State.HeartbeatAt.Format("2006-01-02 15:04:05"))
	}

	cfg := info.Schedule
	fmt.Printf("\nSchedule:  %s\n", schedule.Describe(cfg))
	fmt.Printf("Enabled:   %t\n", cfg.Enabled)
	fmt.Printf("Cache:     %s\n", cfg.CachePolicy)
	if targets := cfg.Targets(); targets == nil {
		fmt.Printf("Targets:   all VMs\n")
	} else {
		fmt.Printf("Targets:   %v\n", targets)
	}
	if cfg.LastRun != nil {
		fmt.Printf("Last run:  %s\n", cfg.LastRun.Format("2006-01-02 15:04:05"))
	}
	if cfg.NextRun != nil {
		fmt.Printf("Next run:  %s\n", cfg.NextRun.Format("2006-01-02 15:04:05"))
	}
}

func scheduleRunNowHandler(cmd *cobra.Command, args []string) {
	a := initApp()

	cycleRunner, err := a.newRunner()
	if err != nil {
		exitWith(err)
	}

	sched := a.newScheduler(cycleRunner, nil)
	summary, err := sched.RunNow(cmd.Context(), runNowForce)
	if err != nil {
		exitWith(err)
	}

	fmt.Printf("✅ Monitoring cycle complete: %s\n", summary.String())
	for name, reason := range summary.Failures {
		fmt.Printf("  - %s: %s\n", name, reason)
	}
	if summary.Failed > 0 {
		os.Exit(exitFatal)
	}
}

func scheduleConfigureHandler(cmd *cobra.Command, args []string) {
	a := initApp()
	flags := cmd.Flags()

	if cfgUseCache && cfgIgnoreCache {
		fmt.Printf("❌ --use-cache and --ignore-cache are mutually exclusive\n")
		os.Exit(exitValidation)
	}
	if cfgEnable && cfgDisable {
		fmt.Printf("❌ --enable and --disable are mutually exclusive\n")
		os.Exit(exitValidation)
	}
	if flags.Changed("target-vms") && cfgTargetAllVMs {
		fmt.Printf("❌ --target-vms and --target-all-vms are mutually exclusive\n")
		os.Exit(exitValidation)
	}

	opts := schedule.FriendlyOptions{}
	if flags.Changed("daily") {
		opts.Daily = &cfgDaily
	}
	if flags.Changed("weekly") {
		opts.Weekly = &cfgWeekly
	}
	if flags.Changed("monthly") {
		opts.Monthly = &cfgMonthly
	}
	if flags.Changed("every") {
		opts.Every = &cfgEvery
	}

	upd, err := schedule.ParseFriendly(opts)
	if err != nil {
		exitWith(err)
	}

	advanced := flags.Changed("schedule-type") || flags.Changed("cron-expression") ||
		flags.Changed("interval-unit") || flags.Changed("interval-value")
	if upd != nil && advanced {
		fmt.Printf("❌ friendly schedule flags cannot be combined with --schedule-type, --cron-expression, --interval-unit, or --interval-value\n")
		os.Exit(exitValidation)
	}
	if upd == nil && advanced {
		upd, err = advancedUpdate(flags.Changed("schedule-type"))
		if err != nil {
			exitWith(err)
		}
	}

	sched := a.newScheduler(nil, nil)
	cfg, err := sched.Configure(cmd.Context(), func(c *schedule.Config) error {
		if upd != nil {
			*c = upd.Apply(*c)
		}
		if flags.Changed("target-vms") {
			c.TargetVMs = cfgTargetVMs
			c.TargetAllVMs = false
		}
		if cfgTargetAllVMs {
			c.TargetAllVMs = true
			c.TargetVMs = nil
		}
		if cfgUseCache {
			c.CachePolicy = schedule.UseCache
		}
		if cfgIgnoreCache {
			c.CachePolicy = schedule.IgnoreCache
		}
		if cfgEnable {
			c.Enabled = true
		}
		if cfgDisable {
			c.Enabled = false
		}
		return nil
	})
	if err != nil {
		exitWith(err)
	}

	fmt.Printf("✅ Schedule updated: %s\n", schedule.Describe(cfg))
	if cfg.Enabled && cfg.NextRun != nil {
		fmt.Printf("Next run: %s\n", cfg.NextRun.Format("2006-01-02 15:04:05"))
	}
	if !cfg.Enabled {
		fmt.Printf("Schedule is disabled; enable it with --enable\n")
	}
}

// advancedUpdate builds a schedule update from the explicit flags. The
// schedule type may be inferred when only one type group's flags are set.
func advancedUpdate(typeSet bool) (*schedule.Update, error) {
	schedType := schedule.Type(cfgScheduleType)
	if !typeSet {
		if cfgCronExpr != "" {
			schedType = schedule.TypeCron
		} else {
			schedType = schedule.TypeInterval
		}
	}

	switch schedType {
	case schedule.TypeCron:
		if cfgCronExpr == "" {
			return nil, &schedule.ValidationError{Reason: "--schedule-type cron requires --cron-expression"}
		}
		return &schedule.Update{
			ScheduleType:   schedule.TypeCron,
			CronExpression: cfgCronExpr,
		}, nil
	case schedule.TypeInterval:
		if cfgIntervalUnit == "" || cfgIntervalValue == 0 {
			return nil, &schedule.ValidationError{Reason: "--schedule-type interval requires --interval-unit and --interval-value"}
		}
		return &schedule.Update{
			ScheduleType:  schedule.TypeInterval,
			IntervalUnit:  schedule.IntervalUnit(cfgIntervalUnit),
			IntervalValue: cfgIntervalValue,
		}, nil
	default:
		return nil, &schedule.ValidationError{Reason: fmt.Sprintf("invalid schedule type: %s (must be interval or cron)", cfgScheduleType)}
	}
}

func init() {
	scheduleStartCmd.Flags().BoolVar(&startForeground, "foreground", false, "Run in the foreground instead of detaching")

	scheduleRunNowCmd.Flags().BoolVar(&runNowForce, "force", false, "Ignore the processing cache for this run")

	scheduleConfigureCmd.Flags().StringVar(&cfgDaily, "daily", "", "Run daily at the given time (HH:MM, 24h)")
	scheduleConfigureCmd.Flags().StringVar(&cfgWeekly, "weekly", "", "Run weekly (\"DAY [HH:MM]\", e.g. \"mon 09:00\")")
	scheduleConfigureCmd.Flags().StringVar(&cfgMonthly, "monthly", "", "Run monthly (\"DOM [HH:MM]\", e.g. \"15 23:30\")")
	scheduleConfigureCmd.Flags().StringVar(&cfgEvery, "every", "", "Run at a fixed interval (e.g. \"6 hours\", \"30 minutes\")")
	scheduleConfigureCmd.Flags().StringVar(&cfgScheduleType, "schedule-type", "", "Schedule type (interval or cron)")
	scheduleConfigureCmd.Flags().StringVar(&cfgIntervalUnit, "interval-unit", "", "Interval unit (minutes, hours, or days)")
	scheduleConfigureCmd.Flags().IntVar(&cfgIntervalValue, "interval-value", 0, "Interval length in units")
	scheduleConfigureCmd.Flags().StringVar(&cfgCronExpr, "cron-expression", "", "Run per a 5-field cron expression")
	scheduleConfigureCmd.Flags().StringSliceVar(&cfgTargetVMs, "target-vms", nil, "Comma-separated VM names to target")
	scheduleConfigureCmd.Flags().BoolVar(&cfgTargetAllVMs, "target-all-vms", false, "Target every VM")
	scheduleConfigureCmd.Flags().BoolVar(&cfgUseCache, "use-cache", false, "Skip VMs already recorded as processed")
	scheduleConfigureCmd.Flags().BoolVar(&cfgIgnoreCache, "ignore-cache", false, "Process VMs even if already recorded")
	scheduleConfigureCmd.Flags().BoolVar(&cfgEnable, "enable", false, "Enable the schedule")
	scheduleConfigureCmd.Flags().BoolVar(&cfgDisable, "disable", false, "Disable the schedule")

	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleStopCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)
	scheduleCmd.AddCommand(scheduleRunNowCmd)
	scheduleCmd.AddCommand(scheduleConfigureCmd)
}
