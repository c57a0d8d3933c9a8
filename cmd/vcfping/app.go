package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atrejom/vcfping/internal/config"
	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/runner"
	"github.com/atrejom/vcfping/internal/schedule"
	"github.com/atrejom/vcfping/internal/scheduler"
	"github.com/atrejom/vcfping/internal/store"
	"github.com/atrejom/vcfping/internal/vcfops"
)

// Exit codes, stable for scripting.
const (
	exitOK             = 0
	exitFatal          = 1
	exitValidation     = 2
	exitAlreadyRunning = 3
	exitAuth           = 4
)

const cacheFileName = "ping_enabled_vms.json"

// app bundles the loaded configuration and logger shared by all commands.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

// initApp loads and validates the configuration and initializes logging.
// It exits the process on failure.
func initApp() *app {
	configPath := rootConfigPath
	if configPath == "" {
		configPath = config.DefaultPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(exitFatal)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Printf("❌ Configuration validation failed:\n")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(exitValidation)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(exitFatal)
	}
	logger.SetDefault(log)

	return &app{cfg: cfg, log: log}
}

// newClient builds the VCF Operations API client from configuration and the
// login data file.
func (a *app) newClient() (*vcfops.Client, error) {
	login, err := vcfops.LoadLoginFile(a.cfg.Operations.LoginDataPath)
	if err != nil {
		return nil, err
	}

	host := a.cfg.Operations.Host
	if host == "" {
		host = login.OperationsHost
	}

	return vcfops.NewClient(vcfops.Config{
		Host:               host,
		InsecureSkipVerify: a.cfg.Operations.InsecureSkipVerify,
		RequestTimeout:     time.Duration(a.cfg.Operations.RequestTimeoutSeconds) * time.Second,
		TokenTTL:           time.Duration(a.cfg.Operations.TokenTTLMinutes) * time.Minute,
		TokenSafetyMargin:  time.Duration(a.cfg.Operations.TokenSafetyMarginSecond) * time.Second,
	}, login.LoginData, a.log), nil
}

// newCache builds the per-VM processing cache over its data file.
func (a *app) newCache() *store.StateCache {
	cachePath := filepath.Join(a.cfg.Scheduler.DataDir, cacheFileName)
	return store.NewStateCache(store.New(cachePath, a.log), a.log)
}

// newRunner wires the monitoring cycle runner to a live API client.
func (a *app) newRunner() (*runner.Runner, error) {
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}
	return runner.New(client, client.Tokens(), a.newCache(), client.Host(), a.log), nil
}

// newScheduler builds a scheduler. cycleRunner may be nil for commands that
// only touch persisted state (status, stop, configure).
func (a *app) newScheduler(cycleRunner scheduler.CycleRunner, metrics *scheduler.Metrics) *scheduler.Scheduler {
	return scheduler.New(cycleRunner, scheduler.Options{
		DataDir:      a.cfg.Scheduler.DataDir,
		PollInterval: time.Duration(a.cfg.Scheduler.PollIntervalSeconds) * time.Second,
		Metrics:      metrics,
		Logger:       a.log,
	})
}

// exitWith maps an error to the documented exit codes and terminates.
func exitWith(err error) {
	if err == nil {
		os.Exit(exitOK)
	}

	fmt.Printf("❌ %v\n", err)

	var validationErr *schedule.ValidationError
	switch {
	case errors.As(err, &validationErr):
		os.Exit(exitValidation)
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		os.Exit(exitAlreadyRunning)
	case vcfops.IsAuthError(err):
		os.Exit(exitAuth)
	default:
		os.Exit(exitFatal)
	}
}
