// Package runner executes one monitoring cycle over a target set of VMs:
// resolve targets, consult the idempotency cache, enable ping monitoring
// per VM, and aggregate a run summary. Individual target failures never
// abort the cycle.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/atrejom/vcfping/internal/logger"
	"github.com/atrejom/vcfping/internal/schedule"
	"github.com/atrejom/vcfping/internal/vcfops"
)

// OpsAPI is the slice of the VCF Operations client the runner needs.
type OpsAPI interface {
	ListVMs(ctx context.Context) ([]vcfops.Resource, error)
	FindVMs(ctx context.Context, name string) ([]vcfops.Resource, error)
	EnablePing(ctx context.Context, vm vcfops.Resource) (bool, error)
}

// TokenInvalidator discards a cached bearer token after a 401.
type TokenInvalidator interface {
	Invalidate()
}

// Cache is the idempotency ledger consulted for skip decisions.
type Cache interface {
	Refresh(ctx context.Context) error
	ShouldProcess(vmID string, policy schedule.CachePolicy) bool
	RecordSuccess(ctx context.Context, vmID, sourceHost string, now time.Time) error
}

// Summary aggregates the outcome of one run cycle.
type Summary struct {
	Attempted int               `json:"attempted"`
	Skipped   int               `json:"skipped"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("attempted=%d skipped=%d succeeded=%d failed=%d",
		s.Attempted, s.Skipped, s.Succeeded, s.Failed)
}

// Runner orchestrates one execution cycle.
type Runner struct {
	api        OpsAPI
	tokens     TokenInvalidator
	cache      Cache
	sourceHost string
	logger     *logger.Logger
	now        func() time.Time
}

// New creates a runner. sourceHost is recorded on processing records as the
// endpoint that performed the update.
func New(api OpsAPI, tokens TokenInvalidator, cache Cache, sourceHost string, log *logger.Logger) *Runner {
	return &Runner{
		api:        api,
		tokens:     tokens,
		cache:      cache,
		sourceHost: sourceHost,
		logger:     log,
		now:        time.Now,
	}
}

// Run executes one cycle. A nil vmNames slice means all VMs in the
// environment. Targets are processed sequentially in a fixed order: the
// order given for explicit names, inventory order for all-VMs. Per-target
// failures land in the summary; only precondition failures (unreadable
// cache, unresolvable inventory, fatal auth) return an error.
func (r *Runner) Run(ctx context.Context, vmNames []string, policy schedule.CachePolicy) (Summary, error) {
	summary := Summary{Failures: make(map[string]string)}

	if err := r.cache.Refresh(ctx); err != nil {
		return summary, fmt.Errorf("failed to load processing state: %w", err)
	}

	r.logger.InfoCtx(ctx, "starting monitoring cycle",
		logger.Field{Key: "cache_policy", Value: policy},
		logger.Field{Key: "explicit_targets", Value: len(vmNames)})

	if vmNames == nil {
		vms, err := r.api.ListVMs(ctx)
		if err != nil {
			if vcfops.IsAuthError(err) {
				return summary, err
			}
			return summary, fmt.Errorf("failed to fetch VM inventory: %w", err)
		}
		for _, vm := range vms {
			if err := r.processVM(ctx, vm, policy, &summary); err != nil {
				return summary, err
			}
		}
	} else {
		for _, name := range vmNames {
			if err := r.processNamed(ctx, name, policy, &summary); err != nil {
				return summary, err
			}
		}
	}

	r.logger.InfoCtx(ctx, "monitoring cycle complete",
		logger.Field{Key: "summary", Value: summary.String()})

	return summary, nil
}

// processNamed resolves one explicit target by name and processes every
// resource carrying that name. A name that resolves to nothing is a
// per-item failure, not a cycle abort.
func (r *Runner) processNamed(ctx context.Context, name string, policy schedule.CachePolicy, summary *Summary) error {
	vms, err := r.lookupWithAuthRetry(ctx, name)
	if err != nil {
		if vcfops.IsAuthError(err) {
			return err
		}
		summary.Attempted++
		summary.Failed++
		summary.Failures[name] = err.Error()
		r.logger.ErrorCtx(ctx, "failed to look up VM", err,
			logger.Field{Key: "vm", Value: name})
		return nil
	}
	if len(vms) == 0 {
		summary.Attempted++
		summary.Failed++
		summary.Failures[name] = "VM not found"
		r.logger.WarnCtx(ctx, "VM not found",
			logger.Field{Key: "vm", Value: name})
		return nil
	}

	for _, vm := range vms {
		if err := r.processVM(ctx, vm, policy, summary); err != nil {
			return err
		}
	}
	return nil
}

// processVM handles one resolved target. Returns an error only for fatal
// auth failures; everything else is accounted in the summary.
func (r *Runner) processVM(ctx context.Context, vm vcfops.Resource, policy schedule.CachePolicy, summary *Summary) error {
	if !r.cache.ShouldProcess(vm.Identifier, policy) {
		summary.Skipped++
		r.logger.DebugCtx(ctx, "skipping VM, already processed",
			logger.Field{Key: "vm", Value: vm.Name()})
		return nil
	}

	summary.Attempted++

	err := r.enableWithAuthRetry(ctx, vm)
	if err != nil {
		if vcfops.IsAuthError(err) {
			// Token acquisition is broken; nothing after this target can
			// succeed either.
			return err
		}
		summary.Failed++
		summary.Failures[vm.Name()] = err.Error()
		r.logger.ErrorCtx(ctx, "failed to enable ping monitoring", err,
			logger.Field{Key: "vm", Value: vm.Name()})
		return nil
	}

	if err := r.cache.RecordSuccess(ctx, vm.Identifier, r.sourceHost, r.now()); err != nil {
		r.logger.ErrorCtx(ctx, "failed to record processing state", err,
			logger.Field{Key: "vm", Value: vm.Name()})
	}
	summary.Succeeded++
	return nil
}

// enableWithAuthRetry issues the enable call; on a 401 it invalidates the
// token and retries exactly once with a fresh one.
func (r *Runner) enableWithAuthRetry(ctx context.Context, vm vcfops.Resource) error {
	_, err := r.api.EnablePing(ctx, vm)
	if err != nil && vcfops.IsAuthStatus(err) {
		r.logger.WarnCtx(ctx, "token rejected, refreshing and retrying",
			logger.Field{Key: "vm", Value: vm.Name()})
		r.tokens.Invalidate()
		_, err = r.api.EnablePing(ctx, vm)
	}
	return err
}

// lookupWithAuthRetry resolves a name; same invalidate-and-retry-once
// policy as the enable call.
func (r *Runner) lookupWithAuthRetry(ctx context.Context, name string) ([]vcfops.Resource, error) {
	vms, err := r.api.FindVMs(ctx, name)
	if err != nil && vcfops.IsAuthStatus(err) {
		r.tokens.Invalidate()
		vms, err = r.api.FindVMs(ctx, name)
	}
	return vms, err
}
