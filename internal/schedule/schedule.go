// Package schedule defines the canonical recurrence representation for the
// monitoring job and converts user-friendly schedule options into it.
// A canonical schedule is either an interval (unit + value) or a standard
// 5-field cron expression; cron parsing and next-fire computation use
// robfig/cron/v3.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Type discriminates interval schedules from cron schedules.
type Type string

const (
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

// IntervalUnit is the unit for interval schedules.
type IntervalUnit string

const (
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
)

// CachePolicy governs whether the idempotency cache is honored.
type CachePolicy string

const (
	// UseCache skips VMs that already have a processing record.
	UseCache CachePolicy = "use_cache"
	// IgnoreCache processes every target regardless of prior records.
	IgnoreCache CachePolicy = "ignore_cache"
)

// Config is the persisted schedule configuration. Exactly one of the
// type-specific field groups (cron expression, interval unit+value) is
// populated depending on ScheduleType.
type Config struct {
	ScheduleType   Type         `json:"schedule_type"`
	CronExpression string       `json:"cron_expression,omitempty"`
	IntervalUnit   IntervalUnit `json:"interval_unit,omitempty"`
	IntervalValue  int          `json:"interval_value,omitempty"`
	TargetVMs      []string     `json:"target_vms,omitempty"`
	TargetAllVMs   bool         `json:"target_all_vms,omitempty"`
	CachePolicy    CachePolicy  `json:"cache_policy"`
	Enabled        bool         `json:"enabled"`
	LastRun        *time.Time   `json:"last_run,omitempty"`
	NextRun        *time.Time   `json:"next_run,omitempty"`
}

// Default returns the configuration used when no schedule file exists yet:
// a disabled daily interval over all VMs, honoring the cache.
func Default() Config {
	return Config{
		ScheduleType:  TypeInterval,
		IntervalUnit:  UnitDays,
		IntervalValue: 1,
		TargetAllVMs:  true,
		CachePolicy:   UseCache,
		Enabled:       false,
	}
}

// ValidationError reports a bad schedule specification. No state is mutated
// when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid schedule: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// standardParser parses the standard 5-field cron format
// (minute hour day-of-month month day-of-week).
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the structural invariants of a canonical schedule.
func (c Config) Validate() error {
	switch c.ScheduleType {
	case TypeInterval:
		if c.CronExpression != "" {
			return validationErrorf("interval schedule must not carry a cron expression")
		}
		switch c.IntervalUnit {
		case UnitMinutes, UnitHours, UnitDays:
		default:
			return validationErrorf("unknown interval unit %q (expected minutes, hours, or days)", c.IntervalUnit)
		}
		if c.IntervalValue < 1 {
			return validationErrorf("interval value must be a positive integer, got %d", c.IntervalValue)
		}
	case TypeCron:
		if c.IntervalUnit != "" || c.IntervalValue != 0 {
			return validationErrorf("cron schedule must not carry interval fields")
		}
		if _, err := standardParser.Parse(c.CronExpression); err != nil {
			return validationErrorf("invalid cron expression %q: %v", c.CronExpression, err)
		}
	default:
		return validationErrorf("unknown schedule type %q", c.ScheduleType)
	}

	switch c.CachePolicy {
	case UseCache, IgnoreCache:
	default:
		return validationErrorf("unknown cache policy %q", c.CachePolicy)
	}

	if c.TargetAllVMs && len(c.TargetVMs) > 0 {
		return validationErrorf("target_all_vms and target_vms are mutually exclusive")
	}

	return nil
}

// Interval returns the recurrence duration for an interval schedule.
func (c Config) Interval() (time.Duration, error) {
	if c.ScheduleType != TypeInterval {
		return 0, fmt.Errorf("schedule is not interval-based")
	}
	value := time.Duration(c.IntervalValue)
	switch c.IntervalUnit {
	case UnitMinutes:
		return value * time.Minute, nil
	case UnitHours:
		return value * time.Hour, nil
	case UnitDays:
		return value * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q", c.IntervalUnit)
	}
}

// Next computes the next run instant strictly after the given time.
// Cron schedules fire at the next matching calendar instant; interval
// schedules fire one interval later.
func (c Config) Next(after time.Time) (time.Time, error) {
	switch c.ScheduleType {
	case TypeCron:
		sched, err := standardParser.Parse(c.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", c.CronExpression, err)
		}
		return sched.Next(after), nil
	case TypeInterval:
		interval, err := c.Interval()
		if err != nil {
			return time.Time{}, err
		}
		return after.Add(interval), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", c.ScheduleType)
	}
}

// Targets returns the VM names to process, or nil for "all VMs".
func (c Config) Targets() []string {
	if c.TargetAllVMs || len(c.TargetVMs) == 0 {
		return nil
	}
	return c.TargetVMs
}
