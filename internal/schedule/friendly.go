package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// FriendlyOptions carries the user-facing schedule shorthands. At most one
// field may be set per call; a nil field means the option was not supplied.
//
//	Daily:   "HH:MM" (empty string means midnight)
//	Weekly:  "DAY [HH:MM]"
//	Monthly: "DOM [HH:MM]"
//	Every:   "VALUE UNIT"
type FriendlyOptions struct {
	Daily   *string
	Weekly  *string
	Monthly *string
	Every   *string
}

// Update is the canonical schedule produced from a friendly option. Only the
// fields for the resulting schedule type are populated.
type Update struct {
	ScheduleType   Type
	CronExpression string
	IntervalUnit   IntervalUnit
	IntervalValue  int
}

// dayOfWeek maps day tokens to cron day-of-week numbers, Sunday = 0.
var dayOfWeek = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// ParseFriendly converts one friendly schedule option into a canonical
// update. Supplying no option returns (nil, nil), meaning "no change";
// supplying more than one, or an invalid one, returns a ValidationError.
func ParseFriendly(opts FriendlyOptions) (*Update, error) {
	supplied := 0
	for _, set := range []bool{opts.Daily != nil, opts.Weekly != nil, opts.Monthly != nil, opts.Every != nil} {
		if set {
			supplied++
		}
	}
	if supplied == 0 {
		return nil, nil
	}
	if supplied > 1 {
		return nil, validationErrorf("only one of daily, weekly, monthly, or every may be supplied")
	}

	switch {
	case opts.Daily != nil:
		return parseDaily(*opts.Daily)
	case opts.Weekly != nil:
		return parseWeekly(*opts.Weekly)
	case opts.Monthly != nil:
		return parseMonthly(*opts.Monthly)
	default:
		return parseEvery(*opts.Every)
	}
}

func parseDaily(spec string) (*Update, error) {
	hour, minute, err := parseClock(strings.TrimSpace(spec))
	if err != nil {
		return nil, err
	}
	return &Update{
		ScheduleType:   TypeCron,
		CronExpression: fmt.Sprintf("%d %d * * *", minute, hour),
	}, nil
}

func parseWeekly(spec string) (*Update, error) {
	parts := strings.Fields(spec)
	if len(parts) < 1 {
		return nil, validationErrorf("weekly schedule requires at least the day of week")
	}

	day, ok := dayOfWeek[strings.ToLower(parts[0])]
	if !ok {
		return nil, validationErrorf("invalid day of week: %s (use mon, tue, wed, thu, fri, sat, or sun)", parts[0])
	}

	hour, minute := 0, 0
	if len(parts) > 1 {
		var err error
		hour, minute, err = parseClock(parts[1])
		if err != nil {
			return nil, err
		}
	}

	return &Update{
		ScheduleType:   TypeCron,
		CronExpression: fmt.Sprintf("%d %d * * %d", minute, hour, day),
	}, nil
}

func parseMonthly(spec string) (*Update, error) {
	parts := strings.Fields(spec)
	if len(parts) < 1 {
		return nil, validationErrorf("monthly schedule requires at least the day of month")
	}

	dom, err := strconv.Atoi(parts[0])
	if err != nil || dom < 1 || dom > 31 {
		return nil, validationErrorf("invalid day of month: %s (must be between 1 and 31)", parts[0])
	}

	hour, minute := 0, 0
	if len(parts) > 1 {
		hour, minute, err = parseClock(parts[1])
		if err != nil {
			return nil, err
		}
	}

	return &Update{
		ScheduleType:   TypeCron,
		CronExpression: fmt.Sprintf("%d %d %d * *", minute, hour, dom),
	}, nil
}

func parseEvery(spec string) (*Update, error) {
	parts := strings.Fields(spec)
	if len(parts) != 2 {
		return nil, validationErrorf("every requires VALUE and UNIT arguments")
	}

	value, err := strconv.Atoi(parts[0])
	if err != nil || value < 1 {
		return nil, validationErrorf("invalid value for every: %s (must be a positive integer)", parts[0])
	}

	unit := strings.ToLower(parts[1])
	// Accept singular forms and normalize to plural.
	unit = strings.TrimSuffix(unit, "s") + "s"
	switch IntervalUnit(unit) {
	case UnitMinutes, UnitHours, UnitDays:
	default:
		return nil, validationErrorf("invalid unit for every: %s (must be minutes, hours, or days)", parts[1])
	}

	return &Update{
		ScheduleType:  TypeInterval,
		IntervalUnit:  IntervalUnit(unit),
		IntervalValue: value,
	}, nil
}

// parseClock parses "HH:MM" in 24-hour format. A bare "HH" is accepted with
// minutes defaulting to zero; an empty spec means midnight.
func parseClock(spec string) (hour, minute int, err error) {
	if spec == "" {
		return 0, 0, nil
	}

	parts := strings.SplitN(spec, ":", 2)
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, validationErrorf("invalid time format: %s (use HH:MM in 24-hour format)", spec)
	}
	if len(parts) > 1 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, validationErrorf("invalid time format: %s (use HH:MM in 24-hour format)", spec)
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, validationErrorf("invalid time format: %s (use HH:MM in 24-hour format, 00-23:00-59)", spec)
	}

	return hour, minute, nil
}

// Apply produces a new Config with the update's type group replacing the
// existing one. Target selection, cache policy, and run bookkeeping are
// untouched.
func (u *Update) Apply(cfg Config) Config {
	cfg.ScheduleType = u.ScheduleType
	cfg.CronExpression = u.CronExpression
	cfg.IntervalUnit = u.IntervalUnit
	cfg.IntervalValue = u.IntervalValue
	return cfg
}
