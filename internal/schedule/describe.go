package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Describe renders a canonical schedule as human-readable prose. It is a
// pure function of the config: the same input always yields the same
// description, independent of the current time.
func Describe(cfg Config) string {
	switch cfg.ScheduleType {
	case TypeInterval:
		unit := string(cfg.IntervalUnit)
		if cfg.IntervalValue == 1 {
			unit = strings.TrimSuffix(unit, "s")
		}
		return fmt.Sprintf("Every %d %s", cfg.IntervalValue, unit)
	case TypeCron:
		return describeCron(cfg.CronExpression)
	default:
		return "Unknown schedule"
	}
}

func describeCron(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return "Custom schedule: " + expr
	}

	minuteField, hourField, domField, monthField, dowField := parts[0], parts[1], parts[2], parts[3], parts[4]

	minute, minuteOK := atoi(minuteField)
	hour, hourOK := atoi(hourField)
	if !minuteOK || !hourOK || monthField != "*" {
		return "Custom schedule: " + expr
	}

	timeDesc := clockDescription(hour, minute)

	// Daily at a specific time.
	if domField == "*" && dowField == "*" {
		return "Daily at " + timeDesc
	}

	// Weekly on a specific day.
	if domField == "*" && dowField != "*" {
		dow, ok := atoi(dowField)
		if !ok {
			return "Custom schedule: " + expr
		}
		return fmt.Sprintf("Weekly on %s at %s", dayNames[dow%7], timeDesc)
	}

	// Monthly on a specific day.
	if domField != "*" && dowField == "*" {
		dom, ok := atoi(domField)
		if !ok {
			return "Custom schedule: " + expr
		}
		return fmt.Sprintf("Monthly on the %d%s at %s", dom, ordinalSuffix(dom), timeDesc)
	}

	return "Custom schedule: " + expr
}

// clockDescription renders an hour/minute pair the way an operator would say
// it: "midnight", "noon", "9am", "9:30pm".
func clockDescription(hour, minute int) string {
	if minute == 0 {
		switch hour {
		case 0:
			return "midnight"
		case 12:
			return "noon"
		}
	}

	amPM := "am"
	if hour >= 12 {
		amPM = "pm"
	}
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", hour12, amPM)
	}
	return fmt.Sprintf("%d:%02d%s", hour12, minute, amPM)
}

func ordinalSuffix(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
