package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_Interval(t *testing.T) {
	cfg := Config{ScheduleType: TypeInterval, IntervalUnit: UnitHours, IntervalValue: 6}
	assert.Equal(t, "Every 6 hours", Describe(cfg))

	// Singular unit for a value of one
	cfg = Config{ScheduleType: TypeInterval, IntervalUnit: UnitDays, IntervalValue: 1}
	assert.Equal(t, "Every 1 day", Describe(cfg))
}

func TestDescribe_Cron(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"0 0 * * *", "Daily at midnight"},
		{"0 12 * * *", "Daily at noon"},
		{"30 8 * * *", "Daily at 8:30am"},
		{"0 21 * * *", "Daily at 9pm"},
		{"0 9 * * 1", "Weekly on Monday at 9am"},
		{"30 23 15 * *", "Monthly on the 15th at 11:30pm"},
		{"0 0 1 * *", "Monthly on the 1st at midnight"},
		{"0 0 22 * *", "Monthly on the 22nd at midnight"},
	}

	for _, tc := range cases {
		cfg := Config{ScheduleType: TypeCron, CronExpression: tc.expr}
		assert.Equal(t, tc.want, Describe(cfg), "expr %q", tc.expr)
	}
}

func TestDescribe_Cron_FallsBackToRawExpression(t *testing.T) {
	cases := []string{
		"*/5 * * * *",
		"0 8 * 6 *",
		"0 8 1 * 1",
	}

	for _, expr := range cases {
		cfg := Config{ScheduleType: TypeCron, CronExpression: expr}
		assert.Equal(t, "Custom schedule: "+expr, Describe(cfg), "expr %q", expr)
	}
}
