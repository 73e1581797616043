package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five fields plus @hourly-style descriptors, the same grammar the asynq
// scheduler accepts.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSchedule is a parsed periodic job spec.
type CronSchedule struct {
	Expr  string
	sched cron.Schedule
}

func ParseCron(expr string) (*CronSchedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{Expr: expr, sched: sched}, nil
}

// Next returns the first run after from, in UTC. The zero time means the
// schedule never fires.
func (s *CronSchedule) Next(from time.Time) time.Time {
	return s.sched.Next(from.UTC())
}

// Interval is the gap between the next two runs after from.
func (s *CronSchedule) Interval(from time.Time) time.Duration {
	first := s.Next(from)
	if first.IsZero() {
		return 0
	}
	second := s.sched.Next(first)
	if second.IsZero() {
		return 0
	}
	return second.Sub(first)
}
