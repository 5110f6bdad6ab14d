package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both standard 5-field and seconds-optional 6-field
// cron expressions, plus the predefined descriptors ("@daily", "@hourly").
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduleKind selects which of Schedule's fields is populated.
type ScheduleKind string

const (
	ScheduleKindCron  ScheduleKind = "cron"
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindAt    ScheduleKind = "at"
)

// Schedule describes when a ScheduledTask is due to run next.
type Schedule struct {
	Kind     ScheduleKind  `json:"kind"`
	CronExpr string        `json:"cron,omitempty"`
	Every    time.Duration `json:"every,omitempty"`
	At       time.Time     `json:"at,omitempty"`
	Timezone string        `json:"timezone,omitempty"`
}

var (
	// ErrNoSchedule is returned when none of cron/every/at is populated.
	ErrNoSchedule = errors.New("scheduler: no schedule specified")

	// ErrIntervalTooShort is returned when an "every" schedule is tighter
	// than MinIntervalSeconds.
	ErrIntervalTooShort = fmt.Errorf("scheduler: interval below minimum of %d seconds", MinIntervalSeconds)
)

// NewSchedule validates cfg and returns it unchanged if valid. An "every"
// schedule tighter than MinIntervalSeconds is rejected outright: the
// teacher's own cron package places no floor on this, but a scheduler that
// also drives every due task through the gating pipeline and a delivery
// channel cannot afford a sub-hour cadence on agent-prompt tasks.
func NewSchedule(cfg Schedule) (Schedule, error) {
	switch {
	case cfg.CronExpr != "":
		cfg.Kind = ScheduleKindCron
		sched, err := cronParser.Parse(cfg.CronExpr)
		if err != nil {
			return Schedule{}, fmt.Errorf("scheduler: parse cron expression: %w", err)
		}
		loc := time.UTC
		if cfg.Timezone != "" {
			if l, err := time.LoadLocation(cfg.Timezone); err == nil {
				loc = l
			}
		}
		first := sched.Next(time.Now().In(loc))
		second := sched.Next(first)
		if second.Sub(first) < MinIntervalSeconds*time.Second {
			return Schedule{}, ErrIntervalTooShort
		}
	case cfg.Every > 0:
		cfg.Kind = ScheduleKindEvery
		if cfg.Every < MinIntervalSeconds*time.Second {
			return Schedule{}, ErrIntervalTooShort
		}
	case !cfg.At.IsZero():
		cfg.Kind = ScheduleKindAt
	default:
		return Schedule{}, ErrNoSchedule
	}
	return cfg, nil
}

// Next returns the next time the schedule is due after now, and whether
// there is one at all. An "at" schedule with a time already in the past
// reports ok=false: it is a one-shot that has already fired.
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case ScheduleKindAt:
		if s.At.After(now) {
			return s.At, true, nil
		}
		return time.Time{}, false, nil

	case ScheduleKindEvery:
		return now.Add(s.Every), true, nil

	case ScheduleKindCron:
		loc := time.UTC
		if s.Timezone != "" {
			if l, err := time.LoadLocation(s.Timezone); err == nil {
				loc = l
			}
		}
		sched, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("scheduler: parse cron expression: %w", err)
		}
		return sched.Next(now.In(loc)), true, nil

	default:
		return time.Time{}, false, ErrNoSchedule
	}
}
