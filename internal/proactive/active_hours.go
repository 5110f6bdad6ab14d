package proactive

import (
	"fmt"
	"regexp"
	"time"
)

// ActiveHours restricts the generate step to a preferred delivery window,
// so a candidate message is never produced at an hour the user would not
// want to be messaged.
type ActiveHours struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Start and End are HH:MM. End may be "24:00" for midnight.
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`

	// Timezone is "local", "utc", or an IANA zone name.
	Timezone string `json:"timezone" yaml:"timezone"`

	// Days restricts to specific weekdays (0=Sunday..6=Saturday). Empty
	// means every day.
	Days []int `json:"days" yaml:"days"`
}

// DefaultActiveHours returns a daytime window, Monday-Friday.
func DefaultActiveHours() ActiveHours {
	return ActiveHours{
		Enabled:  false,
		Start:    "09:00",
		End:      "21:00",
		Timezone: "local",
		Days:     []int{1, 2, 3, 4, 5},
	}
}

var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]|24):([0-5]\d)$`)

func parseClock(s string, allow24 bool) (int, error) {
	if !timePattern.MatchString(s) {
		return 0, fmt.Errorf("proactive: invalid time %q, want HH:MM", s)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, err
	}
	if hour == 24 {
		if !allow24 || minute != 0 {
			return 0, fmt.Errorf("proactive: 24:00 only valid as an end time")
		}
		return 24 * 60, nil
	}
	return hour*60 + minute, nil
}

func resolveZone(tz string) (*time.Location, error) {
	switch tz {
	case "", "local":
		return time.Local, nil
	case "utc", "UTC":
		return time.UTC, nil
	default:
		return time.LoadLocation(tz)
	}
}

// IsActiveAt reports whether t falls within the window.
func (a ActiveHours) IsActiveAt(t time.Time) (bool, error) {
	if !a.Enabled {
		return true, nil
	}
	loc, err := resolveZone(a.Timezone)
	if err != nil {
		return false, fmt.Errorf("proactive: resolve timezone %q: %w", a.Timezone, err)
	}
	local := t.In(loc)

	if len(a.Days) > 0 {
		ok := false
		weekday := int(local.Weekday())
		for _, d := range a.Days {
			if d == weekday {
				ok = true
				break
			}
		}
		if !ok {
			return false, nil
		}
	}

	start, err := parseClock(a.Start, false)
	if err != nil {
		return false, err
	}
	end, err := parseClock(a.End, true)
	if err != nil {
		return false, err
	}
	minutes := local.Hour()*60 + local.Minute()

	if start <= end {
		return minutes >= start && minutes < end, nil
	}
	return minutes >= start || minutes < end, nil
}
