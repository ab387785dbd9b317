package audit

import (
	"fmt"
	"strings"
	"time"
)

// RetentionFloor is the minimum age a history record must reach before it
// may be deleted.
const RetentionFloor = 7 * 24 * time.Hour

type Window struct {
	Name   string
	days   int
	months int
}

var windows = []Window{
	{Name: "7d", days: 7},
	{Name: "14d", days: 14},
	{Name: "21d", days: 21},
	{Name: "1m", months: 1},
	{Name: "2m", months: 2},
	{Name: "3m", months: 3},
}

// Windows lists the accepted bulk delete windows, shortest first.
func Windows() []string {
	names := make([]string, 0, len(windows))
	for _, w := range windows {
		names = append(names, w.Name)
	}
	return names
}

func ParseWindow(name string) (Window, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, w := range windows {
		if w.Name == name {
			return w, nil
		}
	}
	return Window{}, fmt.Errorf("unknown window %q, expected one of %s", name, strings.Join(Windows(), ", "))
}

// Floor is the latest created_at a record may carry and still be deletable.
func Floor(now time.Time) time.Time {
	return now.UTC().Add(-RetentionFloor)
}

// Cutoff returns now minus the window, clamped so it is never later than Floor.
func (w Window) Cutoff(now time.Time) time.Time {
	now = now.UTC()
	var cutoff time.Time
	if w.months > 0 {
		cutoff = now.AddDate(0, -w.months, 0)
	} else {
		cutoff = now.Add(-time.Duration(w.days) * 24 * time.Hour)
	}
	if floor := Floor(now); cutoff.After(floor) {
		return floor
	}
	return cutoff
}
