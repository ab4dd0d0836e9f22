package scheduler

import (
	"time"

	"github.com/eplaytime/playtimed/internal/store"
)

// TriggerInstant returns the next future wall-clock occurrence of
// hour:minute. If today's occurrence has already passed (or is exactly now),
// it rolls to tomorrow.
func TriggerInstant(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// NextOccurrence returns the next instant at which the entry will actually
// start playback. For one-time entries this is the plain trigger instant;
// for repeating entries the date advances (at most a week) to the next
// weekday in the repeat set.
func NextOccurrence(now time.Time, entry *store.ScheduledEntry) time.Time {
	target := TriggerInstant(now, entry.Hour, entry.Minute)
	if !entry.Repeating() {
		return target
	}

	for i := 0; i < 7; i++ {
		if entry.FiresOn(target.Weekday()) {
			return target
		}
		target = target.AddDate(0, 0, 1)
	}
	return target
}
