package scheduler

import (
	"testing"
	"time"

	"github.com/eplaytime/playtimed/internal/store"
)

func TestTriggerInstantToday(t *testing.T) {
	// Tuesday 06:00
	now := time.Date(2024, 3, 12, 6, 0, 0, 0, time.Local)

	got := TriggerInstant(now, 7, 30)
	want := time.Date(2024, 3, 12, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestTriggerInstantRollsToTomorrow(t *testing.T) {
	now := time.Date(2024, 3, 12, 8, 0, 0, 0, time.Local)

	got := TriggerInstant(now, 7, 30)
	want := time.Date(2024, 3, 13, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestTriggerInstantExactlyNowRolls(t *testing.T) {
	now := time.Date(2024, 3, 12, 7, 30, 0, 0, time.Local)

	got := TriggerInstant(now, 7, 30)
	want := time.Date(2024, 3, 13, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("An instant equal to now must roll to tomorrow, got %v", got)
	}
}

func TestNextOccurrenceOneTime(t *testing.T) {
	now := time.Date(2024, 3, 12, 6, 0, 0, 0, time.Local)
	entry := &store.ScheduledEntry{Hour: 7, Minute: 30}

	got := NextOccurrence(now, entry)
	want := time.Date(2024, 3, 12, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNextOccurrenceSkipsToRepeatDay(t *testing.T) {
	// 2024-03-12 is a Tuesday; a MON-only 07:30 entry created then must
	// next play the following Monday
	now := time.Date(2024, 3, 12, 6, 0, 0, 0, time.Local)
	entry := &store.ScheduledEntry{Hour: 7, Minute: 30, RepeatDays: []string{"MON"}}

	got := NextOccurrence(now, entry)
	want := time.Date(2024, 3, 18, 7, 30, 0, 0, time.Local)
	if got.Weekday() != time.Monday {
		t.Errorf("Expected a Monday, got %v", got.Weekday())
	}
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNextOccurrenceSameDayBeforeTime(t *testing.T) {
	// Monday before 07:30: a MON entry plays today
	now := time.Date(2024, 3, 11, 6, 0, 0, 0, time.Local)
	entry := &store.ScheduledEntry{Hour: 7, Minute: 30, RepeatDays: []string{"MON"}}

	got := NextOccurrence(now, entry)
	want := time.Date(2024, 3, 11, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNextOccurrenceSameDayAfterTime(t *testing.T) {
	// Monday after 07:30: a MON entry waits a full week
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.Local)
	entry := &store.ScheduledEntry{Hour: 7, Minute: 30, RepeatDays: []string{"MON"}}

	got := NextOccurrence(now, entry)
	want := time.Date(2024, 3, 18, 7, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
