// Package scheduler turns scheduled playback entries into fired timers and
// handles the fires: a timer service over a min-heap, trigger-instant math,
// and the alarm trigger handler that starts playback through the session.
package scheduler

import (
	"errors"
	"log"
	"time"

	"github.com/eplaytime/playtimed/internal/store"
)

// Engine maps scheduled entries onto timer registrations. Each entry owns at
// most one registered timer, keyed by the entry's id.
type Engine struct {
	registrar Registrar
}

// NewEngine creates an engine over the given registrar
func NewEngine(registrar Registrar) *Engine {
	return &Engine{registrar: registrar}
}

// Schedule arms the entry's timer for the next future occurrence of its
// wall-clock time. A denied exact-timer privilege degrades to an inexact
// registration; registration failure is logged, never fatal. Returns the
// armed instant, or the zero time if the registration was dropped.
func (e *Engine) Schedule(entry *store.ScheduledEntry) time.Time {
	triggerAt := TriggerInstant(time.Now(), entry.Hour, entry.Minute)
	payload := Payload{EntryID: entry.ID, TrackURI: entry.TrackURI}

	err := e.registrar.RegisterExact(triggerAt, payload)
	if errors.Is(err, ErrPermissionDenied) {
		log.Printf("[SCHED] Exact timer denied for entry %d, degrading to inexact", entry.ID)
		err = e.registrar.RegisterInexact(triggerAt, payload)
	}
	if err != nil {
		log.Printf("[SCHED] Failed to register timer for entry %d: %v", entry.ID, err)
		return time.Time{}
	}

	log.Printf("[SCHED] Entry %d armed for %s", entry.ID, triggerAt.Format(time.RFC3339))
	return triggerAt
}

// Cancel unregisters the entry's timer
func (e *Engine) Cancel(entryID int64) {
	e.registrar.Cancel(entryID)
	log.Printf("[SCHED] Entry %d timer cancelled", entryID)
}

// RescheduleAll re-arms every entry in the list. Used at boot recovery with
// the enabled entries; re-registering a repeating entry is non-destructive.
func (e *Engine) RescheduleAll(entries []*store.ScheduledEntry) {
	for _, entry := range entries {
		e.Schedule(entry)
	}
	log.Printf("[SCHED] Rescheduled %d entries", len(entries))
}
