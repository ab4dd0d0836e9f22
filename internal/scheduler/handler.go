package scheduler

import (
	"errors"
	"log"
	"time"

	"github.com/eplaytime/playtimed/internal/store"
)

// How long a fired trigger may hold the keep-awake lock
const wakeGuardTimeout = 10 * time.Second

// PlaybackStarter is the slice of the playback session the trigger handler
// drives
type PlaybackStarter interface {
	PlayImmediate(uri string, targetVolume float64) error
	SetVolume(v float64) error
	Volume() float64
}

// WakeGuard acquires a scoped keep-awake resource. The returned release
// function must be safe to call more than once.
type WakeGuard interface {
	Acquire(timeout time.Duration) (release func(), err error)
}

// EntryStore is the slice of the durable store the trigger handler needs
type EntryStore interface {
	GetEntry(id int64) (*store.ScheduledEntry, error)
	SetEntryEnabled(id int64, enabled bool) error
	SaveVolumeOverride(priorVolume float64) error
	LoadVolumeOverride() (float64, bool, error)
	ClearVolumeOverride() error
}

// Handler reacts to fired timers: it validates the entry, starts playback at
// the entry's target volume, and rearms or disables the entry. Every failure
// is caught locally; the wake guard is always released and the process never
// crashes on a bad fire.
type Handler struct {
	store   EntryStore
	session PlaybackStarter
	guard   WakeGuard
	engine  *Engine

	// Injectable for day-validation tests
	now func() time.Time
}

// NewHandler creates a trigger handler
func NewHandler(entryStore EntryStore, session PlaybackStarter, guard WakeGuard, engine *Engine) *Handler {
	return &Handler{
		store:   entryStore,
		session: session,
		guard:   guard,
		engine:  engine,
		now:     time.Now,
	}
}

// HandleTrigger processes one fired timer
func (h *Handler) HandleTrigger(payload Payload) {
	log.Printf("[ALARM] Trigger fired for entry %d", payload.EntryID)

	release, err := h.guard.Acquire(wakeGuardTimeout)
	if err != nil {
		// Degraded but not fatal: proceed without the keep-awake lock
		log.Printf("[ALARM] Wake guard unavailable: %v", err)
		release = func() {}
	}
	defer release()

	entry, err := h.store.GetEntry(payload.EntryID)
	if errors.Is(err, store.ErrEntryNotFound) {
		// Deleted since registration
		log.Printf("[ALARM] Entry %d no longer exists, aborting", payload.EntryID)
		return
	}
	if err != nil {
		log.Printf("[ALARM] Failed to load entry %d: %v", payload.EntryID, err)
		return
	}

	if !entry.Enabled {
		log.Printf("[ALARM] Entry %d is disabled, aborting", entry.ID)
		return
	}

	today := h.now().Weekday()
	eligible := entry.FiresOn(today)

	played := false
	if eligible {
		played = h.startPlayback(entry)
	} else {
		log.Printf("[ALARM] Entry %d not eligible on %s, skipping playback", entry.ID, store.WeekdayToken(today))
	}

	// Repeating entries are always rearmed, fired or not. A one-time entry
	// that played is disabled so it never fires twice.
	if entry.Repeating() {
		h.engine.Schedule(entry)
	} else if played {
		if err := h.store.SetEntryEnabled(entry.ID, false); err != nil {
			log.Printf("[ALARM] Failed to disable one-time entry %d: %v", entry.ID, err)
		}
	}
}

// startPlayback records the current volume for later restoration, then starts
// the entry's track at its target volume. Returns true if playback started.
func (h *Handler) startPlayback(entry *store.ScheduledEntry) bool {
	prior := h.session.Volume()
	if err := h.store.SaveVolumeOverride(prior); err != nil {
		// Keep going: a missing restore record beats a silent alarm
		log.Printf("[ALARM] Failed to persist prior volume: %v", err)
	}

	if err := h.session.PlayImmediate(entry.TrackURI, entry.TargetVolume); err != nil {
		log.Printf("[ALARM] Failed to start playback for entry %d: %v", entry.ID, err)
		h.clearOverrideRecord()
		return false
	}

	log.Printf("[ALARM] Entry %d playing %s at volume %.2f (prior %.2f)", entry.ID, entry.TrackURI, entry.TargetVolume, prior)
	return true
}

// RestorePriorVolume puts the output volume back to its pre-alarm value.
// Called when alarm playback handling ends (explicit stop or teardown).
// A no-op when no override is pending.
func (h *Handler) RestorePriorVolume() {
	prior, ok, err := h.store.LoadVolumeOverride()
	if err != nil {
		log.Printf("[ALARM] Failed to load volume override: %v", err)
		return
	}
	if !ok {
		return
	}

	if err := h.session.SetVolume(prior); err != nil {
		log.Printf("[ALARM] Failed to restore volume %.2f: %v", prior, err)
		return
	}
	h.clearOverrideRecord()
	log.Printf("[ALARM] Restored output volume to %.2f", prior)
}

// RecoverVolumeOverride handles a crash that happened while an alarm held the
// volume override: the record is durable, so startup can still restore it
func (h *Handler) RecoverVolumeOverride() {
	if _, ok, err := h.store.LoadVolumeOverride(); err != nil || !ok {
		return
	}
	log.Printf("[ALARM] Found leftover volume override from previous run, restoring")
	h.RestorePriorVolume()
}

func (h *Handler) clearOverrideRecord() {
	if err := h.store.ClearVolumeOverride(); err != nil {
		log.Printf("[ALARM] Failed to clear volume override record: %v", err)
	}
}
