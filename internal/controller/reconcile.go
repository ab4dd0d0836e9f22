package controller

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/eplaytime/playtimed/internal/types"
)

// AttachState tracks the controller's attach-cycle state machine
type AttachState string

const (
	StateDetached    AttachState = "detached"
	StateAttaching   AttachState = "attaching"
	StateReconciling AttachState = "reconciling"

	// Terminal reconciliation outcomes. Exactly one of these is reached per
	// attach cycle.
	StateSyncedToLive AttachState = "synced_to_live_session"
	StateRestoring    AttachState = "restoring_from_store"
	StateFresh        AttachState = "fresh"
)

const (
	catalogWaitRetries  = 40
	catalogWaitInterval = 250 * time.Millisecond
)

// errCatalogNotReady reports that the catalog never finished loading within
// the bounded restoration wait
var errCatalogNotReady = errors.New("catalog not ready")

func (c *Controller) setAttachState(s AttachState) {
	c.mu.Lock()
	c.attachState = s
	c.mu.Unlock()
}

// Attach runs the attach-time reconciliation and starts the controller's
// poll and event loops. The decision is three-way:
//
//   - a live (non-idle) session is adopted as-is, its state is authoritative
//   - an idle session with a persisted snapshot is restored from the store,
//     positioned at the stored track and paused
//   - otherwise the controller comes up fresh with nothing loaded
//
// A live session is never overwritten by a persisted snapshot, and a
// snapshot is only dropped when restoration genuinely cannot proceed.
func (c *Controller) Attach(ctx context.Context) (AttachState, error) {
	c.setAttachState(StateAttaching)
	c.setAttachState(StateReconciling)

	outcome, err := c.reconcile(ctx)
	if err != nil {
		c.setAttachState(StateDetached)
		return StateDetached, err
	}
	c.setAttachState(outcome)

	// Fix the outcome before any catalog-refresh queue rebuild may run
	close(c.reconciled)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	events, unsubscribe := c.session.Subscribe()
	c.wg.Add(2)
	go c.pollLoop(loopCtx)
	go c.eventLoop(loopCtx, events, unsubscribe)

	log.Printf("[CTRL] Attached, reconciliation outcome: %s", outcome)
	return outcome, nil
}

func (c *Controller) reconcile(ctx context.Context) (AttachState, error) {
	if !c.session.Idle() {
		// Live session wins. Adopting is read-only, so attaching twice in a
		// row cannot disturb position or play state.
		state := c.session.State()
		log.Printf("[CTRL] Adopting live session: %s at %dms (playing=%v)",
			state.CurrentTrack, state.PositionMillis, state.IsPlaying)
		return StateSyncedToLive, nil
	}

	snap, err := c.store.LoadPlaybackState()
	if err != nil {
		log.Printf("[CTRL] Failed to load playback snapshot: %v", err)
		return StateFresh, nil
	}
	if snap == nil {
		return StateFresh, nil
	}

	if err := c.waitForCatalog(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return StateDetached, err
		}
		log.Printf("[CTRL] Catalog never loaded, snapshot not restorable: %v", err)
		return StateFresh, nil
	}

	idx := c.catalog.IndexOf(snap.TrackURI)
	if idx < 0 {
		log.Printf("[CTRL] Snapshot track no longer in catalog: %s", snap.TrackURI)
		return StateFresh, nil
	}

	c.session.SetQueue(c.catalog.URIs(), idx, snap.PositionMillis)
	c.session.SetShuffle(snap.ShuffleEnabled)
	c.session.SetRepeatMode(types.ParseRepeatMode(snap.RepeatMode))
	// Restored state stays paused at the stored position until the user
	// presses play

	log.Printf("[CTRL] Restored from store: %s at %dms", snap.TrackURI, snap.PositionMillis)
	return StateRestoring, nil
}

// waitForCatalog polls for catalog availability with bounded retries
func (c *Controller) waitForCatalog(ctx context.Context) error {
	for i := 0; i < catalogWaitRetries; i++ {
		if c.catalog.Loaded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(catalogWaitInterval):
		}
	}
	if c.catalog.Loaded() {
		return nil
	}
	return errCatalogNotReady
}
