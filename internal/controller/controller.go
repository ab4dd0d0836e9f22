// Package controller is the UI-facing mirror of the playback session. It
// reconciles with whatever state the session is already in when it attaches,
// mirrors session state on a short poll, enforces A-B loop markers, and
// persists playback-state snapshots at the right moments.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eplaytime/playtimed/internal/catalog"
	"github.com/eplaytime/playtimed/internal/session"
	"github.com/eplaytime/playtimed/internal/store"
	"github.com/eplaytime/playtimed/internal/types"
)

const pollInterval = 500 * time.Millisecond

// Player is the playback session surface the controller drives
type Player interface {
	State() session.State
	Idle() bool
	SetQueue(tracks []string, startIndex int, startPositionMillis int64)
	Play() error
	Pause() error
	Stop() error
	SeekTo(positionMillis int64) error
	Next() error
	Previous() error
	SetShuffle(enabled bool)
	SetRepeatMode(mode types.RepeatMode)
	MoveQueueItem(from, to int) error
	RemoveQueueItem(index int) error
	Subscribe() (<-chan session.Event, func())
}

// SnapshotStore persists the single playback-state record
type SnapshotStore interface {
	SavePlaybackState(snap store.PlaybackStateSnapshot) error
	LoadPlaybackState() (*store.PlaybackStateSnapshot, error)
}

// ABLoopPhase is the three-state A-B loop marker cycle
type ABLoopPhase int

const (
	ABLoopUnset ABLoopPhase = iota
	ABLoopMarkA
	ABLoopActive
)

// ABLoop is the current loop marker pair
type ABLoop struct {
	Phase       ABLoopPhase `json:"phase"`
	StartMillis int64       `json:"startMillis"`
	EndMillis   int64       `json:"endMillis"`
}

// Controller mirrors and commands a Player
type Controller struct {
	session Player
	catalog *catalog.Catalog
	store   SnapshotStore

	mu          sync.Mutex
	attachState AttachState
	loop        ABLoop

	// Closed once the reconciliation outcome is fixed; queue rebuilds from
	// catalog refreshes wait on it
	reconciled chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a detached controller
func New(player Player, cat *catalog.Catalog, snapStore SnapshotStore) *Controller {
	return &Controller{
		session:     player,
		catalog:     cat,
		store:       snapStore,
		attachState: StateDetached,
		reconciled:  make(chan struct{}),
	}
}

// AttachState returns the current attach-cycle state
func (c *Controller) AttachState() AttachState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachState
}

// NowPlaying resolves the session's current track against the catalog.
// Tracks the catalog does not know (for example an alarm started before the
// library scan finished) get a placeholder built from the URI.
func (c *Controller) NowPlaying() (catalog.Track, bool) {
	state := c.session.State()
	if state.CurrentTrack == "" {
		return catalog.Track{}, false
	}

	track, err := c.catalog.ByURI(state.CurrentTrack)
	if errors.Is(err, catalog.ErrNotFound) {
		return placeholderTrack(state.CurrentTrack), true
	}
	if err != nil {
		return placeholderTrack(state.CurrentTrack), true
	}
	return track, true
}

func placeholderTrack(uri string) catalog.Track {
	name := filepath.Base(uri)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	// Foreign reference: no catalog id to carry
	return catalog.Track{URI: uri, Title: name}
}

// State returns the mirrored session state
func (c *Controller) State() session.State {
	return c.session.State()
}

// PlayTrack starts playback of the given track. A track present in the
// catalog plays within the full catalog queue; a foreign reference gets a
// single-item queue.
func (c *Controller) PlayTrack(uri string) error {
	idx := c.catalog.IndexOf(uri)
	if idx >= 0 {
		c.session.SetQueue(c.catalog.URIs(), idx, 0)
	} else {
		log.Printf("[CTRL] Track not in catalog, playing standalone: %s", uri)
		c.session.SetQueue([]string{uri}, 0, 0)
	}
	c.clearLoop()
	return c.session.Play()
}

// TogglePlayPause flips between playing and paused
func (c *Controller) TogglePlayPause() error {
	if c.session.State().IsPlaying {
		return c.session.Pause()
	}
	return c.session.Play()
}

// SeekTo seeks within the current track
func (c *Controller) SeekTo(positionMillis int64) error {
	return c.session.SeekTo(positionMillis)
}

// Next advances to the next track
func (c *Controller) Next() error {
	c.clearLoop()
	return c.session.Next()
}

// Previous moves to the previous track
func (c *Controller) Previous() error {
	c.clearLoop()
	return c.session.Previous()
}

// SetShuffle enables or disables shuffle
func (c *Controller) SetShuffle(enabled bool) {
	c.session.SetShuffle(enabled)
}

// CycleRepeatMode advances off -> one -> all -> off and returns the new mode
func (c *Controller) CycleRepeatMode() types.RepeatMode {
	next := c.session.State().RepeatMode.Cycle()
	c.session.SetRepeatMode(next)
	return next
}

// SetABLoopMarker advances the three-state loop toggle: unset marks point A
// at the current position, marked-A sets point B and activates the loop, and
// active clears it. Returns the resulting loop state.
func (c *Controller) SetABLoopMarker() ABLoop {
	pos := c.session.State().PositionMillis

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.loop.Phase {
	case ABLoopUnset:
		c.loop = ABLoop{Phase: ABLoopMarkA, StartMillis: pos}
		log.Printf("[CTRL] Loop point A set at %dms", pos)
	case ABLoopMarkA:
		if pos <= c.loop.StartMillis {
			// A degenerate pair clears the marker instead of looping nowhere
			c.loop = ABLoop{}
			log.Printf("[CTRL] Loop point B not after A, markers cleared")
		} else {
			c.loop.EndMillis = pos
			c.loop.Phase = ABLoopActive
			log.Printf("[CTRL] Loop active: %dms - %dms", c.loop.StartMillis, c.loop.EndMillis)
		}
	case ABLoopActive:
		c.loop = ABLoop{}
		log.Printf("[CTRL] Loop cleared")
	}
	return c.loop
}

// Loop returns the current A-B loop state
func (c *Controller) Loop() ABLoop {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

func (c *Controller) clearLoop() {
	c.mu.Lock()
	c.loop = ABLoop{}
	c.mu.Unlock()
}

// MoveQueueItem moves a queue item
func (c *Controller) MoveQueueItem(from, to int) error {
	return c.session.MoveQueueItem(from, to)
}

// RemoveQueueItem removes a queue item
func (c *Controller) RemoveQueueItem(index int) error {
	return c.session.RemoveQueueItem(index)
}

// RefreshQueueFromCatalog re-populates the session queue after a catalog
// (re)load. While the session is playing the replace is non-destructive:
// the queue is rebuilt around the current track without touching the engine.
// A forced refresh (user-triggered rescan) always replaces, stopping
// playback if the current track vanished from the library.
func (c *Controller) RefreshQueueFromCatalog(ctx context.Context, forced bool) error {
	// Queue rebuilds must not race the attach-time reconciliation
	select {
	case <-c.reconciled:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !c.catalog.Loaded() {
		return nil
	}

	state := c.session.State()
	uris := c.catalog.URIs()
	idx := c.catalog.IndexOf(state.CurrentTrack)

	// When the current track survives the refresh its position survives
	// too, so a queue rebuild right after a snapshot restore does not
	// discard the restored position
	pos := int64(0)
	if idx >= 0 {
		pos = state.PositionMillis
	}

	if state.IsPlaying && !forced {
		if idx < 0 {
			// Current track left the library; let it finish, the queue
			// rebuild happens on the next refresh or track change
			log.Printf("[CTRL] Deferring queue rebuild, current track not in refreshed catalog")
			return nil
		}
		c.session.SetQueue(uris, idx, pos)
		log.Printf("[CTRL] Queue refreshed around playing track (%d tracks)", len(uris))
		return nil
	}

	if forced && state.IsPlaying && idx < 0 {
		if err := c.session.Stop(); err != nil {
			return fmt.Errorf("failed to stop playback for forced refresh: %w", err)
		}
	}

	if idx < 0 {
		idx = 0
	}
	c.session.SetQueue(uris, idx, pos)
	log.Printf("[CTRL] Queue replaced from catalog (%d tracks, forced=%v)", len(uris), forced)
	return nil
}

// saveSnapshot writes the current playback state to the store
func (c *Controller) saveSnapshot() {
	state := c.session.State()
	if state.CurrentTrack == "" {
		return
	}

	snap := store.PlaybackStateSnapshot{
		TrackURI:       state.CurrentTrack,
		PositionMillis: state.PositionMillis,
		PlaybackSpeed:  state.PlaybackSpeed,
		ShuffleEnabled: state.ShuffleEnabled,
		RepeatMode:     state.RepeatMode.String(),
		Volume:         state.Volume,
	}
	if err := c.store.SavePlaybackState(snap); err != nil {
		log.Printf("[CTRL] Failed to save playback state: %v", err)
	}
}

// pollLoop updates the mirror on a fixed cadence and enforces an active A-B
// loop. Position ticks never write to the store.
func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkLoop()
		}
	}
}

func (c *Controller) checkLoop() {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()

	if loop.Phase != ABLoopActive {
		return
	}

	state := c.session.State()
	if !state.IsPlaying {
		return
	}
	if state.PositionMillis >= loop.EndMillis {
		if err := c.session.SeekTo(loop.StartMillis); err != nil {
			log.Printf("[CTRL] Loop seek failed: %v", err)
		}
	}
}

// eventLoop drives the eager snapshot writes: pause, explicit seek and track
// transitions each persist a fresh snapshot
func (c *Controller) eventLoop(ctx context.Context, events <-chan session.Event, unsubscribe func()) {
	defer c.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case session.PlayStateChanged:
				if !e.Playing {
					c.saveSnapshot()
				}
			case session.PositionJumped:
				c.saveSnapshot()
			case session.TrackChanged:
				c.saveSnapshot()
			}
		}
	}
}

// Close tears the controller down: the poll and event loops stop and a final
// snapshot is written
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.saveSnapshot()

	c.mu.Lock()
	c.attachState = StateDetached
	c.mu.Unlock()

	log.Printf("[CTRL] Controller detached")
	return nil
}
