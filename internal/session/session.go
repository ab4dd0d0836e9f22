// Package session implements the playback session: the single process-wide
// owner of the active player. It survives independently of any attached
// controller; controllers mirror its state, never the other way around.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/eplaytime/playtimed/internal/audio"
	"github.com/eplaytime/playtimed/internal/queue"
	"github.com/eplaytime/playtimed/internal/types"
)

// ErrSourceUnavailable reports a track reference that cannot be resolved to a
// playable stream. The queue position is left unchanged when this happens.
var ErrSourceUnavailable = errors.New("source unavailable")

// Engine is the playback engine surface the session drives
type Engine interface {
	Play(ctx context.Context, uri string, startMillis int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionMillis int64) error
	SetVolume(v float64) error
	Volume() float64
	Status() audio.Status
	SetOnTrackEnd(callback audio.TrackEndCallback)
	Close() error
}

// State is a point-in-time snapshot of the session, the query surface
// mirrored by controllers
type State struct {
	CurrentTrack   string           `json:"currentTrack,omitempty"`
	IsPlaying      bool             `json:"isPlaying"`
	PositionMillis int64            `json:"positionMillis"`
	DurationMillis int64            `json:"durationMillis"`
	PlaybackSpeed  float64          `json:"playbackSpeed"`
	ShuffleEnabled bool             `json:"shuffleEnabled"`
	RepeatMode     types.RepeatMode `json:"repeatMode"`
	Queue          []string         `json:"queue"`
	Volume         float64          `json:"volume"`
}

// Session owns the engine and the queue. All commands are serialized: at most
// one command mutates the session at a time.
type Session struct {
	mu     sync.Mutex
	engine Engine
	queue  *queue.Manager

	// Start position consumed by the next Play; set by SetQueue/SeekTo when
	// nothing is loaded into the engine yet
	pendingPositionMillis int64
	speed                 float64

	subsMu sync.RWMutex
	subs   map[chan Event]struct{}
}

// New creates a session around the given engine
func New(engine Engine) *Session {
	s := &Session{
		engine: engine,
		queue:  queue.NewManager(),
		speed:  1.0,
		subs:   make(map[chan Event]struct{}),
	}
	engine.SetOnTrackEnd(s.handleTrackEnd)
	return s
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	status := s.engine.Status()

	state := State{
		IsPlaying:      status.State == audio.StatePlaying,
		DurationMillis: status.DurationMillis,
		PlaybackSpeed:  s.speed,
		ShuffleEnabled: s.queue.Shuffle(),
		RepeatMode:     s.queue.Repeat(),
		Queue:          s.queue.Items(),
		Volume:         status.Volume,
	}

	if status.State != audio.StateStopped {
		state.CurrentTrack = status.URI
		state.PositionMillis = status.PositionMillis
	} else {
		// A loaded-but-not-started queue still exposes its selected track
		state.CurrentTrack = s.queue.Current()
		state.PositionMillis = s.pendingPositionMillis
	}

	return state
}

// Idle reports whether the session has no current track and nothing queued
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked()
	return state.CurrentTrack == "" && len(state.Queue) == 0
}

// SetQueue replaces the queue, positioning it at startIndex with the given
// start position. Playback is not started.
func (s *Session) SetQueue(tracks []string, startIndex int, startPositionMillis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.SetAt(tracks, startIndex)
	s.pendingPositionMillis = startPositionMillis
}

// Play starts or resumes playback
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.engine.Status()
	switch status.State {
	case audio.StatePlaying:
		return nil
	case audio.StatePaused:
		if err := s.engine.Resume(); err != nil {
			return err
		}
		s.publish(PlayStateChanged{Playing: true})
		return nil
	}

	uri := s.queue.Current()
	if uri == "" {
		uri = s.queue.Next()
	}
	if uri == "" {
		return nil // nothing queued
	}

	startPos := s.pendingPositionMillis
	if err := s.engine.Play(context.Background(), uri, startPos); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, uri, err)
	}
	s.pendingPositionMillis = 0

	s.publish(TrackChanged{URI: uri})
	s.publish(PlayStateChanged{Playing: true})
	return nil
}

// Pause pauses playback
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasPlaying := s.engine.Status().State == audio.StatePlaying
	if err := s.engine.Pause(); err != nil {
		return err
	}
	if wasPlaying {
		s.publish(PlayStateChanged{Playing: false})
	}
	return nil
}

// Stop halts playback and unloads the engine. The queue keeps its position.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.engine.Status().State != audio.StateStopped
	if err := s.engine.Stop(); err != nil {
		return err
	}
	if wasActive {
		s.publish(PlayStateChanged{Playing: false})
	}
	return nil
}

// SeekTo seeks to the given position in the current track
func (s *Session) SeekTo(positionMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positionMillis < 0 {
		positionMillis = 0
	}

	if s.engine.Status().State == audio.StateStopped {
		// Nothing loaded in the engine yet; remember the position for the
		// next Play
		s.pendingPositionMillis = positionMillis
		s.publish(PositionJumped{PositionMillis: positionMillis})
		return nil
	}

	if err := s.engine.Seek(positionMillis); err != nil {
		return err
	}
	s.publish(PositionJumped{PositionMillis: positionMillis})
	return nil
}

// Next advances to the next track in the queue
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(true)
}

// Previous moves to the previous track in the queue
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(false)
}

func (s *Session) advanceLocked(forward bool) error {
	prevIndex, _ := s.queue.Position()

	var uri string
	if forward {
		uri = s.queue.Next()
	} else {
		uri = s.queue.Prev()
	}

	if uri == "" {
		// Queue exhausted
		wasActive := s.engine.Status().State != audio.StateStopped
		if err := s.engine.Stop(); err != nil {
			return err
		}
		if wasActive {
			s.publish(PlayStateChanged{Playing: false})
		}
		return nil
	}

	if err := s.engine.Play(context.Background(), uri, 0); err != nil {
		// Leave the queue position unchanged on an unplayable source
		s.queue.SetIndex(prevIndex)
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, uri, err)
	}
	s.pendingPositionMillis = 0

	s.publish(TrackChanged{URI: uri})
	s.publish(PlayStateChanged{Playing: true})
	return nil
}

// SetShuffle enables or disables shuffle mode
func (s *Session) SetShuffle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetShuffle(enabled)
}

// SetRepeatMode sets the repeat mode
func (s *Session) SetRepeatMode(mode types.RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetRepeat(mode)
}

// MoveQueueItem moves a queue item from one index to another
func (s *Session) MoveQueueItem(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.Move(from, to) {
		return fmt.Errorf("queue move %d -> %d out of range", from, to)
	}
	return nil
}

// RemoveQueueItem removes the queue item at the given index
func (s *Session) RemoveQueueItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.Remove(index) {
		return fmt.Errorf("queue index %d out of range", index)
	}
	return nil
}

// PlayImmediate builds a single-item queue for the given track, applies the
// target volume, and starts playback. Used by the alarm trigger path; safe to
// call before any catalog has loaded.
func (s *Session) PlayImmediate(uri string, targetVolume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevItems := s.queue.Items()
	prevIndex, _ := s.queue.Position()

	s.queue.SetAt([]string{uri}, 0)

	if targetVolume >= 0 && targetVolume <= 1 {
		if err := s.engine.SetVolume(targetVolume); err != nil {
			log.Printf("[SESSION] Failed to set volume for immediate playback: %v", err)
		}
	}

	if err := s.engine.Play(context.Background(), uri, 0); err != nil {
		// Roll the queue back so an unplayable alarm track does not clobber
		// whatever was loaded before
		s.queue.SetAt(prevItems, prevIndex)
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, uri, err)
	}
	s.pendingPositionMillis = 0

	log.Printf("[SESSION] Immediate playback started: %s (volume %.2f)", uri, targetVolume)
	s.publish(TrackChanged{URI: uri})
	s.publish(PlayStateChanged{Playing: true})
	return nil
}

// SetVolume sets the output volume (0.0 - 1.0)
func (s *Session) SetVolume(v float64) error {
	return s.engine.SetVolume(v)
}

// Volume returns the current output volume
func (s *Session) Volume() float64 {
	return s.engine.Volume()
}

// handleTrackEnd advances the queue when a track finishes naturally,
// skipping sources that fail to open
func (s *Session) handleTrackEnd(finished string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("[SESSION] Track ended: %s", finished)

	_, size := s.queue.Position()
	for attempts := 0; attempts < size; attempts++ {
		uri := s.queue.Next()
		if uri == "" {
			s.publish(PlayStateChanged{Playing: false})
			return
		}

		if err := s.engine.Play(context.Background(), uri, 0); err != nil {
			log.Printf("[SESSION] Skipping unavailable track %s: %v", uri, err)
			continue
		}

		s.publish(TrackChanged{URI: uri})
		return
	}

	s.publish(PlayStateChanged{Playing: false})
}

// Close stops playback and releases the engine
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}
