package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eplaytime/playtimed/internal/audio"
	"github.com/eplaytime/playtimed/internal/types"
)

// fakeEngine records commands without touching real audio backends
type fakeEngine struct {
	mu         sync.Mutex
	state      audio.State
	uri        string
	position   int64
	volume     float64
	failFor    map[string]bool
	onTrackEnd audio.TrackEndCallback
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state:   audio.StateStopped,
		volume:  1.0,
		failFor: make(map[string]bool),
	}
}

func (f *fakeEngine) Play(ctx context.Context, uri string, startMillis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[uri] {
		return errors.New("no such file")
	}
	f.state = audio.StatePlaying
	f.uri = uri
	f.position = startMillis
	return nil
}

func (f *fakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == audio.StatePlaying {
		f.state = audio.StatePaused
	}
	return nil
}

func (f *fakeEngine) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == audio.StatePaused {
		f.state = audio.StatePlaying
	}
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = audio.StateStopped
	f.uri = ""
	f.position = 0
	return nil
}

func (f *fakeEngine) Seek(positionMillis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == audio.StateStopped {
		return errors.New("not playing")
	}
	f.position = positionMillis
	return nil
}

func (f *fakeEngine) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v < 0 || v > 1 {
		return errors.New("volume out of range")
	}
	f.volume = v
	return nil
}

func (f *fakeEngine) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeEngine) Status() audio.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return audio.Status{
		State:          f.state,
		URI:            f.uri,
		PositionMillis: f.position,
		DurationMillis: 180000,
		Volume:         f.volume,
	}
}

func (f *fakeEngine) SetOnTrackEnd(callback audio.TrackEndCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrackEnd = callback
}

func (f *fakeEngine) Close() error { return nil }

// finishTrack simulates a track ending naturally
func (f *fakeEngine) finishTrack() {
	f.mu.Lock()
	uri := f.uri
	f.state = audio.StateStopped
	f.uri = ""
	f.position = 0
	cb := f.onTrackEnd
	f.mu.Unlock()
	if cb != nil {
		cb(uri)
	}
}

func TestSetQueueThenPlay(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 1, 42000)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	state := s.State()
	if state.CurrentTrack != "/music/b.mp3" {
		t.Errorf("Expected /music/b.mp3, got %s", state.CurrentTrack)
	}
	if !state.IsPlaying {
		t.Error("Expected playing state")
	}
	if eng.position != 42000 {
		t.Errorf("Expected start position 42000, got %d", eng.position)
	}
}

func TestPlayWithEmptyQueue(t *testing.T) {
	s := New(newFakeEngine())

	if err := s.Play(); err != nil {
		t.Fatalf("Play on empty queue should be a no-op, got %v", err)
	}
	if s.State().IsPlaying {
		t.Error("Nothing should be playing")
	}
}

func TestStateExposesQueueTrackWhileStopped(t *testing.T) {
	s := New(newFakeEngine())

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 0, 5000)

	state := s.State()
	if state.IsPlaying {
		t.Error("Queue load should not start playback")
	}
	if state.CurrentTrack != "/music/a.mp3" {
		t.Errorf("Expected selected track /music/a.mp3, got %s", state.CurrentTrack)
	}
	if state.PositionMillis != 5000 {
		t.Errorf("Expected pending position 5000, got %d", state.PositionMillis)
	}
}

func TestPauseResume(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s.State().IsPlaying {
		t.Error("Expected paused state")
	}

	// Play on a paused session resumes, keeping the same track
	if err := s.Play(); err != nil {
		t.Fatalf("Resume via Play failed: %v", err)
	}
	state := s.State()
	if !state.IsPlaying || state.CurrentTrack != "/music/a.mp3" {
		t.Errorf("Expected /music/a.mp3 playing, got %s playing=%v", state.CurrentTrack, state.IsPlaying)
	}
}

func TestSeekWhileStoppedDefersPosition(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.SeekTo(30000); err != nil {
		t.Fatalf("SeekTo on stopped session failed: %v", err)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if eng.position != 30000 {
		t.Errorf("Expected playback to start at deferred position 30000, got %d", eng.position)
	}
}

func TestNextAndPrevious(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3", "/music/c.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got := s.State().CurrentTrack; got != "/music/b.mp3" {
		t.Errorf("Expected /music/b.mp3, got %s", got)
	}

	if err := s.Previous(); err != nil {
		t.Fatalf("Previous failed: %v", err)
	}
	if got := s.State().CurrentTrack; got != "/music/a.mp3" {
		t.Errorf("Expected /music/a.mp3, got %s", got)
	}
}

func TestNextUnavailableLeavesQueuePosition(t *testing.T) {
	eng := newFakeEngine()
	eng.failFor["/music/b.mp3"] = true
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	err := s.Next()
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable, got %v", err)
	}

	// The queue position must be unchanged so a retry targets the same track
	if err := s.Previous(); err != nil {
		t.Fatalf("Previous after failed Next: %v", err)
	}
	if got := s.State().CurrentTrack; got != "/music/a.mp3" {
		t.Errorf("Expected queue position preserved at index 0 area, got %s", got)
	}
}

func TestTrackEndAdvancesQueue(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	eng.finishTrack()

	state := s.State()
	if state.CurrentTrack != "/music/b.mp3" {
		t.Errorf("Expected advance to /music/b.mp3, got %s", state.CurrentTrack)
	}
	if !state.IsPlaying {
		t.Error("Expected playback to continue")
	}
}

func TestTrackEndSkipsUnavailable(t *testing.T) {
	eng := newFakeEngine()
	eng.failFor["/music/b.mp3"] = true
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3", "/music/c.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	eng.finishTrack()

	if got := s.State().CurrentTrack; got != "/music/c.mp3" {
		t.Errorf("Expected unavailable track skipped, got %s", got)
	}
}

func TestTrackEndStopsAtQueueEnd(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	eng.finishTrack()

	if s.State().IsPlaying {
		t.Error("Expected playback stopped at queue end")
	}
}

func TestTrackEndRepeatAll(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 1, 0)
	s.SetRepeatMode(types.RepeatAll)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	eng.finishTrack()

	if got := s.State().CurrentTrack; got != "/music/a.mp3" {
		t.Errorf("Expected wrap to /music/a.mp3, got %s", got)
	}
}

func TestPlayImmediate(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 0, 0)

	if err := s.PlayImmediate("/music/alarm.mp3", 0.8); err != nil {
		t.Fatalf("PlayImmediate failed: %v", err)
	}

	state := s.State()
	if state.CurrentTrack != "/music/alarm.mp3" {
		t.Errorf("Expected /music/alarm.mp3, got %s", state.CurrentTrack)
	}
	if !state.IsPlaying {
		t.Error("Expected playing state")
	}
	if len(state.Queue) != 1 {
		t.Errorf("Expected single-item queue, got %d items", len(state.Queue))
	}
	if eng.Volume() != 0.8 {
		t.Errorf("Expected volume 0.8, got %f", eng.Volume())
	}
}

func TestPlayImmediateUnavailableRollsBack(t *testing.T) {
	eng := newFakeEngine()
	eng.failFor["/music/gone.mp3"] = true
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3", "/music/b.mp3"}, 1, 0)

	err := s.PlayImmediate("/music/gone.mp3", 0.8)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable, got %v", err)
	}

	state := s.State()
	if len(state.Queue) != 2 {
		t.Errorf("Expected original queue preserved, got %d items", len(state.Queue))
	}
	if state.CurrentTrack != "/music/b.mp3" {
		t.Errorf("Expected queue position preserved at /music/b.mp3, got %s", state.CurrentTrack)
	}
}

func TestEventSubscription(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	events, cancel := s.Subscribe()
	defer cancel()

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	var gotTrack, gotPlay bool
	timeout := time.After(2 * time.Second)
	for !gotTrack || !gotPlay {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case TrackChanged:
				if e.URI != "/music/a.mp3" {
					t.Errorf("Unexpected TrackChanged URI %s", e.URI)
				}
				gotTrack = true
			case PlayStateChanged:
				if !e.Playing {
					t.Error("Expected Playing=true")
				}
				gotPlay = true
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for events (track=%v play=%v)", gotTrack, gotPlay)
		}
	}
}

func TestSeekEmitsPositionJumped(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	events, cancel := s.Subscribe()
	defer cancel()

	if err := s.SeekTo(60000); err != nil {
		t.Fatalf("SeekTo failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if jump, ok := ev.(PositionJumped); ok {
				if jump.PositionMillis != 60000 {
					t.Errorf("Expected jump to 60000, got %d", jump.PositionMillis)
				}
				return
			}
		case <-timeout:
			t.Fatal("Timed out waiting for PositionJumped")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	eng := newFakeEngine()
	s := New(eng)

	events, cancel := s.Subscribe()
	cancel()

	s.SetQueue([]string{"/music/a.mp3"}, 0, 0)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected no delivery after unsubscribe")
		}
	default:
	}
}
