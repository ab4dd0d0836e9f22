package scheduler

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eplaytime/playtimed/internal/store"
)

type fakeSession struct {
	mu        sync.Mutex
	volume    float64
	playedURI string
	playedVol float64
	playCalls int
	failPlay  bool
}

func (f *fakeSession) PlayImmediate(uri string, targetVolume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPlay {
		return errors.New("source unavailable")
	}
	f.playedURI = uri
	f.playedVol = targetVolume
	f.playCalls++
	f.volume = targetVolume
	return nil
}

func (f *fakeSession) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	return nil
}

func (f *fakeSession) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

type fakeGuard struct {
	mu       sync.Mutex
	acquires int
	releases int
	failNext bool
}

func (f *fakeGuard) Acquire(timeout time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return nil, errors.New("inhibit unavailable")
	}
	f.acquires++
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.releases++
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeGuard) balanced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires == f.releases
}

// fakeRegistrar records registrations without running timers
type fakeRegistrar struct {
	mu        sync.Mutex
	exact     []Payload
	denied    bool
	inexact   []Payload
	cancelled []int64
}

func (f *fakeRegistrar) RegisterExact(at time.Time, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return ErrPermissionDenied
	}
	f.exact = append(f.exact, p)
	return nil
}

func (f *fakeRegistrar) RegisterInexact(at time.Time, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inexact = append(f.inexact, p)
	return nil
}

func (f *fakeRegistrar) Cancel(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
}

func (f *fakeRegistrar) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exact) + len(f.inexact)
}

type handlerFixture struct {
	store     *store.Store
	session   *fakeSession
	guard     *fakeGuard
	registrar *fakeRegistrar
	handler   *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "playtime.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	session := &fakeSession{volume: 0.4}
	guard := &fakeGuard{}
	registrar := &fakeRegistrar{}
	engine := NewEngine(registrar)

	return &handlerFixture{
		store:     s,
		session:   session,
		guard:     guard,
		registrar: registrar,
		handler:   NewHandler(s, session, guard, engine),
	}
}

func (fx *handlerFixture) createEntry(t *testing.T, entry store.ScheduledEntry) *store.ScheduledEntry {
	t.Helper()
	created, err := fx.store.CreateEntry(entry)
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	return created
}

func TestOneTimeEntryFiresOnceAndDisables(t *testing.T) {
	fx := newHandlerFixture(t)
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
	})

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	if fx.session.playedURI != "/music/alarm.mp3" || fx.session.playedVol != 0.9 {
		t.Errorf("Unexpected playback: %s at %f", fx.session.playedURI, fx.session.playedVol)
	}

	got, _ := fx.store.GetEntry(entry.ID)
	if got.Enabled {
		t.Error("One-time entry must be disabled after firing")
	}
	if fx.registrar.registrations() != 0 {
		t.Error("One-time entry must never be rearmed")
	}
	if !fx.guard.balanced() {
		t.Error("Wake guard not released")
	}

	// A second fire for the now-disabled entry is a silent no-op
	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})
	if fx.session.playCalls != 1 {
		t.Errorf("Disabled entry fired again, playCalls=%d", fx.session.playCalls)
	}
}

func TestRepeatingEntryAlwaysRearms(t *testing.T) {
	fx := newHandlerFixture(t)
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
		RepeatDays: []string{"MON", "WED"},
	})
	// Fire on a member day
	fx.handler.now = func() time.Time { return time.Date(2024, 3, 11, 7, 30, 0, 0, time.Local) } // Monday

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	if fx.session.playCalls != 1 {
		t.Errorf("Expected playback on member day, playCalls=%d", fx.session.playCalls)
	}
	if fx.registrar.registrations() != 1 {
		t.Errorf("Repeating entry must be rearmed, got %d registrations", fx.registrar.registrations())
	}
	got, _ := fx.store.GetEntry(entry.ID)
	if !got.Enabled {
		t.Error("Repeating entry must stay enabled")
	}
}

func TestRepeatingEntryNonMemberDaySkipsPlaybackButRearms(t *testing.T) {
	fx := newHandlerFixture(t)
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
		RepeatDays: []string{"MON", "WED"},
	})
	fx.handler.now = func() time.Time { return time.Date(2024, 3, 12, 7, 30, 0, 0, time.Local) } // Tuesday

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	if fx.session.playCalls != 0 {
		t.Error("Playback must not start on a non-member day")
	}
	if fx.registrar.registrations() != 1 {
		t.Errorf("Timer must still be rearmed, got %d registrations", fx.registrar.registrations())
	}
	if !fx.guard.balanced() {
		t.Error("Wake guard not released")
	}
}

func TestDeletedEntryAborts(t *testing.T) {
	fx := newHandlerFixture(t)

	fx.handler.HandleTrigger(Payload{EntryID: 42, TrackURI: "/gone.mp3"})

	if fx.session.playCalls != 0 {
		t.Error("Playback must not start for a deleted entry")
	}
	if fx.registrar.registrations() != 0 {
		t.Error("Deleted entry must not be rearmed")
	}
	if !fx.guard.balanced() {
		t.Error("Wake guard not released")
	}
}

func TestGuardFailureStillPlays(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.guard.failNext = true
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
	})

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	if fx.session.playCalls != 1 {
		t.Error("A failed wake guard must not prevent playback")
	}
}

func TestVolumeOverridePersistedAndRestored(t *testing.T) {
	fx := newHandlerFixture(t)
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
	})

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	prior, ok, err := fx.store.LoadVolumeOverride()
	if err != nil || !ok {
		t.Fatalf("Expected persisted override, ok=%v err=%v", ok, err)
	}
	if prior != 0.4 {
		t.Errorf("Expected prior volume 0.4, got %f", prior)
	}
	if fx.session.Volume() != 0.9 {
		t.Errorf("Expected overridden volume 0.9, got %f", fx.session.Volume())
	}

	fx.handler.RestorePriorVolume()

	if fx.session.Volume() != 0.4 {
		t.Errorf("Expected restored volume 0.4, got %f", fx.session.Volume())
	}
	if _, ok, _ := fx.store.LoadVolumeOverride(); ok {
		t.Error("Override record must be cleared after restore")
	}

	// Restoring again is a no-op
	fx.session.SetVolume(0.7)
	fx.handler.RestorePriorVolume()
	if fx.session.Volume() != 0.7 {
		t.Error("Second restore must be a no-op")
	}
}

func TestFailedPlaybackClearsOverride(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.session.failPlay = true
	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/gone.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
	})

	fx.handler.HandleTrigger(Payload{EntryID: entry.ID, TrackURI: entry.TrackURI})

	if _, ok, _ := fx.store.LoadVolumeOverride(); ok {
		t.Error("Override record must not outlive a failed playback start")
	}
	got, _ := fx.store.GetEntry(entry.ID)
	if !got.Enabled {
		t.Error("One-time entry must stay enabled when playback never started")
	}
}

func TestRecoverVolumeOverrideAfterCrash(t *testing.T) {
	fx := newHandlerFixture(t)

	// Simulate a crash mid-alarm: the record exists, volume is still raised
	if err := fx.store.SaveVolumeOverride(0.3); err != nil {
		t.Fatalf("SaveVolumeOverride failed: %v", err)
	}
	fx.session.SetVolume(1.0)

	fx.handler.RecoverVolumeOverride()

	if fx.session.Volume() != 0.3 {
		t.Errorf("Expected recovered volume 0.3, got %f", fx.session.Volume())
	}
	if _, ok, _ := fx.store.LoadVolumeOverride(); ok {
		t.Error("Override record must be cleared after recovery")
	}
}

func TestScheduleDegradesToInexact(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.registrar.denied = true
	engine := NewEngine(fx.registrar)

	entry := fx.createEntry(t, store.ScheduledEntry{
		TrackURI: "/music/alarm.mp3", Hour: 7, Minute: 30, Enabled: true, TargetVolume: 0.9,
	})

	armed := engine.Schedule(entry)
	if armed.IsZero() {
		t.Fatal("Expected inexact fallback, got dropped registration")
	}
	if len(fx.registrar.inexact) != 1 {
		t.Errorf("Expected 1 inexact registration, got %d", len(fx.registrar.inexact))
	}
}

func TestRescheduleAll(t *testing.T) {
	fx := newHandlerFixture(t)
	engine := NewEngine(fx.registrar)

	a := fx.createEntry(t, store.ScheduledEntry{TrackURI: "/a.mp3", Hour: 6, Minute: 0, Enabled: true, TargetVolume: 0.5})
	b := fx.createEntry(t, store.ScheduledEntry{TrackURI: "/b.mp3", Hour: 7, Minute: 0, Enabled: true, TargetVolume: 0.5, RepeatDays: []string{"SAT"}})
	fx.createEntry(t, store.ScheduledEntry{TrackURI: "/c.mp3", Hour: 8, Minute: 0, Enabled: false, TargetVolume: 0.5})

	enabled, err := fx.store.ListEnabledEntries()
	if err != nil {
		t.Fatalf("ListEnabledEntries failed: %v", err)
	}
	engine.RescheduleAll(enabled)

	if got := fx.registrar.registrations(); got != 2 {
		t.Errorf("Expected 2 registrations (entries %d and %d), got %d", a.ID, b.ID, got)
	}
}
