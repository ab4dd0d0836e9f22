package queue

import (
	"testing"

	"github.com/eplaytime/playtimed/internal/types"
)

func TestNewManager(t *testing.T) {
	m := NewManager()

	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	idx, size := m.Position()
	if idx != -1 {
		t.Errorf("Expected index -1, got %d", idx)
	}
	if size != 0 {
		t.Errorf("Expected size 0, got %d", size)
	}
}

func TestSet(t *testing.T) {
	m := NewManager()

	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})

	idx, size := m.Position()
	if idx != -1 {
		t.Errorf("Expected index -1 after Set, got %d", idx)
	}
	if size != 3 {
		t.Errorf("Expected size 3, got %d", size)
	}
}

func TestSetAt(t *testing.T) {
	m := NewManager()

	m.SetAt([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"}, 1)

	if got := m.Current(); got != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", got)
	}

	// Out-of-range start index leaves nothing selected
	m.SetAt([]string{"/path/1.mp3"}, 5)
	if got := m.Current(); got != "" {
		t.Errorf("Expected no current track, got %s", got)
	}
}

func TestNext(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})

	if got := m.Next(); got != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3, got %s", got)
	}
	if got := m.Next(); got != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", got)
	}
	if got := m.Next(); got != "/path/3.mp3" {
		t.Errorf("Expected /path/3.mp3, got %s", got)
	}

	// End of queue with repeat off
	if got := m.Next(); got != "" {
		t.Errorf("Expected empty at end of queue, got %s", got)
	}
}

func TestNextRepeatAll(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3"})
	m.SetRepeat(types.RepeatAll)

	m.Next()
	m.Next()

	// Wraps back to the first track
	if got := m.Next(); got != "/path/1.mp3" {
		t.Errorf("Expected wrap to /path/1.mp3, got %s", got)
	}
}

func TestNextRepeatOne(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3"})

	m.Next()
	m.SetRepeat(types.RepeatOne)

	if got := m.Next(); got != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 again, got %s", got)
	}
	if got := m.Next(); got != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 again, got %s", got)
	}
}

func TestPrev(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})

	m.Next()
	m.Next()

	if got := m.Prev(); got != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3, got %s", got)
	}
	if got := m.Prev(); got != "" {
		t.Errorf("Expected empty at head of queue, got %s", got)
	}
}

func TestSetIndex(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})

	if !m.SetIndex(2) {
		t.Fatal("SetIndex(2) failed")
	}
	if got := m.Current(); got != "/path/3.mp3" {
		t.Errorf("Expected /path/3.mp3, got %s", got)
	}

	if m.SetIndex(5) {
		t.Error("SetIndex(5) should have failed")
	}
}

func TestShuffleKeepsCurrentTrack(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3"})

	m.SetIndex(2)
	before := m.Current()

	m.SetShuffle(true)
	if got := m.Current(); got != before {
		t.Errorf("Shuffle changed current track: %s -> %s", before, got)
	}

	m.SetShuffle(false)
	if got := m.Current(); got != before {
		t.Errorf("Unshuffle changed current track: %s -> %s", before, got)
	}
}

func TestShuffleCoversAllTracks(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3"})
	m.SetShuffle(true)

	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		uri := m.Next()
		if uri == "" {
			t.Fatalf("Queue exhausted early at step %d", i)
		}
		seen[uri] = true
	}

	if len(seen) != 4 {
		t.Errorf("Shuffle visited %d distinct tracks, want 4", len(seen))
	}
}

func TestRemove(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})
	m.SetIndex(1)

	// Removing before the current index shifts it down
	if !m.Remove(0) {
		t.Fatal("Remove(0) failed")
	}
	if got := m.Current(); got != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3 still current, got %s", got)
	}

	if m.Remove(9) {
		t.Error("Remove(9) should have failed")
	}
}

func TestRemoveCurrent(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})
	m.SetIndex(2)

	if !m.Remove(2) {
		t.Fatal("Remove(2) failed")
	}
	// Index clamps to the last remaining track
	if got := m.Current(); got != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", got)
	}
}

func TestMove(t *testing.T) {
	m := NewManager()
	m.Set([]string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"})
	m.SetIndex(0)

	if !m.Move(0, 2) {
		t.Fatal("Move(0, 2) failed")
	}

	items := m.Items()
	want := []string{"/path/2.mp3", "/path/3.mp3", "/path/1.mp3"}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("items[%d] = %s, want %s", i, items[i], want[i])
		}
	}

	// The moved track is still the current one
	if got := m.Current(); got != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 current after move, got %s", got)
	}
}
