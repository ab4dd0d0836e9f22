package catalog

import (
	"errors"
	"testing"
)

func sampleTracks() []Track {
	return []Track{
		{ID: 1, URI: "/music/a.mp3", Title: "A"},
		{ID: 2, URI: "/music/b.mp3", Title: "B"},
		{ID: 3, URI: "/music/c.mp3", Title: "C"},
	}
}

func TestNewIsUnloaded(t *testing.T) {
	c := New()

	if c.Loaded() {
		t.Error("Expected new catalog to be unloaded")
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty catalog, got %d tracks", c.Len())
	}
}

func TestReplaceIndexesByURI(t *testing.T) {
	c := New()
	c.Replace(sampleTracks())

	if !c.Loaded() {
		t.Error("Expected catalog to be loaded after Replace")
	}

	track, err := c.ByURI("/music/b.mp3")
	if err != nil {
		t.Fatalf("ByURI failed: %v", err)
	}
	if track.ID != 2 || track.Title != "B" {
		t.Errorf("Got wrong track: %+v", track)
	}
}

func TestByURINotFound(t *testing.T) {
	c := New()
	c.Replace(sampleTracks())

	_, err := c.ByURI("/music/missing.mp3")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestIndexOf(t *testing.T) {
	c := New()
	c.Replace(sampleTracks())

	if idx := c.IndexOf("/music/c.mp3"); idx != 2 {
		t.Errorf("Expected index 2, got %d", idx)
	}
	if idx := c.IndexOf("/music/missing.mp3"); idx != -1 {
		t.Errorf("Expected -1 for unknown URI, got %d", idx)
	}
}

func TestReplaceDropsOldEntries(t *testing.T) {
	c := New()
	c.Replace(sampleTracks())
	c.Replace([]Track{{ID: 9, URI: "/music/z.mp3", Title: "Z"}})

	if _, err := c.ByURI("/music/a.mp3"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old entry to be gone after Replace")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 track, got %d", c.Len())
	}
}

func TestURIsPreserveOrder(t *testing.T) {
	c := New()
	c.Replace(sampleTracks())

	uris := c.URIs()
	want := []string{"/music/a.mp3", "/music/b.mp3", "/music/c.mp3"}
	for i, uri := range want {
		if uris[i] != uri {
			t.Errorf("URIs[%d] = %s, want %s", i, uris[i], uri)
		}
	}
}

func TestExcludedPath(t *testing.T) {
	tests := []struct {
		path       string
		substrings []string
		want       bool
	}{
		{"/music/song.mp3", nil, false},
		{"/music/Recordings/call.mp3", []string{"Recordings"}, true},
		{"/music/song.mp3", []string{"Recordings"}, false},
		{"/music/song.mp3", []string{""}, false},
	}

	for _, tt := range tests {
		if got := excludedPath(tt.path, tt.substrings); got != tt.want {
			t.Errorf("excludedPath(%q, %v) = %v, want %v", tt.path, tt.substrings, got, tt.want)
		}
	}
}
