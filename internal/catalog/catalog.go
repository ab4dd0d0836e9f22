// Package catalog holds the in-memory view of the track library. The daemon
// never owns scanning logic itself; a Provider supplies the tracks and the
// catalog only indexes what it is given.
package catalog

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a track reference cannot be resolved
var ErrNotFound = errors.New("track not found in catalog")

// Track describes a single playable audio source
type Track struct {
	ID             int64  `json:"id"`
	URI            string `json:"uri"`
	Title          string `json:"title"`
	Artist         string `json:"artist,omitempty"`
	Album          string `json:"album,omitempty"`
	DurationMillis int64  `json:"durationMillis,omitempty"`
	FolderPath     string `json:"folderPath,omitempty"`
	DateAdded      int64  `json:"dateAdded,omitempty"`
}

// Filters narrows the set of tracks returned by a Provider
type Filters struct {
	// MinDurationMillis drops short clips (voice notes, notification sounds)
	MinDurationMillis int64
	// ExcludePathSubstrings drops tracks whose URI contains any of these
	ExcludePathSubstrings []string
}

// Provider is the external track source consumed by the catalog
type Provider interface {
	GetAllTracks(filters Filters) ([]Track, error)
}

// Catalog is an indexed, replaceable snapshot of the track library.
// Lookups are by URI so resolving a playing track is O(1).
type Catalog struct {
	mu     sync.RWMutex
	tracks []Track
	byURI  map[string]int // index into tracks
	loaded bool
}

// New creates an empty, unloaded catalog
func New() *Catalog {
	return &Catalog{
		byURI: make(map[string]int),
	}
}

// Replace swaps in a new set of tracks and marks the catalog loaded
func (c *Catalog) Replace(tracks []Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = make([]Track, len(tracks))
	copy(c.tracks, tracks)

	c.byURI = make(map[string]int, len(tracks))
	for i, t := range c.tracks {
		c.byURI[t.URI] = i
	}
	c.loaded = true
}

// Loaded reports whether the catalog has received at least one track set
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// ByURI resolves a track reference. Returns ErrNotFound for foreign or
// unknown references instead of a zero Track.
func (c *Catalog) ByURI(uri string) (Track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byURI[uri]
	if !ok {
		return Track{}, ErrNotFound
	}
	return c.tracks[i], nil
}

// IndexOf returns the position of a track reference in the catalog order,
// or -1 if the reference is unknown
func (c *Catalog) IndexOf(uri string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byURI[uri]
	if !ok {
		return -1
	}
	return i
}

// Tracks returns a copy of the full track list in catalog order
func (c *Catalog) Tracks() []Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// URIs returns the track references in catalog order
func (c *Catalog) URIs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.tracks))
	for i, t := range c.tracks {
		out[i] = t.URI
	}
	return out
}

// Len returns the number of tracks in the catalog
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}
