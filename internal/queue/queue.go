// Package queue manages the ordered list of track references the session
// plays through, including shuffle order and repeat behavior.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/eplaytime/playtimed/internal/types"
)

// Manager manages the playback queue
type Manager struct {
	mu           sync.RWMutex
	items        []string // track references
	index        int      // current position in items (or shuffleOrder if shuffled)
	shuffle      bool
	shuffleOrder []int // shuffled indices into items
	repeat       types.RepeatMode
	rng          *rand.Rand
}

// NewManager creates a new queue manager
func NewManager() *Manager {
	return &Manager{
		items:        make([]string, 0),
		index:        -1,
		repeat:       types.RepeatOff,
		shuffleOrder: make([]int, 0),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Set replaces the entire queue with new track references.
// The current index resets; playback is not affected here.
func (m *Manager) Set(uris []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make([]string, len(uris))
	copy(m.items, uris)
	m.index = -1

	if m.shuffle {
		m.generateShuffleOrder()
	}
}

// SetAt replaces the queue and positions the index at startIndex.
// Used when adopting or restoring a session mid-list.
func (m *Manager) SetAt(uris []string, startIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make([]string, len(uris))
	copy(m.items, uris)

	if startIndex < 0 || startIndex >= len(m.items) {
		m.index = -1
	} else {
		m.index = startIndex
	}

	if m.shuffle {
		m.generateShuffleOrder()
		// Keep the selected track first in shuffle order
		if m.index >= 0 {
			m.promoteToShuffleFront(m.index)
			m.index = 0
		}
	}
}

// Clear empties the queue
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make([]string, 0)
	m.shuffleOrder = make([]int, 0)
	m.index = -1
}

// Next moves to the next track and returns its reference.
// Returns "" when the queue is exhausted.
func (m *Manager) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return ""
	}

	// Repeat one - stay on the current track
	if m.repeat == types.RepeatOne && m.index >= 0 {
		if itemIdx := m.getItemIndex(m.index); itemIdx >= 0 && itemIdx < len(m.items) {
			return m.items[itemIdx]
		}
	}

	m.index++

	maxIndex := m.getMaxIndex()
	if m.index >= maxIndex {
		if m.repeat == types.RepeatAll {
			m.index = 0
			// Re-shuffle when looping back
			if m.shuffle {
				m.generateShuffleOrder()
			}
		} else {
			m.index = maxIndex - 1
			return ""
		}
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		return ""
	}
	return m.items[itemIdx]
}

// Prev moves to the previous track and returns its reference.
// Returns "" at the head of the queue unless repeat-all wraps around.
func (m *Manager) Prev() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return ""
	}

	if m.repeat == types.RepeatOne && m.index >= 0 {
		if itemIdx := m.getItemIndex(m.index); itemIdx >= 0 && itemIdx < len(m.items) {
			return m.items[itemIdx]
		}
	}

	m.index--

	if m.index < 0 {
		if m.repeat == types.RepeatAll {
			m.index = m.getMaxIndex() - 1
		} else {
			m.index = 0
			return ""
		}
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		return ""
	}
	return m.items[itemIdx]
}

// getItemIndex returns the actual item index for the given position index.
// If shuffle is enabled, it looks up the shuffled order.
func (m *Manager) getItemIndex(posIndex int) int {
	if !m.shuffle || len(m.shuffleOrder) == 0 {
		return posIndex
	}
	if posIndex < 0 || posIndex >= len(m.shuffleOrder) {
		return -1
	}
	return m.shuffleOrder[posIndex]
}

func (m *Manager) getMaxIndex() int {
	if m.shuffle && len(m.shuffleOrder) > 0 {
		return len(m.shuffleOrder)
	}
	return len(m.items)
}

// generateShuffleOrder creates a new shuffled order of indices
func (m *Manager) generateShuffleOrder() {
	n := len(m.items)
	m.shuffleOrder = make([]int, n)
	for i := 0; i < n; i++ {
		m.shuffleOrder[i] = i
	}
	// Fisher-Yates shuffle
	for i := n - 1; i > 0; i-- {
		j := m.rng.Intn(i + 1)
		m.shuffleOrder[i], m.shuffleOrder[j] = m.shuffleOrder[j], m.shuffleOrder[i]
	}
}

// promoteToShuffleFront moves the given item index to shuffle position 0
func (m *Manager) promoteToShuffleFront(itemIdx int) {
	for i, idx := range m.shuffleOrder {
		if idx == itemIdx {
			m.shuffleOrder[0], m.shuffleOrder[i] = m.shuffleOrder[i], m.shuffleOrder[0]
			return
		}
	}
}

// Current returns the current track reference, or "" if none is selected
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.index < 0 {
		return ""
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		return ""
	}
	return m.items[itemIdx]
}

// SetIndex sets the current queue index
func (m *Manager) SetIndex(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.items) {
		return false
	}

	m.index = index
	return true
}

// Position returns the current index and queue size
func (m *Manager) Position() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.index, len(m.items)
}

// Items returns a copy of all track references in the queue
func (m *Manager) Items() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]string, len(m.items))
	copy(items, m.items)
	return items
}

// SetShuffle enables or disables shuffle mode
func (m *Manager) SetShuffle(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasEnabled := m.shuffle
	m.shuffle = enabled

	if enabled && !wasEnabled {
		m.generateShuffleOrder()

		// Keep the current track playing: move it to shuffle position 0
		if m.index >= 0 && m.index < len(m.items) {
			m.promoteToShuffleFront(m.index)
			m.index = 0
		}
	} else if !enabled && wasEnabled {
		// Restore linear order: map shuffle position back to the item index
		if m.index >= 0 && m.index < len(m.shuffleOrder) {
			m.index = m.shuffleOrder[m.index]
		}
		m.shuffleOrder = nil
	}
}

// Shuffle returns whether shuffle is enabled
func (m *Manager) Shuffle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.shuffle
}

// SetRepeat sets the repeat mode
func (m *Manager) SetRepeat(mode types.RepeatMode) {
	m.mu.Lock()
	m.repeat = mode
	m.mu.Unlock()
}

// Repeat returns the current repeat mode
func (m *Manager) Repeat() types.RepeatMode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.repeat
}

// Remove removes the item at the specified index (item index, not shuffle position)
func (m *Manager) Remove(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.items) {
		return false
	}

	m.items = append(m.items[:index], m.items[index+1:]...)

	if m.shuffle && len(m.shuffleOrder) > 0 {
		// Drop the index from shuffle order and renumber the rest
		newOrder := make([]int, 0, len(m.shuffleOrder)-1)
		removedPos := -1
		for i, idx := range m.shuffleOrder {
			if idx == index {
				removedPos = i
				continue
			}
			if idx > index {
				newOrder = append(newOrder, idx-1)
			} else {
				newOrder = append(newOrder, idx)
			}
		}
		m.shuffleOrder = newOrder

		if removedPos >= 0 && removedPos < m.index {
			m.index--
		} else if removedPos == m.index && m.index >= len(m.shuffleOrder) {
			m.index = len(m.shuffleOrder) - 1
		}
	} else {
		if index < m.index {
			m.index--
		} else if index == m.index {
			// The current track was removed; the same index now points at the
			// next track
			if m.index >= len(m.items) {
				m.index = len(m.items) - 1
			}
		}
	}

	return true
}

// Move moves an item from one index to another
func (m *Manager) Move(fromIndex, toIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fromIndex < 0 || fromIndex >= len(m.items) {
		return false
	}
	if toIndex < 0 || toIndex >= len(m.items) {
		return false
	}
	if fromIndex == toIndex {
		return true
	}

	item := m.items[fromIndex]
	m.items = append(m.items[:fromIndex], m.items[fromIndex+1:]...)
	m.items = append(m.items[:toIndex], append([]string{item}, m.items[toIndex:]...)...)

	// In shuffle mode the shuffle order drives playback, so only the linear
	// index needs adjusting
	if !m.shuffle {
		if m.index == fromIndex {
			m.index = toIndex
		} else if fromIndex < m.index && toIndex >= m.index {
			m.index--
		} else if fromIndex > m.index && toIndex <= m.index {
			m.index++
		}
	}

	return true
}
