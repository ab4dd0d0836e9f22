package session

// Event is a typed state-change notification emitted by the session.
// Subscribers receive these instead of registering per-field callbacks.
type Event interface {
	sessionEvent()
}

// TrackChanged is emitted when the current track transitions
type TrackChanged struct {
	URI string
}

// PlayStateChanged is emitted when playback starts or stops
type PlayStateChanged struct {
	Playing bool
}

// PositionJumped is emitted on an explicit position discontinuity (seek)
type PositionJumped struct {
	PositionMillis int64
}

func (TrackChanged) sessionEvent()     {}
func (PlayStateChanged) sessionEvent() {}
func (PositionJumped) sessionEvent()   {}

const eventBufferSize = 16

// Subscribe registers an event channel. The returned cancel function removes
// the subscription; events are dropped, never blocked on, if the subscriber
// falls behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// publish delivers an event to all subscribers without blocking
func (s *Session) publish(ev Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall playback
		}
	}
}
