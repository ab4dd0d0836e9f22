package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	maxSleepCap = 60 * time.Second

	// Inexact registrations may fire up to this much late
	inexactGranularity = time.Minute
)

// ErrPermissionDenied reports that exact-timer registration is not available.
// Callers degrade to an inexact registration instead of failing.
var ErrPermissionDenied = errors.New("exact timer permission denied")

// Payload is carried from registration to the fire callback
type Payload struct {
	EntryID  int64
	TrackURI string
}

// timerEvent is a pending registration in the timer heap. In-memory only;
// the heap is rebuilt from the schedule store on restart.
type timerEvent struct {
	EntryID   int64
	TrackURI  string
	TriggerAt time.Time
}

// Registrar is the exact-timer registration surface. A registration replaces
// any prior one for the same entry id.
type Registrar interface {
	RegisterExact(triggerAt time.Time, payload Payload) error
	RegisterInexact(triggerAt time.Time, payload Payload) error
	Cancel(entryID int64)
}

// TimerService fires registered payloads at their trigger instants. It runs a
// single goroutine over a min-heap and sleeps until the earliest trigger,
// capped so wall-clock adjustments are picked up within a minute.
type TimerService struct {
	addChan    chan timerEvent
	removeChan chan int64
	ctx        context.Context

	exactAllowed bool

	mu        sync.Mutex
	onTrigger func(Payload)
}

// NewTimerService creates and starts a timer service. exactAllowed=false
// emulates a platform that denies the exact-timer privilege: exact
// registrations fail with ErrPermissionDenied and only inexact ones are
// accepted. The goroutine exits when ctx is cancelled.
func NewTimerService(ctx context.Context, exactAllowed bool) *TimerService {
	t := &TimerService{
		addChan:      make(chan timerEvent, 64),
		removeChan:   make(chan int64, 64),
		ctx:          ctx,
		exactAllowed: exactAllowed,
	}
	go t.run()
	return t
}

// SetOnTrigger sets the callback invoked when a registration fires
func (t *TimerService) SetOnTrigger(fn func(Payload)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrigger = fn
}

// RegisterExact registers a timer that fires at exactly triggerAt
func (t *TimerService) RegisterExact(triggerAt time.Time, payload Payload) error {
	if !t.exactAllowed {
		return ErrPermissionDenied
	}
	t.register(triggerAt, payload)
	return nil
}

// RegisterInexact registers a timer with coarse granularity: the fire
// instant is deferred to the next minute boundary at or after triggerAt
func (t *TimerService) RegisterInexact(triggerAt time.Time, payload Payload) error {
	t.register(roundUpToGranularity(triggerAt), payload)
	return nil
}

// roundUpToGranularity returns the first granularity boundary at or after
// the given instant. An instant already on a boundary is unchanged.
func roundUpToGranularity(triggerAt time.Time) time.Time {
	rounded := triggerAt.Truncate(inexactGranularity)
	if rounded.Before(triggerAt) {
		rounded = rounded.Add(inexactGranularity)
	}
	return rounded
}

func (t *TimerService) register(triggerAt time.Time, payload Payload) {
	// One timer per entry: drop any prior registration first
	t.Cancel(payload.EntryID)

	select {
	case t.addChan <- timerEvent{EntryID: payload.EntryID, TrackURI: payload.TrackURI, TriggerAt: triggerAt}:
	case <-t.ctx.Done():
	}
}

// Cancel unregisters the timer for the given entry id
func (t *TimerService) Cancel(entryID int64) {
	select {
	case t.removeChan <- entryID:
	case <-t.ctx.Done():
	}
}

// run is the timer goroutine. It maintains the min-heap and sleeps with a
// 60s max-sleep cap so it never oversleeps a newly added earlier event by
// more than one wakeup.
func (t *TimerService) run() {
	h := &timerHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			// Nothing pending, block on the channels alone
			return nil
		}
		dur := time.Until((*h)[0].TriggerAt)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-t.ctx.Done():
			return

		case event := <-t.addChan:
			heapPush(h, event)
			timerCh = resetTimer()

		case id := <-t.removeChan:
			heapRemoveByID(h, id)
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
				event := heapPop(h)

				t.mu.Lock()
				fn := t.onTrigger
				t.mu.Unlock()

				if fn == nil {
					log.Printf("[TIMER] Dropping fire for entry %d: no trigger handler installed", event.EntryID)
					continue
				}
				// Fire off the timer goroutine so a slow handler cannot
				// delay the next registration
				go fn(Payload{EntryID: event.EntryID, TrackURI: event.TrackURI})
			}
			timerCh = resetTimer()
		}
	}
}
