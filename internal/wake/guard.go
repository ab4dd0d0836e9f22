// Package wake provides a scoped keep-awake lock and process priority
// elevation for alarm-triggered playback starts.
package wake

import (
	"io"
	"log"
	"sync"
	"time"
)

// inhibitor is the platform-specific keep-awake backend
type inhibitor interface {
	acquire() (io.Closer, error)
}

// Guard acquires a temporary keep-awake lock and elevates process priority.
// Release is deterministic: explicit, on timeout, whichever comes first.
type Guard struct {
	inh inhibitor
}

// NewGuard creates a guard backed by the platform inhibitor. On platforms
// without one the guard degrades to priority elevation only.
func NewGuard() *Guard {
	return &Guard{inh: newInhibitor()}
}

func newGuardWith(inh inhibitor) *Guard {
	return &Guard{inh: inh}
}

// Acquire takes the keep-awake lock and raises process priority. The
// returned release function is idempotent and safe to call from a deferred
// path; the lock is force-released after timeout regardless.
func (g *Guard) Acquire(timeout time.Duration) (func(), error) {
	lock, err := g.inh.acquire()
	if err != nil {
		return nil, err
	}

	restorePriority := elevatePriority()

	var once sync.Once
	var timer *time.Timer

	release := func() {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			if err := lock.Close(); err != nil {
				log.Printf("[WAKE] Failed to release keep-awake lock: %v", err)
			}
			restorePriority()
			log.Printf("[WAKE] Released keep-awake lock")
		})
	}

	timer = time.AfterFunc(timeout, func() {
		log.Printf("[WAKE] Keep-awake lock held past %s, force releasing", timeout)
		release()
	})

	log.Printf("[WAKE] Acquired keep-awake lock (cap %s)", timeout)
	return release, nil
}
