//go:build linux

package wake

import (
	"log"

	"golang.org/x/sys/unix"
)

const elevatedNice = -10

// elevatePriority raises the process scheduling priority so the OS does not
// starve the playback start. Returns a restore function; failure to elevate
// (typically EPERM for unprivileged processes) is non-fatal.
func elevatePriority() func() {
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		log.Printf("[WAKE] Failed to read process priority: %v", err)
		return func() {}
	}
	// The getpriority syscall returns 20-nice to avoid negative values
	prior := 20 - raw

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, elevatedNice); err != nil {
		log.Printf("[WAKE] Failed to elevate process priority: %v", err)
		return func() {}
	}

	return func() {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, prior); err != nil {
			log.Printf("[WAKE] Failed to restore process priority: %v", err)
		}
	}
}
