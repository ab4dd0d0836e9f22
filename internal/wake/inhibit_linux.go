//go:build linux

package wake

import (
	"fmt"
	"io"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	login1BusName    = "org.freedesktop.login1"
	login1ObjectPath = "/org/freedesktop/login1"
	inhibitMethod    = "org.freedesktop.login1.Manager.Inhibit"

	inhibitWhat = "sleep:idle"
	inhibitWho  = "playtimed"
	inhibitWhy  = "starting scheduled playback"
	inhibitMode = "block"
)

// logindInhibitor takes systemd-logind inhibitor locks over the system bus.
// The lock is a file descriptor; closing it releases the lock.
type logindInhibitor struct{}

func newInhibitor() inhibitor {
	return &logindInhibitor{}
}

func (l *logindInhibitor) acquire() (io.Closer, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	var fd dbus.UnixFD
	obj := conn.Object(login1BusName, dbus.ObjectPath(login1ObjectPath))
	err = obj.Call(inhibitMethod, 0, inhibitWhat, inhibitWho, inhibitWhy, inhibitMode).Store(&fd)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("logind inhibit failed: %w", err)
	}

	return &inhibitLock{file: os.NewFile(uintptr(fd), "logind-inhibit"), conn: conn}, nil
}

type inhibitLock struct {
	file *os.File
	conn *dbus.Conn
}

func (l *inhibitLock) Close() error {
	err := l.file.Close()
	l.conn.Close()
	return err
}
