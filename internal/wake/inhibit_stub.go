//go:build !linux

package wake

import "io"

// noopInhibitor is used on platforms without a keep-awake backend
type noopInhibitor struct{}

func newInhibitor() inhibitor {
	return &noopInhibitor{}
}

func (n *noopInhibitor) acquire() (io.Closer, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Close() error { return nil }
