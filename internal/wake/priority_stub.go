//go:build !linux

package wake

func elevatePriority() func() {
	return func() {}
}
