//go:build windows

package listener

// SO_REUSEPORT has no Windows equivalent; a single listener is already the
// common case there, so the control hook is a no-op.
func setReusePort(fd uintptr) error {
	return nil
}
