//go:build !windows

package listener

import "golang.org/x/sys/unix"

// setReusePort marks the listening socket SO_REUSEPORT before bind, so
// every one of the listener's read loops can hold its own socket on the
// same host:port and the kernel spreads incoming datagrams across them.
func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
