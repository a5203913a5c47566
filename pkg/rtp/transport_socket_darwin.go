//go:build darwin

package rtp

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneSocket applies macOS-specific socket options, grounded on the
// teacher's setSockOptDarwinSpecific (transport_socket_darwin.go):
// SO_REUSEADDR for rebind tolerance and SO_NOSIGPIPE since macOS raises
// SIGPIPE on writes to a closed peer where Linux does not.
func tuneSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
