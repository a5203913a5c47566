//go:build windows

package rtp

import (
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// tuneSocket applies Windows-specific socket options, grounded on the
// teacher's setSockOptWindowsSpecific (transport_socket_windows.go):
// SO_REUSEADDR plus SO_EXCLUSIVEADDRUSE to stop another process from
// hijacking the RTP/RTCP port.
func tuneSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		handle := syscall.Handle(fd)
		sockErr = syscall.SetsockoptInt(handle, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		_ = syscall.SetsockoptInt(handle, syscall.SOL_SOCKET, windows.SO_EXCLUSIVEADDRUSE, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
