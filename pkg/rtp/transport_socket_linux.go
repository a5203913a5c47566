//go:build linux

package rtp

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneSocket applies Linux-specific socket options for low-latency RTP
// transport: SO_REUSEADDR for rebind tolerance and SO_PRIORITY for
// interactive traffic scheduling. Grounded on the teacher's
// setSockOptLinuxSpecific/setSockOptVoiceOptimizations
// (transport_socket_linux.go), trimmed to the options that matter for a
// control-plane RTP/RTCP session rather than a full media pipeline.
func tuneSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		// SO_PRIORITY is a best-effort hint; unsupported environments
		// (containers, restricted namespaces) are not fatal.
		_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_PRIORITY, 6)
	})
	if err != nil {
		return err
	}
	return sockErr
}
