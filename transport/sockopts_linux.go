//go:build linux

// File: transport/sockopts_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetNoDelay disables Nagle's algorithm on the raw socket backing conn,
// reducing latency for the small, latency-sensitive frames a WebSocket
// connection typically exchanges. A non-TCP conn (e.g. a net.Pipe used
// in tests) is left untouched.
func SetNoDelay(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
