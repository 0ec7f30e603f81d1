//go:build linux

package rtltcp

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// sendNoSignal writes p with MSG_NOSIGNAL so a peer that went away surfaces as
// EPIPE instead of a signal. It loops until p is sent or an error occurs.
func sendNoSignal(conn net.Conn, p []byte) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return conn.Write(p)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		var n int
		var sendErr error
		err = rc.Write(func(fd uintptr) bool {
			n, sendErr = unix.SendmsgN(int(fd), p[total:], nil, nil, unix.MSG_NOSIGNAL)
			return sendErr != unix.EAGAIN
		})
		if err == nil {
			err = sendErr
		}
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, unix.EPIPE
		}
	}
	return total, nil
}
