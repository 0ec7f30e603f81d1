//go:build !linux

package rtltcp

import "net"

// The Go runtime already ignores SIGPIPE for sockets it does not own as
// stdout/stderr, so a plain Write behaves like a MSG_NOSIGNAL send.
func sendNoSignal(conn net.Conn, p []byte) (int, error) {
	return conn.Write(p)
}
