package rtltcp

import (
	"net"
	"sync/atomic"

	"github.com/quan-to/slog"
)

type Session struct {
	id   string
	conn net.Conn
	log  slog.Instance

	// stopping is set by the supervisor, sendErr by the sender loop. Either
	// one makes the capture callback refuse further blocks.
	stopping atomic.Bool
	sendErr  atomic.Bool

	bytesSent atomic.Uint64
	blocks    atomic.Uint64
	overflows atomic.Uint64
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) stopped() bool {
	return s.stopping.Load() || s.sendErr.Load()
}
