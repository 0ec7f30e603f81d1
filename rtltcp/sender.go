package rtltcp

import (
	"context"
	"time"

	"github.com/racerxdl/hfp_tcp/ringbuffer"
	"github.com/racerxdl/qo100-dedrift/metrics"
)

const (
	chunkLength = 1408
	// warmupPad is extra data required before the very first send
	warmupPad = 32768 * 2
	idleSleep = 250 * time.Microsecond
)

// sendLoop is the only reader of the ring. It sends whole chunks once enough
// data is buffered and sleeps otherwise. A failed send sets sendErr; the loop
// keeps draining without sending until ctx is cancelled.
func (s *Session) sendLoop(ctx context.Context, ring *ringbuffer.Ring, done chan<- struct{}) {
	defer close(done)

	buffer := make([]byte, chunkLength)
	pad := warmupPad

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ring.Available() < chunkLength+pad {
			time.Sleep(idleSleep)
			continue
		}
		pad = 0

		n := ring.Read(buffer, false)
		if n == 0 || s.sendErr.Load() {
			continue
		}

		sent, err := sendNoSignal(s.conn, buffer[:n])
		metrics.BytesOut.Add(float64(sent))
		s.bytesSent.Add(uint64(sent))
		if err != nil {
			s.log.Error("Error sending data: %s", err)
			s.sendErr.Store(true)
		}
	}
}
