package rtltcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Traffic totals live in qo100-dedrift/metrics, these cover the sample path.
var (
	ringOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hfptcp_ring_overflow_blocks_total",
		Help: "Capture blocks written while the ring buffer was more than half full",
	})
	ringWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hfptcp_ring_write_errors_total",
		Help: "Capture blocks rejected by the ring buffer",
	})
	capturedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hfptcp_captured_blocks_total",
		Help: "Capture blocks encoded into the ring buffer",
	})
	rejectedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hfptcp_rejected_blocks_total",
		Help: "Capture callbacks refused because the session was stopping",
	})
	deviceRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hfptcp_device_restarts_total",
		Help: "Times the device was found stopped after a command and restarted",
	})
	commandsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hfptcp_commands_total",
		Help: "Command frames received, by command",
	}, []string{"command"})
	sampleRateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hfptcp_device_sample_rate_hz",
		Help: "Sample rate requested from the device",
	})
	decimationGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hfptcp_decimation_factor",
		Help: "Current decimation factor",
	})
)
