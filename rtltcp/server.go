package rtltcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quan-to/slog"
	"github.com/racerxdl/hfp_tcp/device"
	"github.com/racerxdl/hfp_tcp/dsp"
	"github.com/racerxdl/hfp_tcp/ringbuffer"
	"github.com/racerxdl/qo100-dedrift/metrics"
)

const (
	DefaultReadTimeout = 600 * time.Second
	defaultSettle      = 250 * time.Millisecond
	pollInterval       = time.Second
	receiveBufferSize  = 256
)

var log = slog.Scope("RTLTCP Server")

type OnCommand func(sessionId string, cmd Command) bool
type OnConnect func(sessionId string, address string)

type Options struct {
	SampleBits int
	RingSize   int
	// ReadTimeout closes a connection that sends nothing for this long.
	ReadTimeout time.Duration
	// Settle is the pause after stopping a device left running and after
	// starting it for a new client.
	Settle time.Duration
	// RateSettle is the pause around a sample rate change restart.
	RateSettle time.Duration
}

func DefaultOptions() Options {
	return Options{
		SampleBits:  8,
		RingSize:    ringbuffer.DefaultCapacity,
		ReadTimeout: DefaultReadTimeout,
		Settle:      defaultSettle,
		RateSettle:  defaultRateSettle,
	}
}

// Server serves one client at a time. The accept loop does not accept the next
// connection until the current one is torn down.
type Server struct {
	address string
	device  device.Device
	config  *StreamConfig
	ring    *ringbuffer.Ring
	header  Header
	opts    Options

	running        atomic.Bool
	waitClose      chan struct{}
	serverListener net.Listener
	ctx            context.Context
	cancel         context.CancelFunc
	err            error

	onCommandCb OnCommand
	onConnectCb OnConnect

	sessionLock sync.Mutex
	session     *Session
}

func MakeRTLTCPServer(address string, dev device.Device, opts Options) *Server {
	if opts.SampleBits == 0 {
		opts.SampleBits = 8
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	numRates := len(dev.SampleRates())

	return &Server{
		address: address,
		device:  dev,
		config:  MakeStreamConfig(opts.SampleBits, numRates),
		ring:    ringbuffer.New(opts.RingSize),
		header:  MakeHeader(numRates, opts.SampleBits),
		opts:    opts,
	}
}

func (server *Server) Config() *StreamConfig {
	return server.config
}

func (server *Server) Header() Header {
	return server.header
}

func (server *Server) SetOnConnect(cb OnConnect) {
	server.onConnectCb = cb
}

// SetOnCommand registers a hook that sees every command before it is applied.
// Returning false closes the connection.
func (server *Server) SetOnCommand(cb OnCommand) {
	server.onCommandCb = cb
}

// SetInitialState records the rate and frequency the device was configured
// with before the server started.
func (server *Server) SetInitialState(sampleRate, frequency uint32) {
	server.config.SetSampleRate(sampleRate)
	server.config.SetFrequency(frequency)
	sampleRateGauge.Set(float64(sampleRate))
	decimationGauge.Set(1)
}

func (server *Server) Start() error {
	if server.running.Load() {
		return fmt.Errorf("already running")
	}

	l, err := net.Listen("tcp", server.address)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", server.address, err)
	}
	server.serverListener = l
	log.Info("Listening on %s", l.Addr())
	server.ctx, server.cancel = context.WithCancel(context.Background())
	server.waitClose = make(chan struct{})
	server.running.Store(true)
	go server.loop()
	return nil
}

func (server *Server) Addr() net.Addr {
	if server.serverListener == nil {
		return nil
	}
	return server.serverListener.Addr()
}

// Stop closes the listener and the active client socket without waiting for
// in-flight sends, then waits for the connection teardown to finish.
func (server *Server) Stop() {
	if !server.running.CompareAndSwap(true, false) {
		return
	}
	log.Info("Sent close signal to server. Waiting it to finish")
	server.cancel()
	_ = server.serverListener.Close()

	server.sessionLock.Lock()
	if server.session != nil {
		_ = server.session.conn.Close()
	}
	server.sessionLock.Unlock()

	<-server.waitClose
}

// Wait blocks until the accept loop ends and returns the accept error that
// ended it, if any.
func (server *Server) Wait() error {
	<-server.waitClose
	return server.err
}

func (server *Server) loop() {
	defer close(server.waitClose)

	for server.running.Load() {
		conn, err := server.serverListener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && server.running.Load() {
				log.Error("Error accepting: %s", err)
				server.err = err
				server.running.Store(false)
			}
			break
		}
		server.handleRequest(conn)
	}
	_ = server.serverListener.Close()
	log.Info("Server finished listening")
}

func (server *Server) handleRequest(conn net.Conn) {
	uid, _ := uuid.NewRandom()
	session := &Session{
		id:   uid.String(),
		conn: conn,
		log:  slog.Scope(conn.RemoteAddr().String()),
	}
	clog := session.log
	clog.Info("Received connection")

	if server.device.IsStreaming() {
		clog.Info("Device already running, stopping it first")
		if err := server.device.Stop(); err != nil {
			clog.Error("Error stopping device: %s", err)
		}
		time.Sleep(server.opts.Settle)
	}

	server.ring.Reset()
	encoder := dsp.NewEncoder(time.Now().UnixNano())

	clog.Debug("Sending greeting %s", server.header)
	greeting, _ := server.header.MarshalBinary()
	if _, err := conn.Write(greeting); err != nil {
		clog.Error("Error sending greeting: %s", err)
		_ = conn.Close()
		return
	}

	server.sessionLock.Lock()
	server.session = session
	server.sessionLock.Unlock()

	if server.onConnectCb != nil {
		server.onConnectCb(session.id, conn.RemoteAddr().String())
	}

	metrics.TotalConnections.Inc()
	metrics.Connections.Inc()

	ctx, cancel := context.WithCancel(server.ctx)
	senderDone := make(chan struct{})
	go session.sendLoop(ctx, server.ring, senderDone)

	feed := &feeder{
		session: session,
		config:  server.config,
		ring:    server.ring,
		encoder: encoder,
	}
	controller := MakeController(server.device, server.config, feed.OnSamples, clog)
	controller.RateSettle = server.opts.RateSettle

	if err := server.device.Start(feed.OnSamples); err != nil {
		clog.Error("Error starting device: %s", err)
	} else {
		// a streaming session is reset on close, earlier aborts close cleanly
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		time.Sleep(server.opts.Settle)
		server.receive(session, controller)
	}

	if server.device.IsStreaming() {
		if err := server.device.Stop(); err != nil {
			clog.Error("Error stopping device: %s", err)
		}
	}
	session.stopping.Store(true)
	cancel()
	<-senderDone
	_ = conn.Close()

	server.sessionLock.Lock()
	server.session = nil
	server.sessionLock.Unlock()

	metrics.Connections.Dec()
	clog.Info("Connection closed. Sent %d bytes from %d blocks, %d overflow warnings, rounding error %f",
		session.bytesSent.Load(), session.blocks.Load(), session.overflows.Load(), encoder.RoundingError())
}

// receive reads command frames until the client goes away, stays silent for
// ReadTimeout, or the sender reports a failed send.
func (server *Server) receive(session *Session, controller *Controller) {
	clog := session.log
	conn := session.conn
	frames := &FrameReader{}
	buffer := make([]byte, receiveBufferSize)

	poll := pollInterval
	if server.opts.ReadTimeout < poll {
		poll = server.opts.ReadTimeout
	}
	idle := time.Duration(0)

	for {
		if session.sendErr.Load() {
			clog.Info("Send failed, closing connection")
			return
		}
		if server.ctx.Err() != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(poll))
		n, err := conn.Read(buffer)

		if n > 0 {
			idle = 0
			metrics.BytesIn.Add(float64(n))
			cmds := frames.Feed(buffer[:n])
			if server.onCommandCb != nil {
				for _, cmd := range cmds {
					if !server.onCommandCb(session.id, cmd) {
						clog.Info("Command hook asked to close the connection")
						return
					}
				}
			}
			controller.HandleBatch(cmds)
		}

		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				idle += poll
				if idle >= server.opts.ReadTimeout {
					clog.Info("No data from client for %s, closing", server.opts.ReadTimeout)
					return
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				clog.Info("Client disconnected")
			} else if !errors.Is(err, net.ErrClosed) {
				clog.Error("Error receiving data: %s", err)
			}
			return
		}
	}
}
