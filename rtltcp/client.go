package rtltcp

import (
	"encoding/binary"
	"errors"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/quan-to/slog"
	"github.com/racerxdl/qo100-dedrift/metrics"
)

const readTimeout = time.Second * 2

var clog = slog.Scope("RTLTCP Client")

type OnSamples func([]complex64)

// Client connects to a server speaking this protocol, decodes the sample
// stream for the advertised bit depth and sends commands.
type Client struct {
	running atomic.Bool
	conn    net.Conn
	header  Header
	cb      OnSamples
	done    chan struct{}

	samplesBuffer    []byte
	samplesBufferPos int
}

func MakeClient() *Client {
	return &Client{
		samplesBuffer: make([]byte, 16384),
	}
}

func (client *Client) GetHeader() Header {
	return client.header
}

// SetOnSamples must be called before Connect.
func (client *Client) SetOnSamples(cb OnSamples) {
	client.cb = cb
}

// SetGain sends a gain in tenths of a dB.
func (client *Client) SetGain(gain uint32) error {
	return client.SendCommand(MakeCommand(SetGain, gain))
}

func (client *Client) SetSampleRate(sampleRate uint32) error {
	return client.SendCommand(MakeCommand(SetSampleRate, sampleRate))
}

func (client *Client) SetCenterFrequency(centerFrequency uint32) error {
	return client.SendCommand(MakeCommand(SetFrequency, centerFrequency))
}

func (client *Client) SendCommand(cmds ...Command) error {
	buffer := make([]byte, 0, len(cmds)*CommandSize)
	for _, cmd := range cmds {
		buffer = append(buffer, cmd.Bytes()...)
	}
	n, err := client.conn.Write(buffer)
	metrics.BytesOut.Add(float64(n))
	return err
}

func (client *Client) Connect(address string) error {
	clog.Debug("Connecting to %s", address)
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return err
	}
	client.conn = conn
	clog.Debug("Waiting for handshake")
	err = client.handshake()

	if err != nil {
		_ = conn.Close()
		return err
	}

	clog.Debug("Got handshake %s. Running", client.header)
	client.done = make(chan struct{})
	client.running.Store(true)
	go client.loop()

	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (client *Client) Stop() {
	if client.running.CompareAndSwap(true, false) {
		_ = client.conn.Close()
		<-client.done
	}
}

// Done is closed when the read loop exits, including when the server closed
// the connection.
func (client *Client) Done() <-chan struct{} {
	return client.done
}

func (client *Client) handshake() error {
	if err := client.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return err
	}
	header, err := ReadHeader(client.conn)
	if err != nil {
		return err
	}
	metrics.BytesIn.Add(float64(header.Size()))
	client.header = header
	return nil
}

func (client *Client) loop() {
	defer close(client.done)
	buffer := make([]byte, 4096)

	for client.running.Load() {
		chunkSize := len(buffer)
		if len(client.samplesBuffer)-client.samplesBufferPos < chunkSize {
			chunkSize = len(client.samplesBuffer) - client.samplesBufferPos
		}

		_ = client.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := client.conn.Read(buffer[:chunkSize])

		if n > 0 {
			copy(client.samplesBuffer[client.samplesBufferPos:], buffer[:n])
			client.samplesBufferPos += n
			metrics.BytesIn.Add(float64(n))
		}

		if client.samplesBufferPos == len(client.samplesBuffer) {
			client.handleData(client.samplesBuffer)
			client.samplesBufferPos = 0
		}

		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if client.running.Load() && !errors.Is(err, net.ErrClosed) {
				clog.Error("Error reading data: %s", err)
			}
			break
		}
	}

	client.running.Store(false)
	_ = client.conn.Close()
}

func (client *Client) handleData(data []byte) {
	if client.cb != nil {
		client.cb(DecodeSamples(data, client.header.SampleBits()))
	}
}

// DecodeSamples converts wire samples to complex64 scaled to roughly [-1, 1].
func DecodeSamples(data []byte, bits int) []complex64 {
	switch bits {
	case 8:
		iq := make([]complex64, len(data)/2)
		for i := range iq {
			rv := (float32(data[i*2]) - 128) / 128
			iv := (float32(data[i*2+1]) - 128) / 128
			iq[i] = complex(rv, iv)
		}
		return iq
	case 16:
		iq := make([]complex64, len(data)/4)
		for i := range iq {
			rv := float32(int16(binary.LittleEndian.Uint16(data[i*4:]))) / 32768
			iv := float32(int16(binary.LittleEndian.Uint16(data[i*4+2:]))) / 32768
			iq[i] = complex(rv, iv)
		}
		return iq
	default:
		iq := make([]complex64, len(data)/8)
		for i := range iq {
			rv := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8:]))
			iv := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8+4:]))
			iq[i] = complex(rv, iv)
		}
		return iq
	}
}
