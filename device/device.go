// Package device describes the capture hardware the server streams from.
package device

import "errors"

// ErrNotStreaming is returned by Stop on a device that is not running.
var ErrNotStreaming = errors.New("device is not streaming")

// SampleHandler receives one block of interleaved float32 I/Q samples. The
// slice belongs to the device and must not be retained after the call. A
// non-nil return asks the device to stop calling back.
type SampleHandler func(iq []float32) error

// Device is a receiver that delivers samples from its own goroutine.
type Device interface {
	Start(handler SampleHandler) error
	Stop() error
	SetFrequency(hz uint32) error
	SetSampleRate(rate uint32) error
	SampleRates() []uint32
	IsStreaming() bool
}
