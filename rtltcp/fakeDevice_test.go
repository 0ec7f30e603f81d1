package rtltcp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/racerxdl/hfp_tcp/device"
)

// fakeDevice records every call and delivers blocks only when the test calls
// emit. Like real hardware, Stop waits for an in-flight callback and a
// callback error stops the stream.
type fakeDevice struct {
	mtx       sync.Mutex
	cbLock    sync.Mutex
	handler   device.SampleHandler
	streaming bool
	rates     []uint32
	rate      uint32
	freq      uint32
	calls     []string
	startErr  error
}

func newFakeDevice(numRates int) *fakeDevice {
	rates := make([]uint32, numRates)
	for i := range rates {
		rates[i] = uint32(192000 * (i + 1))
	}
	return &fakeDevice{rates: rates}
}

func (f *fakeDevice) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDevice) Start(h device.SampleHandler) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.record("start")
	if f.startErr != nil {
		return f.startErr
	}
	f.handler = h
	f.streaming = true
	return nil
}

func (f *fakeDevice) Stop() error {
	f.cbLock.Lock()
	defer f.cbLock.Unlock()
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.record("stop")
	if !f.streaming {
		return device.ErrNotStreaming
	}
	f.streaming = false
	return nil
}

func (f *fakeDevice) SetFrequency(hz uint32) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.record(fmt.Sprintf("freq %d", hz))
	f.freq = hz
	return nil
}

func (f *fakeDevice) SetSampleRate(rate uint32) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.record(fmt.Sprintf("rate %d", rate))
	f.rate = rate
	return nil
}

func (f *fakeDevice) SampleRates() []uint32 {
	return f.rates
}

func (f *fakeDevice) IsStreaming() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.streaming
}

func (f *fakeDevice) Rate() uint32 {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.rate
}

func (f *fakeDevice) Calls() []string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDevice) ResetCalls() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls = nil
}

// emit runs the handler on the calling goroutine, which plays the part of
// the driver's callback thread.
func (f *fakeDevice) emit(iq []float32) error {
	f.cbLock.Lock()
	defer f.cbLock.Unlock()

	f.mtx.Lock()
	h, ok := f.handler, f.streaming
	f.mtx.Unlock()
	if !ok || h == nil {
		return device.ErrNotStreaming
	}

	err := h(iq)
	if err != nil {
		f.mtx.Lock()
		f.streaming = false
		f.mtx.Unlock()
	}
	return err
}

// pump emits a constant block every millisecond until ctx is done.
func (f *fakeDevice) pump(ctx context.Context, pairs int, i, q float32) <-chan struct{} {
	done := make(chan struct{})
	block := make([]float32, pairs*2)
	for k := 0; k < pairs; k++ {
		block[2*k] = i
		block[2*k+1] = q
	}
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_ = f.emit(block)
			time.Sleep(time.Millisecond)
		}
	}()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
