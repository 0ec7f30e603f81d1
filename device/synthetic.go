package device

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quan-to/slog"
	"github.com/racerxdl/go.fifo"
)

// HF+ style rate list. Four or fewer rates makes the server decimate for
// 48 kHz requests.
var DefaultSyntheticRates = []uint32{768000, 384000, 256000, 192000}

const (
	defaultBlockSize = 2048
	defaultMaxQueued = 16
)

type synthRun struct {
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	queue *fifo.Queue
}

func (r *synthRun) halt() {
	r.once.Do(func() { close(r.stop) })
}

// Synthetic generates a complex tone paced at the configured sample rate. Like
// a USB receiver it hands blocks from a generator to a separate delivery
// goroutine through a bounded transfer queue, and it stops streaming by itself
// when the handler returns an error.
type Synthetic struct {
	BlockSize  int
	ToneOffset float64 // Hz from center
	Amplitude  float64
	MaxQueued  int

	rates     []uint32
	rate      atomic.Uint32
	freq      atomic.Uint32
	streaming atomic.Bool

	runLock sync.Mutex
	cur     *synthRun
	log     slog.Instance
}

func MakeSynthetic(rates []uint32) *Synthetic {
	if len(rates) == 0 {
		rates = DefaultSyntheticRates
	}
	s := &Synthetic{
		BlockSize:  defaultBlockSize,
		ToneOffset: 10000,
		Amplitude:  0.5,
		MaxQueued:  defaultMaxQueued,
		rates:      rates,
		log:        slog.Scope("Synthetic"),
	}
	s.rate.Store(rates[0])
	return s
}

func (s *Synthetic) SampleRates() []uint32 {
	return s.rates
}

func (s *Synthetic) SetSampleRate(rate uint32) error {
	s.rate.Store(rate)
	return nil
}

func (s *Synthetic) SampleRate() uint32 {
	return s.rate.Load()
}

func (s *Synthetic) SetFrequency(hz uint32) error {
	s.freq.Store(hz)
	return nil
}

func (s *Synthetic) Frequency() uint32 {
	return s.freq.Load()
}

func (s *Synthetic) IsStreaming() bool {
	return s.streaming.Load()
}

func (s *Synthetic) Start(handler SampleHandler) error {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if s.cur != nil {
		s.cur.halt()
		s.cur.wg.Wait()
	}

	r := &synthRun{
		stop:  make(chan struct{}),
		queue: fifo.NewQueue(),
	}
	s.cur = r
	s.streaming.Store(true)
	r.wg.Add(2)
	go s.generate(r)
	go s.deliver(r, handler)
	return nil
}

func (s *Synthetic) Stop() error {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if s.cur == nil {
		return ErrNotStreaming
	}
	s.cur.halt()
	s.cur.wg.Wait()
	s.cur = nil
	s.streaming.Store(false)
	return nil
}

func (s *Synthetic) blockInterval() time.Duration {
	rate := s.rate.Load()
	if rate == 0 {
		rate = 1
	}
	d := time.Duration(float64(s.BlockSize) / float64(rate) * float64(time.Second))
	if d < time.Microsecond {
		d = time.Microsecond
	}
	return d
}

func (s *Synthetic) generate(r *synthRun) {
	defer r.wg.Done()

	interval := s.blockInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	phase := 0.0
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		if r.queue.Len() >= s.MaxQueued {
			s.log.Error("Transfer queue full, dropping block")
			continue
		}

		rate := float64(s.rate.Load())
		step := 2 * math.Pi * s.ToneOffset / rate
		block := make([]float32, s.BlockSize*2)
		for k := 0; k < s.BlockSize; k++ {
			block[2*k] = float32(s.Amplitude * math.Cos(phase))
			block[2*k+1] = float32(s.Amplitude * math.Sin(phase))
			phase = math.Mod(phase+step, 2*math.Pi)
		}
		r.queue.Add(block)

		if next := s.blockInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (s *Synthetic) deliver(r *synthRun, handler SampleHandler) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if r.queue.Len() == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		block := r.queue.Next().([]float32)
		if err := handler(block); err != nil {
			s.log.Debug("Handler returned %s, stopping", err)
			s.streaming.Store(false)
			r.halt()
			return
		}
		runtime.Gosched()
	}
}
