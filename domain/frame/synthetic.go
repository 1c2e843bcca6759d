package frame

import (
	"context"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Generator produces one synthetic grayscale frame given the previous
// sequence number. Implementations typically draw moving shapes on a
// blank background for repeatable, hardware-free pipeline tests.
type Generator func(sequence uint64) gocv.Mat

// Synthetic is the Synthetic Frame Source variant (§4.A): an in-memory
// generator used for tests and demos that need no camera or file.
type Synthetic struct {
	gen      Generator
	interval time.Duration

	cell      *cell
	cancel    context.CancelFunc
	running   atomic.Bool
	done      chan struct{}
	startedAt time.Time

	captures atomic.Uint64
	sequence atomic.Uint64
}

// NewSynthetic constructs a Synthetic source that calls gen once per
// interval (0 means as fast as possible).
func NewSynthetic(gen Generator, interval time.Duration) *Synthetic {
	return &Synthetic{gen: gen, interval: interval, cell: newCell()}
}

func (s *Synthetic) Start(ctx context.Context) error {
	s.running.Store(true)
	s.startedAt = time.Now()
	s.done = make(chan struct{})
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(loopCtx)
	return nil
}

func (s *Synthetic) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
	}
	s.cell.close()
	return nil
}

func (s *Synthetic) loop(ctx context.Context) {
	defer close(s.done)
	var ticker *time.Ticker
	if s.interval > 0 {
		ticker = time.NewTicker(s.interval)
		defer ticker.Stop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		seq := s.sequence.Add(1)
		mat := s.gen(seq)
		s.cell.store(Frame{Mat: mat, Sequence: seq, CapturedAt: time.Now()})
		s.captures.Add(1)
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func (s *Synthetic) Latest() (Frame, bool) {
	if !s.running.Load() {
		return Frame{}, false
	}
	return s.cell.take()
}

func (s *Synthetic) Stats() Stats {
	return Stats{Captures: s.captures.Load(), Sequence: s.sequence.Load()}
}

func (s *Synthetic) SetExposureMicros(int) error { return nil }
func (s *Synthetic) SetGain(float64) error       { return nil }

// FPS reports the observed generation rate since Start.
func (s *Synthetic) FPS() float32 {
	if s.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(s.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float32(float64(s.captures.Load()) / elapsed)
}

// IsActive reports whether the generator has been started and not yet
// stopped.
func (s *Synthetic) IsActive() bool { return s.running.Load() }
