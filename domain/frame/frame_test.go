package frame

import (
	"context"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func blankGen(seq uint64) gocv.Mat {
	return gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
}

func TestSyntheticLatestReturnsFalseBeforeStart(t *testing.T) {
	s := NewSynthetic(blankGen, 0)
	if _, ok := s.Latest(); ok {
		t.Fatal("expected no frame before Start")
	}
}

func TestSyntheticProducesIncreasingSequence(t *testing.T) {
	s := NewSynthetic(blankGen, time.Millisecond)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		f, ok := s.Latest()
		if ok {
			if f.Sequence == 0 {
				t.Fatal("expected nonzero sequence")
			}
			f.Release()
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first frame")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSyntheticStopIsIdempotent(t *testing.T) {
	s := NewSynthetic(blankGen, 0)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSyntheticIsActiveAndFPS(t *testing.T) {
	s := NewSynthetic(blankGen, 0)
	if s.IsActive() {
		t.Fatal("expected inactive before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if !s.IsActive() {
		t.Fatal("expected active after Start")
	}

	deadline := time.After(time.Second)
	for {
		if _, ok := s.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first frame")
		case <-time.After(time.Millisecond):
		}
	}
	if s.FPS() <= 0 {
		t.Fatalf("expected positive FPS once frames are flowing, got %f", s.FPS())
	}
}

func TestCameraDegradedDefaultsFalse(t *testing.T) {
	c := NewCamera("0", nil)
	if c.IsActive() {
		t.Fatal("expected inactive before Start")
	}
	if c.Stats().Degraded {
		t.Fatal("expected Degraded false before any read failures")
	}
}

func TestCellStoreReleasesOverwrittenFrame(t *testing.T) {
	c := newCell()
	m1 := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8U)
	c.store(Frame{Mat: m1, Sequence: 1})
	m2 := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8U)
	c.store(Frame{Mat: m2, Sequence: 2})

	f, ok := c.take()
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", f.Sequence)
	}
	f.Release()
	c.close()
}
