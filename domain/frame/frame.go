// Package frame defines the Frame Source component (§4.A): camera, video
// file and synthetic frame producers that all satisfy the same Source
// interface, plus the pooled single-slot hand-off used by the orchestrator.
package frame

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame carries one acquired grayscale image and its metadata. Mat is owned
// by the Source until Release is called; consumers that need to retain a
// frame past their processing window must Clone it first.
type Frame struct {
	Mat        gocv.Mat
	Sequence   uint64
	CapturedAt time.Time
}

// Release returns the frame's backing Mat to the runtime. Safe to call on a
// zero-value Frame.
func (f Frame) Release() {
	if !f.Mat.Empty() {
		_ = f.Mat.Close()
	}
}

// Clone returns a Frame with its own independently-owned Mat, safe to
// retain after the original is released.
func (f Frame) Clone() Frame {
	return Frame{Mat: f.Mat.Clone(), Sequence: f.Sequence, CapturedAt: f.CapturedAt}
}

// Stats summarizes source throughput for instrumentation (§10.1), mirroring
// the teacher's CaptureStats.
type Stats struct {
	Captures         uint64
	Dropped          uint64
	AvgCaptureMicros float64
	LastCaptureAt    time.Time
	Sequence         uint64
	// Degraded is true once a source variant that can detect its own read
	// failures (Camera) has seen 3 or more consecutive failed reads; it
	// stays set until the source is stopped and started again (§4.A).
	Degraded bool
}
