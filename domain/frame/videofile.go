package frame

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/apperr"
)

// VideoFile is the VideoFile Frame Source variant (§4.A): plays a file on
// an unrate-limited loop, rewinding to frame 0 on end-of-stream, so a
// recorded clip behaves like an infinite conveyor for testing and replay.
type VideoFile struct {
	path   string
	logger *slog.Logger

	cap     *gocv.VideoCapture
	cell    *cell
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{}

	captures atomic.Uint64
	sequence atomic.Uint64
	fileFPS  float64
}

func NewVideoFile(path string, logger *slog.Logger) *VideoFile {
	return &VideoFile{path: path, logger: logger, cell: newCell()}
}

func (v *VideoFile) Start(ctx context.Context) error {
	vc, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err)
	}
	v.cap = vc
	v.fileFPS = vc.Get(gocv.VideoCaptureFPS)
	v.running.Store(true)
	v.done = make(chan struct{})

	loopCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	go v.loop(loopCtx)
	return nil
}

func (v *VideoFile) Stop() error {
	if !v.running.CompareAndSwap(true, false) {
		return nil
	}
	if v.cancel != nil {
		v.cancel()
	}
	select {
	case <-v.done:
	case <-time.After(2 * time.Second):
		v.logger.Warn("video file producer did not join within timeout")
	}
	v.cell.close()
	if v.cap != nil {
		return v.cap.Close()
	}
	return nil
}

func (v *VideoFile) loop(ctx context.Context) {
	defer close(v.done)
	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !v.cap.Read(&mat) || mat.Empty() {
			// End of stream: rewind and continue, per the infinite-loop
			// contract of §4.A.
			v.cap.Set(gocv.VideoCapturePosFrames, 0)
			continue
		}

		seq := v.sequence.Add(1)
		owned := mat.Clone()
		v.cell.store(Frame{Mat: owned, Sequence: seq, CapturedAt: time.Now()})
		v.captures.Add(1)
	}
}

func (v *VideoFile) Latest() (Frame, bool) {
	if !v.running.Load() {
		return Frame{}, false
	}
	return v.cell.take()
}

func (v *VideoFile) Stats() Stats {
	return Stats{Captures: v.captures.Load(), Sequence: v.sequence.Load()}
}

// FPS reports the file's declared frame rate (§4.A); the consumer is not
// rate-limited by it.
func (v *VideoFile) FPS() float32 { return float32(v.fileFPS) }

// IsActive reports whether the file source has been started and not yet
// stopped.
func (v *VideoFile) IsActive() bool { return v.running.Load() }

// SetExposureMicros is a no-op for a recorded file; exposure was already
// baked into the footage at capture time.
func (v *VideoFile) SetExposureMicros(int) error { return nil }

// SetGain is a no-op for a recorded file.
func (v *VideoFile) SetGain(float64) error { return nil }
