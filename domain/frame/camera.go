package frame

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/apperr"
)

// Camera is the Camera Frame Source variant (§4.A): a GigE-class industrial
// camera abstracted through gocv's VideoCapture, producing 640x480 Mono8
// frames. Any driver backend that opens through OpenCV's VideoCapture
// (including a GenICam/GigE Vision backend registered with OpenCV) satisfies
// this shape; the device index or GStreamer pipeline string is passed
// through unchanged to gocv.VideoCaptureFile/gocv.OpenVideoCapture.
type Camera struct {
	device string
	logger *slog.Logger

	cap       *gocv.VideoCapture
	cell      *cell
	cancel    context.CancelFunc
	running   atomic.Bool
	done      chan struct{}
	startedAt time.Time

	captures     atomic.Uint64
	dropped      atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	degraded     atomic.Bool

	exposureMicros atomic.Int64
	gain           atomic.Int64 // gain * 1000, stored as integer for atomic access
}

// NewCamera constructs a Camera bound to the given device identifier (a
// numeric index as a string, or a backend-specific URI/pipeline).
func NewCamera(device string, logger *slog.Logger) *Camera {
	return &Camera{device: device, logger: logger, cell: newCell()}
}

func (c *Camera) Start(ctx context.Context) error {
	vc, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return apperr.Wrap(apperr.SourceUnavailable, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, 640)
	vc.Set(gocv.VideoCaptureFrameHeight, 480)
	vc.Set(gocv.VideoCaptureMonochrome, 1)

	c.cap = vc
	c.running.Store(true)
	c.degraded.Store(false)
	c.startedAt = time.Now()
	c.done = make(chan struct{})

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.loop(loopCtx)
	return nil
}

func (c *Camera) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.logger.Warn("camera producer did not join within timeout")
	}
	c.cell.close()
	if c.cap != nil {
		return c.cap.Close()
	}
	return nil
}

func (c *Camera) loop(ctx context.Context) {
	defer close(c.done)
	mat := gocv.NewMat()
	defer mat.Close()

	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		ok := c.cap.Read(&mat)
		if !ok || mat.Empty() {
			consecutiveErrors++
			c.dropped.Add(1)
			c.logger.Debug("camera read failed", slog.Int("consecutive_errors", consecutiveErrors))
			if consecutiveErrors >= 3 {
				c.degraded.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		consecutiveErrors = 0

		seq := c.sequence.Add(1)
		owned := mat.Clone()
		c.cell.store(Frame{Mat: owned, Sequence: seq, CapturedAt: time.Now()})

		elapsed := time.Since(start)
		c.captureNanos.Add(uint64(elapsed.Nanoseconds()))
		c.captures.Add(1)
	}
}

// Latest returns the most recent frame, or false if the camera is not
// running or is degraded (three or more consecutive read failures): per
// §4.A, a degraded source reports no frames until the caller stops and
// restarts it, rather than replaying a stale capture indefinitely.
func (c *Camera) Latest() (Frame, bool) {
	if !c.running.Load() || c.degraded.Load() {
		return Frame{}, false
	}
	return c.cell.take()
}

func (c *Camera) Stats() Stats {
	captures := c.captures.Load()
	var avg float64
	if captures > 0 {
		avg = float64(c.captureNanos.Load()) / float64(captures) / 1000.0
	}
	return Stats{
		Captures:         captures,
		Dropped:          c.dropped.Load(),
		AvgCaptureMicros: avg,
		Sequence:         c.sequence.Load(),
		Degraded:         c.degraded.Load(),
	}
}

// FPS reports the observed capture rate since Start, based on total
// captures over elapsed wall-clock time.
func (c *Camera) FPS() float32 {
	if c.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(c.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float32(float64(c.captures.Load()) / elapsed)
}

// IsActive reports whether the camera has been started and not yet
// stopped.
func (c *Camera) IsActive() bool { return c.running.Load() }

// SetExposureMicros sets the camera's exposure time in microseconds
// (100-10000 per §6's open-time range; this expansion allows live
// retuning as the original operator console does via camera_manager).
func (c *Camera) SetExposureMicros(micros int) error {
	if micros < 100 || micros > 10000 {
		return apperr.New(apperr.ConfigInvalid, "exposure_micros must be in [100, 10000]")
	}
	c.exposureMicros.Store(int64(micros))
	if c.cap != nil {
		c.cap.Set(gocv.VideoCaptureExposure, float64(micros))
	}
	return nil
}

// SetGain sets the camera's analog gain. A no-op error-free stub on
// VideoFile/Synthetic sources; meaningful only for a live camera.
func (c *Camera) SetGain(gain float64) error {
	c.gain.Store(int64(gain * 1000))
	if c.cap != nil {
		c.cap.Set(gocv.VideoCaptureGain, gain)
	}
	return nil
}
