package app

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// downscale resizes mat by factor using gocv's own interpolation, keeping
// the pipeline's hot path entirely inside OpenCV's buffers (§4.F step ii).
func downscale(mat gocv.Mat, factor float64) gocv.Mat {
	dst := gocv.NewMat()
	w := int(float64(mat.Cols()) * factor)
	h := int(float64(mat.Rows()) * factor)
	gocv.Resize(mat, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return dst
}

// PreviewObserver decodes the annotated frame from each frame_processed
// event into a small preview thumbnail, off the counting path (it only
// runs when annotation was requested), for consumers that want a cheap
// periodic snapshot (a debug HTTP endpoint, a health-check image) without
// linking against gocv themselves.
type PreviewObserver struct {
	maxWidth int

	mu     sync.Mutex
	latest image.Image
}

// NewPreviewObserver constructs a PreviewObserver that downsamples
// annotated frames to at most maxWidth pixels wide.
func NewPreviewObserver(maxWidth int) *PreviewObserver {
	return &PreviewObserver{maxWidth: maxWidth}
}

func (p *PreviewObserver) OnFrameProcessed(ev FrameProcessed) error {
	if ev.AnnotatedFrame == nil || ev.AnnotatedFrame.Empty() {
		return nil
	}
	img, err := ev.AnnotatedFrame.ToImage()
	if err != nil {
		return err
	}
	thumb := imaging.Resize(img, p.maxWidth, 0, imaging.Lanczos)

	p.mu.Lock()
	p.latest = thumb
	p.mu.Unlock()
	return nil
}

// Latest returns the most recently decoded preview thumbnail, or nil if
// none has arrived yet.
func (p *PreviewObserver) Latest() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *PreviewObserver) OnGateCrossing(GateCrossing) error                   { return nil }
func (p *PreviewObserver) OnPackagingStateChanged(PackagingStateChanged) error { return nil }
func (p *PreviewObserver) OnPackagingComplete(PackagingComplete) error         { return nil }
func (p *PreviewObserver) OnMethodChanged(MethodChanged) error                 { return nil }

var _ Observer = (*PreviewObserver)(nil)
