// Package roi implements the ROI Cropper (§4.B): a pure function that
// returns a sub-region view of a frame plus the vertical offset needed to
// translate detection coordinates back into full-frame space.
package roi

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
)

// Crop returns a sub-region view of frame (no pixel data is copied; the
// returned Mat shares frame's backing buffer, mirroring the teacher's
// ExtractROI which returns a SubImage view) and the y-offset of that
// region within frame. When cfg.ROIEnabled is false, the full frame is
// returned unchanged with a zero offset.
func Crop(frame gocv.Mat, cfg config.GateConfig) (view gocv.Mat, yOffset int) {
	if !cfg.ROIEnabled {
		return frame.Region(image.Rect(0, 0, frame.Cols(), frame.Rows())), 0
	}

	y0 := int(cfg.ROIPositionRatio * float64(frame.Rows()))
	if y0 < 0 {
		y0 = 0
	}
	if y0 > frame.Rows() {
		y0 = frame.Rows()
	}

	h := cfg.ROIHeight
	if h <= 0 || h > frame.Rows()-y0 {
		h = frame.Rows() - y0
	}

	rect := image.Rect(0, y0, frame.Cols(), y0+h)
	return frame.Region(rect), y0
}

// GateY returns the virtual gate's y coordinate within the ROI's own
// coordinate space, per §3: a horizontal line at gate_ratio down the ROI.
func GateY(roiHeight int, gateRatio float64) int {
	return int(gateRatio * float64(roiHeight))
}
