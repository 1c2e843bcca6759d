package roi

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
)

func TestCropDisabledReturnsFullFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	defer frame.Close()

	view, yOff := Crop(frame, config.GateConfig{ROIEnabled: false})
	defer view.Close()

	if yOff != 0 {
		t.Fatalf("expected zero offset, got %d", yOff)
	}
	if view.Rows() != 480 || view.Cols() != 640 {
		t.Fatalf("expected full frame, got %dx%d", view.Cols(), view.Rows())
	}
}

func TestCropClampsHeightToFrameBounds(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	defer frame.Close()

	view, yOff := Crop(frame, config.GateConfig{ROIEnabled: true, ROIHeight: 10000, ROIPositionRatio: 0})
	defer view.Close()

	if yOff != 0 {
		t.Fatalf("expected offset 0, got %d", yOff)
	}
	if view.Rows() != 480 {
		t.Fatalf("expected clamped height 480, got %d", view.Rows())
	}
}

// TestCropRespectsPositionRatio pins the y0 = floor(H * position_ratio)
// formula against a mid-ratio case (H=480, configured height=100,
// ratio=0.5 -> y0=240), matching
// original_source/basler_pyqt6/core/detection.py's roi_y computation. A
// ratio=1.0 case alone would not catch a y0 = ratio*(H-h) regression,
// since both formulas agree only at the boundary ratios.
func TestCropRespectsPositionRatio(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	defer frame.Close()

	view, yOff := Crop(frame, config.GateConfig{ROIEnabled: true, ROIHeight: 100, ROIPositionRatio: 0.5})
	defer view.Close()

	if yOff != 240 {
		t.Fatalf("expected offset 240 at ratio 0.5, got %d", yOff)
	}
	if view.Rows() != 100 {
		t.Fatalf("expected height 100, got %d", view.Rows())
	}
}

func TestGateY(t *testing.T) {
	if got := GateY(240, 0.5); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}
}
