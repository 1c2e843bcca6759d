// Package detect implements the Detector component (§4.C, §4.C') and the
// Method Registry (§4.G): pluggable frame analyzers selected at runtime by
// method_id, each producing detections the orchestrator feeds to the Gate
// Counter or reports directly for defect inspection.
package detect

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

// Detection is one accepted connected component, in full-frame coordinates.
type Detection struct {
	BBox     image.Rectangle
	CX, CY   int
	Area     float64
}

// Crossing is one accepted gate-crossing event emitted by the Gate Counter.
type Crossing struct {
	CX, CY     int
	FrameIndex uint64
}

// Result is what process_frame returns (§4.C): the full set of detections
// found this frame, the new crossings accepted by the Gate Counter (empty
// for non-counting variants), and running totals.
type Result struct {
	Detections    []Detection
	NewCrossings  []Crossing
	Count         int
	CrossingCount uint64
	Annotated     *gocv.Mat // nil unless annotation was requested
}

// Detector is satisfied by the Counting and Defect variants (§4.C/§4.C').
// process_frame must be called sequentially for a single Detector instance
// (§5): callers must not invoke it concurrently from more than one
// goroutine, since Gate Counter state is only coherent under strictly
// increasing frame order.
type Detector interface {
	Enable()
	Disable()
	Enabled() bool
	Reset()
	UpdateConfig(cfg config.DetectionConfig) error
	// ProcessFrame runs the detector over roiView (the ROI Cropper's output,
	// §4.B) at vertical offset yOffset within fullFrame. fullFrame is used
	// only for annotation (§4.C step 7 requires the annotated copy to be of
	// the full frame, with the ROI rectangle drawn on it); detection itself
	// never reads outside roiView.
	ProcessFrame(fullFrame, roiView gocv.Mat, yOffset int, annotate bool) (Result, error)
}

// Constructor builds a Detector from its configuration, as installed in
// the Method Registry (§4.G). counter is the orchestrator-owned Gate
// Counter (§4.D): it outlives any single Detector instance so that a
// same-intent method switch (counting↔counting) preserves crossing_count
// instead of zeroing it; a Constructor that has no use for it (the Defect
// variant) simply ignores the parameter.
type Constructor func(cfg config.DetectionConfig, gateCfg config.GateConfig, counter *gate.Counter) (Detector, error)
