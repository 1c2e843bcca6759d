package app

import (
	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/domain/detect"
	"github.com/crmado/realtime-item-monitor/domain/packaging"
)

// PipelineStats carries per-frame processing telemetry, supplementing
// frame_processed with the rolling-average budget the original operator
// console used to recommend ultra-high-speed mode.
type PipelineStats struct {
	AvgProcessMicros float64
	DroppedFrames    uint64
	AppliedSkip      int
}

// FrameProcessed is published once per processed tick (§6).
type FrameProcessed struct {
	Sequence        uint64
	FPS             float64
	DetectorIntent  string
	AnnotatedFrame  *gocv.Mat
	DetectorResults detect.Result
	Stats           PipelineStats
}

// GateCrossing is published whenever the Gate Counter accepts one or more
// crossings in a frame (§6).
type GateCrossing struct {
	Sequence    uint64
	CountAfter  uint64
	CrossingsIn int
}

// PackagingStateChanged mirrors packaging.Listener's payload (§6).
type PackagingStateChanged struct {
	Mode    packaging.Mode
	Current uint32
	Target  uint32
	SpeedA  packaging.Speed
	SpeedB  packaging.Speed
}

// PackagingComplete is published exactly once per packaging run (§6).
type PackagingComplete struct {
	Target     uint32
	FinalCount uint32
}

// MethodChanged is published after a successful set_method (§6).
type MethodChanged struct {
	PartID   string
	MethodID string
	Intent   string
	RunID    string
}

// Observer is a pull-model passive listener invoked synchronously in
// orchestrator order (§4.F). An observer that returns an error is logged
// and unregistered.
type Observer interface {
	OnFrameProcessed(FrameProcessed) error
	OnGateCrossing(GateCrossing) error
	OnPackagingStateChanged(PackagingStateChanged) error
	OnPackagingComplete(PackagingComplete) error
	OnMethodChanged(MethodChanged) error
}
