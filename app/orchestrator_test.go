package app

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/detect"
	"github.com/crmado/realtime-item-monitor/domain/frame"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubDetector counts ProcessFrame invocations and records the last ROI
// view's dimensions, letting tests assert on the orchestrator's tick
// pipeline without depending on gocv's background-subtraction behavior.
type stubDetector struct {
	mu        sync.Mutex
	calls     int
	lastCols  int
	lastRows  int
	result    detect.Result
	err       error
	resetHits int
}

func (d *stubDetector) Enable()          {}
func (d *stubDetector) Disable()         {}
func (d *stubDetector) Enabled() bool    { return true }
func (d *stubDetector) Reset()           { d.resetHits++ }
func (d *stubDetector) UpdateConfig(config.DetectionConfig) error { return nil }

func (d *stubDetector) ProcessFrame(fullFrame, roiView gocv.Mat, yOffset int, annotate bool) (detect.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastCols = roiView.Cols()
	d.lastRows = roiView.Rows()
	return d.result, d.err
}

// stubObserver optionally fails every call, letting tests exercise the
// orchestrator's unregister-on-error dispatch rule (§4.F).
type stubObserver struct {
	fail            bool
	frameProcessed  int
}

func (o *stubObserver) OnFrameProcessed(FrameProcessed) error {
	o.frameProcessed++
	if o.fail {
		return errAlwaysFails
	}
	return nil
}
func (o *stubObserver) OnGateCrossing(GateCrossing) error                   { return nil }
func (o *stubObserver) OnPackagingStateChanged(PackagingStateChanged) error { return nil }
func (o *stubObserver) OnPackagingComplete(PackagingComplete) error         { return nil }
func (o *stubObserver) OnMethodChanged(MethodChanged) error                 { return nil }

var errAlwaysFails = &stubError{"stub observer failure"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func newTestOrchestrator(t *testing.T, stub *stubDetector) (*Orchestrator, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	registry := detect.NewRegistry()
	registry.Register("counting", func(config.DetectionConfig, config.GateConfig, *gate.Counter) (detect.Detector, error) {
		return stub, nil
	})
	registry.Register("defect", func(config.DetectionConfig, config.GateConfig, *gate.Counter) (detect.Detector, error) {
		return stub, nil
	})

	src := frame.NewSynthetic(func(seq uint64) gocv.Mat {
		return gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	}, 0)

	o, err := NewOrchestrator(src, registry, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o, cfg
}

func testFrame(seq uint64) frame.Frame {
	return frame.Frame{Mat: gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U), Sequence: seq}
}

// TestTickAppliesFrameSkip verifies §4.F step (iii): with frame_skip = n, only 1 of every
// (n+1) frames reaches the Detector.
func TestTickAppliesFrameSkip(t *testing.T) {
	stub := &stubDetector{}
	o, cfg := newTestOrchestrator(t, stub)
	cfg.Performance.FrameSkip = 2
	o.perfCfg = cfg.Performance

	for i := uint64(1); i <= 6; i++ {
		o.tick(testFrame(i))
	}

	if stub.calls != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls)
	}
	if o.dropped.Load() != 4 {
		t.Fatalf("dropped = %d, want 4", o.dropped.Load())
	}
}

// TestTickAppliesDownscaleBeforeROICrop verifies the downscale factor
// shrinks the Mat handed to ROI cropping, and therefore to the Detector.
func TestTickAppliesDownscaleBeforeROICrop(t *testing.T) {
	stub := &stubDetector{}
	o, cfg := newTestOrchestrator(t, stub)
	cfg.Performance.DownscaleFactor = 0.5
	o.perfCfg = cfg.Performance

	o.tick(testFrame(1))

	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
	if stub.lastCols != 320 {
		t.Fatalf("lastCols = %d, want 320", stub.lastCols)
	}
}

// TestSetMethodResetsPackagingOnIntentChange verifies §4.F's set_method
// contract: switching method_id resets the Packaging Controller.
func TestSetMethodResetsPackagingOnIntentChange(t *testing.T) {
	stub := &stubDetector{}
	o, _ := newTestOrchestrator(t, stub)

	o.pkg.Start()
	o.pkg.OnCountChanged(5)
	if o.pkg.Current() != 5 {
		t.Fatalf("Current() = %d, want 5", o.pkg.Current())
	}

	if err := o.SetMethod("part-1", "defect", config.DetectionConfig{}); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}

	if o.pkg.Current() != 0 {
		t.Fatalf("Current() after method switch = %d, want 0", o.pkg.Current())
	}
}

// TestSetMethodPreservesPackagingWhenIntentUnchanged verifies switching
// part_id without changing method_id leaves Packaging Controller state
// alone.
func TestSetMethodPreservesPackagingWhenIntentUnchanged(t *testing.T) {
	stub := &stubDetector{}
	o, _ := newTestOrchestrator(t, stub)

	o.pkg.Start()
	o.pkg.OnCountChanged(7)

	if err := o.SetMethod("part-2", "counting", config.DetectionConfig{}); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}

	if o.pkg.Current() != 7 {
		t.Fatalf("Current() = %d, want 7 (unchanged)", o.pkg.Current())
	}
}

// TestSetMethodPreservesGateCounterWhenIntentUnchanged verifies §4.F:
// switching part_id without changing method_id ("counting" -> "counting")
// must not zero the Gate Counter's crossing_count, since the counter is
// owned by the orchestrator rather than re-allocated by the Registry.
func TestSetMethodPreservesGateCounterWhenIntentUnchanged(t *testing.T) {
	stub := &stubDetector{}
	o, _ := newTestOrchestrator(t, stub)

	o.counter.OnFrame([]gate.Detection{{CX: 10, CY: 120}}, 240)
	if o.counter.CrossingCount() != 1 {
		t.Fatalf("CrossingCount() = %d, want 1", o.counter.CrossingCount())
	}

	if err := o.SetMethod("part-2", "counting", config.DetectionConfig{}); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}

	if o.counter.CrossingCount() != 1 {
		t.Fatalf("CrossingCount() after same-intent switch = %d, want 1 (preserved)", o.counter.CrossingCount())
	}
}

// TestSetMethodResetsGateCounterOnIntentChange verifies the complementary
// half of §4.F: the Gate Counter does reset when the intent itself changes.
func TestSetMethodResetsGateCounterOnIntentChange(t *testing.T) {
	stub := &stubDetector{}
	o, _ := newTestOrchestrator(t, stub)

	o.counter.OnFrame([]gate.Detection{{CX: 10, CY: 120}}, 240)

	if err := o.SetMethod("part-1", "defect", config.DetectionConfig{}); err != nil {
		t.Fatalf("SetMethod: %v", err)
	}

	if o.counter.CrossingCount() != 0 {
		t.Fatalf("CrossingCount() after intent change = %d, want 0", o.counter.CrossingCount())
	}
}

// TestDispatchUnregistersErroringObserver verifies §4.F's dispatch rule: an
// observer whose call errors is dropped from future dispatches, while
// well-behaved observers keep receiving events.
func TestDispatchUnregistersErroringObserver(t *testing.T) {
	stub := &stubDetector{}
	o, _ := newTestOrchestrator(t, stub)

	bad := &stubObserver{fail: true}
	good := &stubObserver{}
	o.RegisterObserver(bad)
	o.RegisterObserver(good)

	o.tick(testFrame(1))
	o.tick(testFrame(2))

	if bad.frameProcessed != 1 {
		t.Fatalf("bad.frameProcessed = %d, want 1 (unregistered after first failure)", bad.frameProcessed)
	}
	if good.frameProcessed != 2 {
		t.Fatalf("good.frameProcessed = %d, want 2", good.frameProcessed)
	}

	o.obsMu.Lock()
	n := len(o.observers)
	o.obsMu.Unlock()
	if n != 1 {
		t.Fatalf("len(observers) = %d, want 1", n)
	}
}
