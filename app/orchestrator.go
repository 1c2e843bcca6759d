package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/crmado/realtime-item-monitor/apperr"
	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/debug"
	"github.com/crmado/realtime-item-monitor/domain/detect"
	"github.com/crmado/realtime-item-monitor/domain/frame"
	"github.com/crmado/realtime-item-monitor/domain/gate"
	"github.com/crmado/realtime-item-monitor/domain/packaging"
	"github.com/crmado/realtime-item-monitor/domain/roi"
)

// downscaleFactors is the closed set of permitted downscale ratios (§4.F).
var downscaleFactors = map[float64]bool{1.0: true, 0.75: true, 0.5: true, 0.3: true}

// Orchestrator is the Pipeline Orchestrator (§4.F): pulls frames from a
// Frame Source, runs them through ROI crop, the active Detector, and (for
// the counting intent) the Packaging Controller, then publishes results to
// registered observers.
type Orchestrator struct {
	logger *slog.Logger
	runID  string

	source   frame.Source
	registry *detect.Registry
	pkg      *packaging.Controller

	// counter is the Gate Counter (§4.D), owned by the orchestrator rather
	// than by any single Detector instance: it must outlive a same-intent
	// method switch (counting<->counting, §4.F) and is only replaced when
	// the intent itself changes.
	counter *gate.Counter

	gateCfg config.GateConfig
	perfCfg config.PerformanceConfig

	// detMu guards the active detector together with the metadata that
	// must change atomically with it. It is held for the full duration of
	// ProcessFrame (read lock), not just the pointer read: a detector swap
	// (write lock) must wait for any in-flight tick to finish with the old
	// instance before SetMethod is allowed to Close() it, otherwise a
	// method switch could free a detector's gocv Mats/MOG2 model while
	// ProcessFrame is still using them (§5: a method switch must cancel,
	// not race, in-flight processing of the current frame).
	detMu         sync.RWMutex
	detector      detect.Detector
	detectorCfg   config.DetectionConfig
	currentPartID string
	currentMethod string

	obsMu     sync.Mutex
	observers []Observer

	frameCounter uint64
	running      atomic.Bool
	cancel       context.CancelFunc
	done         chan struct{}

	processNanos atomic.Uint64
	processCount atomic.Uint64
	dropped      atomic.Uint64
}

// NewOrchestrator constructs an Orchestrator bound to src, with the
// "counting" method pre-selected from cfg.
func NewOrchestrator(src frame.Source, registry *detect.Registry, cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:   logger,
		runID:    uuid.NewString(),
		source:   src,
		registry: registry,
		pkg:      packaging.NewController(cfg.Packaging, logger),
		gateCfg:  cfg.Gate,
		perfCfg:  cfg.Performance,
	}
	o.pkg.AddListener(func(mode packaging.Mode, current, target uint32, speedA, speedB packaging.Speed) {
		o.publishPackagingStateChanged(PackagingStateChanged{Mode: mode, Current: current, Target: target, SpeedA: speedA, SpeedB: speedB})
	})
	o.pkg.AddCompleteListener(func(target, final uint32) {
		o.publishPackagingComplete(PackagingComplete{Target: target, FinalCount: final})
	})

	o.counter = gate.NewCounter(cfg.Gate)
	det, err := registry.Build("counting", cfg.Detection, cfg.Gate, o.counter)
	if err != nil {
		return nil, err
	}
	o.detector = det
	o.detectorCfg = cfg.Detection
	o.currentMethod = "counting"
	return o, nil
}

// Start launches the Frame Source and the orchestrator's consumer loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.source.Start(ctx); err != nil {
		return err
	}
	o.running.Store(true)
	o.done = make(chan struct{})
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	go o.loop(loopCtx)

	if o.perfCfg.Debug {
		debug.StartGoroutineLogger(5*time.Second, o.logger)
		debug.StartMemLogger(5*time.Second, o.logger)
	}
	return nil
}

// Stop stops the consumer loop before returning (§5), then stops the
// Frame Source.
func (o *Orchestrator) Stop() error {
	if !o.running.CompareAndSwap(true, false) {
		return nil
	}
	if o.cancel != nil {
		o.cancel()
	}
	<-o.done
	return o.source.Stop()
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	targetPeriod := time.Second / 280 // reference platform's ~280fps target
	wasDegraded := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok := o.source.Latest()
		if !ok {
			// A degraded source (§4.A: three consecutive read failures)
			// reports no frames until the user stops and restarts it;
			// surface that distinctly from an ordinary "nothing produced
			// yet" miss, but only on the transition so a stuck source
			// doesn't flood the log.
			degraded := o.source.Stats().Degraded
			if degraded && !wasDegraded {
				o.logger.Warn("frame source degraded", "error", apperr.New(apperr.SourceDegraded, "no frame available after repeated read failures"))
			}
			wasDegraded = degraded
			time.Sleep(targetPeriod)
			continue
		}
		wasDegraded = false
		o.tick(f)
	}
}

// tick implements one pass of §4.F's contract: downscale, frame-skip,
// delegate to the Detector, feed the Packaging Controller, publish.
func (o *Orchestrator) tick(f frame.Frame) {
	defer f.Release()

	o.frameCounter++
	skip := o.perfCfg.FrameSkip
	if skip > 0 && o.frameCounter%uint64(skip+1) != 0 {
		o.dropped.Add(1)
		return
	}

	mat := f.Mat
	if factor := o.perfCfg.DownscaleFactor; downscaleFactors[factor] && factor != 1.0 {
		// Downscale is a scratch operation on an owned clone; the original
		// frame's Mat is released by the deferred f.Release above.
		scaled := downscale(mat, factor)
		defer scaled.Close()
		mat = scaled
	}

	start := time.Now()

	// The read lock is held across ProcessFrame itself, not just the
	// pointer snapshot: this is what makes a concurrent SetMethod's
	// Close(old) wait until this tick is done touching the detector,
	// instead of racing a teardown against an in-flight Apply/morphology
	// call on the same Mats.
	o.detMu.RLock()
	det := o.detector
	gateCfg := o.gateCfg
	intent := o.currentMethod

	view, yOffset := roi.Crop(mat, gateCfg)
	result, err := det.ProcessFrame(mat, view, yOffset, o.perfCfg.Debug)
	o.detMu.RUnlock()
	view.Close()

	if err != nil {
		if ae, ok := err.(*apperr.Error); ok && ae.Kind.Fatal() {
			o.logger.Error("detector fatal error, stopping orchestrator", "error", err)
			// Stop waits for this loop goroutine to exit, so it must run on
			// another goroutine; the loop returns once ctx is cancelled.
			go func() { _ = o.Stop() }()
			return
		}
		o.logger.Warn("detector transient error, frame skipped", "error", err, "sequence", f.Sequence)
		return
	}

	if len(result.NewCrossings) > 0 {
		o.publishGateCrossing(GateCrossing{
			Sequence:    f.Sequence,
			CountAfter:  result.CrossingCount,
			CrossingsIn: len(result.NewCrossings),
		})
	}
	if intent == "counting" {
		o.pkg.OnCountChanged(uint32(result.CrossingCount))
	}

	elapsed := time.Since(start)
	o.processNanos.Add(uint64(elapsed.Nanoseconds()))
	count := o.processCount.Add(1)

	stats := PipelineStats{
		AvgProcessMicros: float64(o.processNanos.Load()) / float64(count) / 1000.0,
		DroppedFrames:    o.dropped.Load(),
		AppliedSkip:      skip,
	}
	if o.perfCfg.Debug && count%280 == 0 {
		o.logger.Debug("pipeline stats",
			slog.String("avg_process", humanize.SIWithDigits(stats.AvgProcessMicros/1e6, 3, "s")),
			slog.Uint64("dropped_frames", stats.DroppedFrames))
	}

	o.publishFrameProcessed(FrameProcessed{
		Sequence:        f.Sequence,
		FPS:             float64(o.source.FPS()),
		DetectorIntent:  intent,
		AnnotatedFrame:  result.Annotated,
		DetectorResults: result,
		Stats:           stats,
	})
}

// SetMethod implements §4.F's set_method(part_id, method_id): builds the
// new Detector, then takes detMu's write lock to swap it in and close the
// old one. Taking the write lock blocks until any tick currently holding
// the read lock across ProcessFrame has released it, so the old
// detector's Mats/MOG2 model are never closed while still in use (§5: a
// method switch cancels in-flight processing of the current frame rather
// than racing its teardown). Gate Counter / Packaging Controller state is
// reset only when the detection intent actually changes. The Gate Counter
// itself is orchestrator-owned (not rebuilt by the Registry), so a
// same-intent swap (counting<->counting across parts) hands the existing
// counter to the new Detector instead of starting one at zero.
func (o *Orchestrator) SetMethod(partID, methodID string, detCfg config.DetectionConfig) error {
	o.detMu.RLock()
	intentChanged := o.currentMethod != methodID
	o.detMu.RUnlock()

	if intentChanged {
		o.counter.Reset()
	}

	newDetector, err := o.registry.Build(methodID, detCfg, o.gateCfg, o.counter)
	if err != nil {
		return err
	}

	// The write lock blocks until any tick currently holding the read lock
	// (i.e. mid-ProcessFrame on the old detector) has released it, so
	// old's teardown below can never race a live Apply/morphology call on
	// its Mats. Close happens while still holding the write lock: once the
	// pointer swap is visible, no future RLock can observe old again, so
	// there is no window where a new reader could reach a closed detector
	// either.
	o.detMu.Lock()
	old := o.detector
	o.detector = newDetector
	o.detectorCfg = detCfg
	o.currentPartID = partID
	o.currentMethod = methodID
	if closer, ok := old.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	o.detMu.Unlock()

	if intentChanged {
		o.pkg.Reset()
	}

	o.publishMethodChanged(MethodChanged{PartID: partID, MethodID: methodID, Intent: methodID, RunID: o.runID})
	return nil
}

// StartPackaging, PausePackaging and ResetPackaging expose the Packaging
// Controller's lifecycle to the outer shell (§6's CLI/operator surface).
func (o *Orchestrator) StartPackaging() { o.pkg.Start() }
func (o *Orchestrator) PausePackaging() { o.pkg.Pause() }
func (o *Orchestrator) ResetPackaging() { o.pkg.Reset() }

// ResetCounter resets the active Detector, which zeroes its Gate Counter
// along with any internal background model (§6's "reset counter").
func (o *Orchestrator) ResetCounter() {
	// Reset() mutates the detector's background model and Gate Counter in
	// place; it needs the same exclusion as a detector swap so it cannot
	// run concurrently with an in-flight ProcessFrame on the same Mats.
	o.detMu.Lock()
	defer o.detMu.Unlock()
	o.detector.Reset()
}

// SetTarget updates the Packaging Controller's dose target (§6's "set
// target").
func (o *Orchestrator) SetTarget(target uint32) { o.pkg.SetTarget(target) }

// CurrentPart reports the part_id and method_id the orchestrator is
// currently running, for status reporting on the operator surface.
func (o *Orchestrator) CurrentPart() (partID, methodID string) {
	o.detMu.RLock()
	defer o.detMu.RUnlock()
	return o.currentPartID, o.currentMethod
}

// RegisterObserver adds an observer to the dispatch list. Safe to call
// concurrently with the processing loop; registration itself never
// happens from inside the loop (§5).
func (o *Orchestrator) RegisterObserver(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) publishFrameProcessed(ev FrameProcessed) {
	o.dispatch(func(obs Observer) error { return obs.OnFrameProcessed(ev) })
}
func (o *Orchestrator) publishGateCrossing(ev GateCrossing) {
	o.dispatch(func(obs Observer) error { return obs.OnGateCrossing(ev) })
}
func (o *Orchestrator) publishPackagingStateChanged(ev PackagingStateChanged) {
	o.dispatch(func(obs Observer) error { return obs.OnPackagingStateChanged(ev) })
}
func (o *Orchestrator) publishPackagingComplete(ev PackagingComplete) {
	o.dispatch(func(obs Observer) error { return obs.OnPackagingComplete(ev) })
}
func (o *Orchestrator) publishMethodChanged(ev MethodChanged) {
	o.dispatch(func(obs Observer) error { return obs.OnMethodChanged(ev) })
}

// dispatch invokes fn against every registered observer, in registration
// order; an observer whose call errors is logged and unregistered (§4.F).
func (o *Orchestrator) dispatch(fn func(Observer) error) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	kept := o.observers[:0]
	for _, obs := range o.observers {
		if err := fn(obs); err != nil {
			o.logger.Warn("observer error, unregistering", "error", err)
			continue
		}
		kept = append(kept, obs)
	}
	o.observers = kept
}
