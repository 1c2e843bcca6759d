// Package gate implements the Gate Counter (§4.D): a pure, ordered state
// machine that turns a per-frame stream of detections into a monotonic
// crossing count, de-duplicating a single object's multiple consecutive
// detections into one crossing.
package gate

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crmado/realtime-item-monitor/config"
)

// point is a triggered crossing's location and insertion frame, evicted
// once older than gate_history_frames.
type point struct {
	cx, cy     int
	insertedAt uint64
}

// Crossing is one accepted gate-crossing event.
type Crossing struct {
	CX, CY     int
	FrameIndex uint64
}

// Detection is the minimal shape the counter needs from a detector's
// output; detect.Detection satisfies this structurally.
type Detection struct {
	CX, CY int
}

// Counter is the Gate Counter (§4.D). Not safe for concurrent use: the
// orchestrator must call OnFrame sequentially from a single goroutine so
// crossing_count is a pure function of detection-list order (§5, P1-P5).
//
// triggered records live in an LRU cache rather than a plain slice: the
// age-scan in OnFrame evicts everything older than gate_history_frames, but
// a misconfigured (very large) gate_history_frames would otherwise let the
// set grow without bound (I5 only promises a bound "within any
// gate_history_frames window", not an absolute one). Backing the set with a
// fixed-capacity LRU makes that bound structural: the oldest record is
// evicted on insert once capacity is reached, regardless of configuration.
type Counter struct {
	cfg config.GateConfig

	frameIndex    uint64
	crossingCount uint64
	triggered     *lru.Cache[int, point]
	nextID        int
}

// NewCounter constructs a Counter. The triggered-set capacity scales with
// gate_history_frames so the LRU bound never interferes with normal
// operation at a sane configuration.
func NewCounter(cfg config.GateConfig) *Counter {
	capacity := cfg.GateHistoryFrames * 4
	if capacity < 64 {
		capacity = 64
	}
	triggered, _ := lru.New[int, point](capacity)
	return &Counter{cfg: cfg, triggered: triggered}
}

// gateY computes the gate line's y coordinate within the ROI for the
// current frame (§3): a fixed fraction of the ROI height.
func gateY(roiHeight int, gateRatio float64) int {
	return int(gateRatio * float64(roiHeight))
}

// OnFrame implements the procedure of §4.D.3-5. detections must be in the
// ROI's coordinate space with cy measured from the ROI's top; roiHeight is
// the ROI's height for the current frame.
func (c *Counter) OnFrame(detections []Detection, roiHeight int) []Crossing {
	c.frameIndex++
	gy := gateY(roiHeight, c.cfg.GateRatio)

	// Evict records strictly older than the history window.
	for _, id := range c.triggered.Keys() {
		p, ok := c.triggered.Peek(id)
		if ok && p.insertedAt+uint64(c.cfg.GateHistoryFrames) <= c.frameIndex {
			c.triggered.Remove(id)
		}
	}

	var newCrossings []Crossing
	for _, d := range detections {
		if d.CY < gy {
			continue
		}
		if c.isDuplicate(d.CX, d.CY) {
			continue
		}
		c.nextID++
		c.triggered.Add(c.nextID, point{cx: d.CX, cy: d.CY, insertedAt: c.frameIndex})
		c.crossingCount++
		newCrossings = append(newCrossings, Crossing{CX: d.CX, CY: d.CY, FrameIndex: c.frameIndex})
	}
	return newCrossings
}

func (c *Counter) isDuplicate(cx, cy int) bool {
	r := c.cfg.GateTriggerRadius
	for _, p := range c.triggered.Values() {
		dx := float64(cx - p.cx)
		dy := float64(cy - p.cy)
		if math.Hypot(dx, dy) <= r {
			return true
		}
	}
	return false
}

// CrossingCount returns the monotonic total accepted since construction or
// the last Reset.
func (c *Counter) CrossingCount() uint64 { return c.crossingCount }

// FrameIndex returns the number of frames processed since construction or
// the last Reset.
func (c *Counter) FrameIndex() uint64 { return c.frameIndex }

// Reset zeroes crossing_count, clears triggered, and zeroes frame_index
// (§4.D), mirroring the teacher's full-zero BiteDetector.Reset discipline.
func (c *Counter) Reset() {
	c.frameIndex = 0
	c.crossingCount = 0
	c.nextID = 0
	c.triggered.Purge()
}
