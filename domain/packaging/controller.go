// Package packaging implements the Packaging Controller (§4.E): a state
// machine that turns a running part count into a pair of vibrator speed
// commands, dosing a pack toward a target count.
package packaging

import (
	"log/slog"

	"github.com/crmado/realtime-item-monitor/config"
)

// Mode is the Packaging Controller's state (§4.E).
type Mode int

const (
	Idle Mode = iota
	Running
	Paused
	Complete
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Speed is one of the five vibrator speed commands (§4.E).
type Speed int

const (
	Stop Speed = iota
	Creep
	Slow
	Medium
	Full
)

func (s Speed) String() string {
	switch s {
	case Stop:
		return "stop"
	case Creep:
		return "creep"
	case Slow:
		return "slow"
	case Medium:
		return "medium"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Listener receives Packaging Controller state changes; it is invoked
// synchronously from within on_count_changed/start/pause/reset, mirroring
// the orchestrator's synchronous, ordered observer dispatch (§4.F) rather
// than the teacher's internal-event-channel FSM, so counting-path purity
// (no goroutine hop) is preserved.
type Listener func(mode Mode, current, target uint32, speedA, speedB Speed)

// CompleteListener is invoked exactly once when current first reaches
// target, per §4.E's packaging_complete event.
type CompleteListener func(target, finalCount uint32)

// Controller is the Packaging Controller (§4.E). Not safe for concurrent
// use; OnCountChanged must be called from the same goroutine that owns the
// Gate Counter, since packaging state is a pure function of the ordered
// crossing-count stream (§5, P7).
type Controller struct {
	cfg    config.PackagingConfig
	logger *slog.Logger

	mode    Mode
	current uint32

	listeners         []Listener
	completeListeners []CompleteListener
}

// NewController constructs a Controller in the Idle state.
func NewController(cfg config.PackagingConfig, logger *slog.Logger) *Controller {
	return &Controller{cfg: cfg, logger: logger, mode: Idle}
}

// AddListener registers a state-change listener, invoked synchronously in
// registration order.
func (c *Controller) AddListener(l Listener) { c.listeners = append(c.listeners, l) }

// AddCompleteListener registers a packaging_complete listener.
func (c *Controller) AddCompleteListener(l CompleteListener) {
	c.completeListeners = append(c.completeListeners, l)
}

// Mode returns the controller's current state.
func (c *Controller) Mode() Mode { return c.mode }

// SetTarget updates the dose target (§6's "set target"), re-evaluating
// speeds under the new target immediately.
func (c *Controller) SetTarget(target uint32) {
	c.cfg.Target = target
	c.notify()
}

// Current returns the current count.
func (c *Controller) Current() uint32 { return c.current }

// Start transitions Idle->Running or Paused->Running (§4.E).
func (c *Controller) Start() {
	if c.mode == Idle || c.mode == Paused {
		c.mode = Running
		c.notify()
	}
}

// Pause transitions Running->Paused (§4.E); a no-op in any other mode.
func (c *Controller) Pause() {
	if c.mode == Running {
		c.mode = Paused
		c.notify()
	}
}

// Reset puts the controller back in Idle and zeroes current (§4.E).
func (c *Controller) Reset() {
	c.mode = Idle
	c.current = 0
	c.notify()
}

// OnCountChanged implements §4.E's on_count_changed contract: recomputes
// speed_a/speed_b from the progress ratio, and on first reaching target
// transitions Running->Complete, firing packaging_complete once.
func (c *Controller) OnCountChanged(current uint32) {
	c.current = current
	wasComplete := c.mode == Complete

	if c.mode == Running && c.cfg.Target > 0 && current >= c.cfg.Target && !wasComplete {
		c.mode = Complete
		c.notify()
		for _, l := range c.completeListeners {
			l(c.cfg.Target, current)
		}
		return
	}
	if c.mode == Running || c.mode == Paused {
		c.notify()
	}
}

// Speeds computes the current (speed_a, speed_b) pair from the progress
// ratio current/target, per §4.E's table. Stop/Stop is returned outside
// Running (Idle, Paused, Complete all hold the vibrators still).
func (c *Controller) Speeds() (speedA, speedB Speed) {
	if c.mode != Running {
		return Stop, Stop
	}
	if c.cfg.Target == 0 {
		return Full, Full
	}
	progress := float64(c.current) / float64(c.cfg.Target)
	switch {
	case progress >= 1.0:
		return Stop, Stop
	case progress >= c.cfg.TCreep:
		return Creep, Slow
	case progress >= c.cfg.TSlow:
		return Slow, Medium
	case progress >= c.cfg.TMedium:
		return Medium, Full
	default:
		return Full, Full
	}
}

func (c *Controller) notify() {
	speedA, speedB := c.Speeds()
	for _, l := range c.listeners {
		l(c.mode, c.current, c.cfg.Target, speedA, speedB)
	}
}
