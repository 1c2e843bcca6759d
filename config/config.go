// Package config holds runtime configuration for the detection, gate,
// performance and packaging subsystems, plus the part library. Fields are
// loaded from a JSON file and may be overridden by command-line flags.
package config

import (
	"github.com/crmado/realtime-item-monitor/apperr"
)

// DetectionConfig parametrizes the Counting and Defect detectors (§3).
type DetectionConfig struct {
	// Counting variant
	MinArea             float64 `json:"min_area"`
	MaxArea             float64 `json:"max_area"`
	BGHistory           int     `json:"bg_history"`
	BGVarThreshold      float64 `json:"bg_var_threshold"`
	BGLearningRate      float64 `json:"bg_learning_rate"`
	MultiStrategy       bool    `json:"multi_strategy"`
	HighSpeed           bool    `json:"high_speed"`
	HighSpeedMinArea    float64 `json:"high_speed_min_area"`
	HighSpeedMaxArea    float64 `json:"high_speed_max_area"`
	HighSpeedBGHistory  int     `json:"high_speed_bg_history"`

	// Defect variant
	CannyLow              float64 `json:"canny_low"`
	CannyHigh             float64 `json:"canny_high"`
	GrayAnomalyStdDevMult float64 `json:"gray_anomaly_stddev_multiplier"`
	MinDefectArea         float64 `json:"min_defect_area"`
	MaxDefectArea         float64 `json:"max_defect_area"`
}

// GateConfig parametrizes ROI cropping and the virtual gate (§3).
type GateConfig struct {
	ROIEnabled        bool    `json:"roi_enabled"`
	ROIHeight         int     `json:"roi_height"`
	ROIPositionRatio  float64 `json:"roi_position_ratio"`
	GateRatio         float64 `json:"gate_ratio"`
	GateTriggerRadius float64 `json:"gate_trigger_radius"`
	GateHistoryFrames int     `json:"gate_history_frames"`
}

// PerformanceConfig controls the orchestrator's downscale/frame-skip path
// (§4.F) and debug instrumentation (§10.1).
type PerformanceConfig struct {
	DownscaleFactor float64 `json:"downscale_factor"` // one of {1.0, 0.75, 0.5, 0.3}
	FrameSkip       int     `json:"frame_skip"`       // process 1 of every (skip+1) frames
	Debug           bool    `json:"debug"`
}

// PackagingConfig parametrizes the feeder dose-control policy (§4.E).
type PackagingConfig struct {
	Target  uint32  `json:"target"`
	TMedium float64 `json:"t_medium"`
	TSlow   float64 `json:"t_slow"`
	TCreep  float64 `json:"t_creep"`
}

// MethodConfig pairs a method_id with its config record as stored in a part
// profile's available_methods list (§3).
type MethodConfig struct {
	MethodID string          `json:"method_id"`
	Config   DetectionConfig `json:"config"`
}

// PartProfile is a named part with an ordered list of usable detection
// methods and the currently-selected one (§3).
type PartProfile struct {
	PartID           string         `json:"part_id"`
	PartName         string         `json:"part_name"`
	AvailableMethods []MethodConfig `json:"available_methods"`
	CurrentMethodID  string         `json:"current_method_id"`
}

// Config is the full configuration record persisted to a single JSON file
// (§6): detection, gate, performance, packaging, plus the part library.
type Config struct {
	Detection   DetectionConfig   `json:"detection"`
	Gate        GateConfig        `json:"gate"`
	Performance PerformanceConfig `json:"performance"`
	Packaging   PackagingConfig   `json:"packaging"`
	PartLibrary []PartProfile     `json:"part_library"`
}

// DefaultConfig returns a Config populated with standard defaults, mirroring
// the reference platform's tuning.
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			MinArea:               30,
			MaxArea:               20000,
			BGHistory:             500,
			BGVarThreshold:        16,
			BGLearningRate:        -1, // negative: auto rate, matches OpenCV's MOG2 convention
			MultiStrategy:         false,
			HighSpeed:             false,
			HighSpeedMinArea:      1,
			HighSpeedMaxArea:      2000,
			HighSpeedBGHistory:    120,
			CannyLow:              50,
			CannyHigh:             150,
			GrayAnomalyStdDevMult: 2.5,
			MinDefectArea:         40,
			MaxDefectArea:         15000,
		},
		Gate: GateConfig{
			ROIEnabled:        true,
			ROIHeight:         240,
			ROIPositionRatio:  0.35,
			GateRatio:         0.5,
			GateTriggerRadius: 25,
			GateHistoryFrames: 8,
		},
		Performance: PerformanceConfig{
			DownscaleFactor: 1.0,
			FrameSkip:       0,
			Debug:           false,
		},
		Packaging: PackagingConfig{
			Target:  0,
			TMedium: 0.85,
			TSlow:   0.93,
			TCreep:  0.97,
		},
		PartLibrary: nil,
	}
}

// knownMethodIDs lists the method_ids the Method Registry can construct.
// Kept here (rather than importing the registry package, which would
// create an import cycle) because config validation only needs the
// identifier set.
var knownMethodIDs = map[string]bool{
	"counting": true,
	"defect":   true,
}

// Validate checks I1-I3 and the part-library/method-registry cross-check
// from §6. Unlike the teacher's clamp-style Validate (which silently
// normalizes out-of-range values), this Validate fails fast: §6 requires
// the system to name the first violated invariant and fall back to
// built-in defaults rather than silently run on a clamped config.
func (c *Config) Validate() error {
	if c == nil {
		return apperr.New(apperr.ConfigInvalid, "config is nil")
	}
	if !(c.Detection.MinArea < c.Detection.MaxArea) || c.Detection.MinArea <= 0 {
		return apperr.New(apperr.ConfigInvalid, "I1: min_area < max_area, both > 0")
	}
	if c.Gate.ROIPositionRatio < 0 || c.Gate.ROIPositionRatio > 1 {
		return apperr.New(apperr.ConfigInvalid, "I2: roi_position_ratio must be in [0,1]")
	}
	if c.Gate.GateRatio < 0 || c.Gate.GateRatio > 1 {
		return apperr.New(apperr.ConfigInvalid, "I2: gate_ratio must be in [0,1]")
	}
	if c.Gate.GateTriggerRadius <= 0 {
		return apperr.New(apperr.ConfigInvalid, "I3: gate_trigger_radius must be > 0")
	}
	if c.Packaging.TMedium <= 0 || c.Packaging.TMedium >= c.Packaging.TSlow ||
		c.Packaging.TSlow >= c.Packaging.TCreep || c.Packaging.TCreep >= 1.0 {
		return apperr.New(apperr.ConfigInvalid, "packaging thresholds must satisfy t_medium < t_slow < t_creep < 1.0")
	}
	for _, p := range c.PartLibrary {
		if len(p.AvailableMethods) == 0 {
			return apperr.New(apperr.ConfigInvalid, "part_library["+p.PartID+"].available_methods is empty")
		}
		ok := false
		for _, m := range p.AvailableMethods {
			if knownMethodIDs[m.MethodID] {
				ok = true
				break
			}
		}
		if !ok {
			return apperr.New(apperr.ConfigInvalid, "part_library["+p.PartID+"]: no method_id is known to the registry")
		}
	}
	return nil
}
