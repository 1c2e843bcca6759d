package detect

import (
	"fmt"
	"sync"

	"github.com/crmado/realtime-item-monitor/apperr"
	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

// Registry is the Method Registry (§4.G): a map from method_id to a
// Constructor, letting the orchestrator switch detection methods at
// runtime without a compile-time dependency on every variant. Grounded on
// the DetectorRegistry shape from the broader pack's orbo pipeline
// (Register/Get/GetAll), narrowed to this pipeline's construct-by-config
// usage rather than held-open detector instances.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a Registry pre-populated with the built-in
// "counting" and "defect" methods.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register("counting", NewCountingDetector)
	r.Register("defect", NewDefectDetector)
	return r
}

// Register installs a Constructor under method_id, overwriting any prior
// registration for the same id.
func (r *Registry) Register(methodID string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[methodID] = ctor
}

// MethodIDs returns the set of registered method identifiers.
func (r *Registry) MethodIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	return ids
}

// Build constructs a Detector for methodID, or a MethodUnknown error if no
// Constructor is registered under that id (§7). counter is threaded
// through to the Constructor so a caller switching detectors within the
// same intent can keep the Gate Counter it already owns instead of
// starting a fresh one (§4.F).
func (r *Registry) Build(methodID string, detCfg config.DetectionConfig, gateCfg config.GateConfig, counter *gate.Counter) (Detector, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[methodID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.MethodUnknown, fmt.Sprintf("method_id %q is not registered", methodID))
	}
	return ctor(detCfg, gateCfg, counter)
}
