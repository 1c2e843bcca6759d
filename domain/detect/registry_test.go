package detect

import (
	"testing"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

func TestRegistryBuildsKnownMethods(t *testing.T) {
	r := NewRegistry()
	cfg := config.DefaultConfig()
	counter := gate.NewCounter(cfg.Gate)

	for _, id := range []string{"counting", "defect"} {
		d, err := r.Build(id, cfg.Detection, cfg.Gate, counter)
		if err != nil {
			t.Fatalf("Build(%q): %v", id, err)
		}
		if d == nil {
			t.Fatalf("Build(%q) returned nil detector", id)
		}
	}
}

func TestRegistryUnknownMethodIsError(t *testing.T) {
	r := NewRegistry()
	cfg := config.DefaultConfig()
	counter := gate.NewCounter(cfg.Gate)

	_, err := r.Build("nonexistent", cfg.Detection, cfg.Gate, counter)
	if err == nil {
		t.Fatal("expected error for unknown method_id")
	}
}

func TestRegistryRegisterOverridesExisting(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("counting", func(cfg config.DetectionConfig, gateCfg config.GateConfig, counter *gate.Counter) (Detector, error) {
		called = true
		return NewCountingDetector(cfg, gateCfg, counter)
	})

	cfg := config.DefaultConfig()
	counter := gate.NewCounter(cfg.Gate)
	if _, err := r.Build("counting", cfg.Detection, cfg.Gate, counter); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !called {
		t.Fatal("expected overridden constructor to be invoked")
	}
}

func TestRegistryMethodIDsIncludesBuiltins(t *testing.T) {
	r := NewRegistry()
	ids := map[string]bool{}
	for _, id := range r.MethodIDs() {
		ids[id] = true
	}
	if !ids["counting"] || !ids["defect"] {
		t.Fatalf("expected builtin methods registered, got %v", ids)
	}
}
