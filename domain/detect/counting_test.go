package detect

import (
	"testing"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

// TestNewCountingDetectorAdoptsSharedCounter guards against the Gate
// Counter being silently reallocated on every construction: a caller
// switching Detector instances within the same intent (§4.F) passes in an
// existing counter, and construction must adopt it as-is rather than start
// a fresh one at zero.
func TestNewCountingDetectorAdoptsSharedCounter(t *testing.T) {
	cfg := config.DefaultConfig()
	counter := gate.NewCounter(cfg.Gate)
	counter.OnFrame([]gate.Detection{{CX: 10, CY: 120}}, 240)
	if counter.CrossingCount() != 1 {
		t.Fatalf("CrossingCount() = %d, want 1", counter.CrossingCount())
	}

	d, err := NewCountingDetector(cfg.Detection, cfg.Gate, counter)
	if err != nil {
		t.Fatalf("NewCountingDetector: %v", err)
	}
	cd := d.(*CountingDetector)
	defer cd.Close()

	if cd.counter != counter {
		t.Fatal("expected constructed detector to adopt the shared counter, not allocate a new one")
	}
	if cd.counter.CrossingCount() != 1 {
		t.Fatalf("crossing_count after construction = %d, want 1 (preserved)", cd.counter.CrossingCount())
	}
}
