package packaging

import (
	"testing"

	"github.com/crmado/realtime-item-monitor/config"
)

func testConfig(target uint32) config.PackagingConfig {
	return config.PackagingConfig{Target: target, TMedium: 0.85, TSlow: 0.93, TCreep: 0.97}
}

func TestSpeedsOutsideRunningIsStop(t *testing.T) {
	c := NewController(testConfig(100), nil)
	a, b := c.Speeds()
	if a != Stop || b != Stop {
		t.Fatalf("expected Stop/Stop in Idle, got %v/%v", a, b)
	}
}

func TestSpeedsFollowProgressTable(t *testing.T) {
	c := NewController(testConfig(100), nil)
	c.Start()

	cases := []struct {
		current        uint32
		wantA, wantB   Speed
	}{
		{10, Full, Full},
		{85, Medium, Full},
		{93, Slow, Medium},
		{97, Creep, Slow},
	}
	for _, tc := range cases {
		c.OnCountChanged(tc.current)
		a, b := c.Speeds()
		if a != tc.wantA || b != tc.wantB {
			t.Fatalf("at current=%d: expected %v/%v, got %v/%v", tc.current, tc.wantA, tc.wantB, a, b)
		}
	}
}

func TestCompleteFiresOnceAtTarget(t *testing.T) {
	c := NewController(testConfig(10), nil)
	c.Start()

	fired := 0
	c.AddCompleteListener(func(target, final uint32) { fired++ })

	c.OnCountChanged(10)
	if c.Mode() != Complete {
		t.Fatalf("expected Complete mode, got %v", c.Mode())
	}
	if fired != 1 {
		t.Fatalf("expected packaging_complete to fire once, got %d", fired)
	}

	// Further count changes after Complete must not refire it.
	c.OnCountChanged(11)
	if fired != 1 {
		t.Fatalf("expected packaging_complete to stay fired once, got %d", fired)
	}
}

func TestResetReturnsToIdleAndZeroesCount(t *testing.T) {
	c := NewController(testConfig(10), nil)
	c.Start()
	c.OnCountChanged(5)
	c.Reset()
	if c.Mode() != Idle {
		t.Fatalf("expected Idle after reset, got %v", c.Mode())
	}
	if c.Current() != 0 {
		t.Fatalf("expected current 0 after reset, got %d", c.Current())
	}
}

func TestPauseOnlyAppliesWhenRunning(t *testing.T) {
	c := NewController(testConfig(10), nil)
	c.Pause() // no-op from Idle
	if c.Mode() != Idle {
		t.Fatalf("expected Idle to remain after Pause from Idle, got %v", c.Mode())
	}
	c.Start()
	c.Pause()
	if c.Mode() != Paused {
		t.Fatalf("expected Paused, got %v", c.Mode())
	}
	c.Start()
	if c.Mode() != Running {
		t.Fatalf("expected Running after resuming from Paused, got %v", c.Mode())
	}
}

func TestListenerReceivesEveryTransition(t *testing.T) {
	c := NewController(testConfig(10), nil)
	var modes []Mode
	c.AddListener(func(mode Mode, current, target uint32, speedA, speedB Speed) {
		modes = append(modes, mode)
	})
	c.Start()
	c.OnCountChanged(3)
	c.Pause()
	c.Start()
	c.OnCountChanged(10)

	want := []Mode{Running, Running, Paused, Running, Complete}
	if len(modes) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(modes), modes)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("notification %d: expected mode %v, got %v", i, want[i], modes[i])
		}
	}
	if modes[len(modes)-1] != Complete {
		t.Fatalf("expected final mode Complete, got %v", modes[len(modes)-1])
	}
}
