package detect

import (
	"image"
	"testing"
)

func TestClassifyScratchForElongatedRect(t *testing.T) {
	if got := classify(image.Rect(0, 0, 40, 5)); got != DefectScratch {
		t.Fatalf("expected scratch, got %v", got)
	}
}

func TestClassifyDentForSquareRect(t *testing.T) {
	if got := classify(image.Rect(0, 0, 10, 10)); got != DefectDent {
		t.Fatalf("expected dent, got %v", got)
	}
}

func TestClassifyDiscolorationForModerateAspect(t *testing.T) {
	if got := classify(image.Rect(0, 0, 20, 10)); got != DefectDiscoloration {
		t.Fatalf("expected discoloration, got %v", got)
	}
}

func TestClassifyDegradesOnEmptyRect(t *testing.T) {
	if got := classify(image.Rect(0, 0, 0, 0)); got != DefectDiscoloration {
		t.Fatalf("expected discoloration for degenerate rect, got %v", got)
	}
}

func TestPassRateWithNoInspections(t *testing.T) {
	var totals DefectTotals
	if totals.PassRate() != 1.0 {
		t.Fatalf("expected pass rate 1.0 with no inspections, got %v", totals.PassRate())
	}
}

func TestPassRateAccountsForDefectiveFraction(t *testing.T) {
	totals := DefectTotals{Inspected: 10, Defective: 3}
	want := 0.7
	if got := totals.PassRate(); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected pass rate %v, got %v", want, got)
	}
}
