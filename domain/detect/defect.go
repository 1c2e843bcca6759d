package detect

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/gate"
)

// DefectType is the closed set of surface-defect classifications §4.C'
// assigns to an accepted contour.
type DefectType string

const (
	DefectScratch       DefectType = "scratch"
	DefectDent          DefectType = "dent"
	DefectDiscoloration DefectType = "discoloration"
)

// DefectFinding is one accepted defect contour.
type DefectFinding struct {
	BBox image.Rectangle
	Area float64
	Type DefectType
}

// DefectTotals accumulates inspection counts across frames until Reset.
type DefectTotals struct {
	Inspected uint64
	Defective uint64
	PerType   map[DefectType]uint64
}

// DefectDetector is the Defect variant (§4.C'): edge and gray-anomaly
// based surface inspection, run independently of the Gate Counter.
type DefectDetector struct {
	cfg     config.DetectionConfig
	enabled bool
	totals  DefectTotals

	gray, blurred, canny, closed gocv.Mat
	anomaly, combined, opened    gocv.Mat
	ellipse3                     gocv.Mat
	meanBuf, stddevBuf           gocv.Mat
}

// NewDefectDetector satisfies detect.Constructor for method_id "defect".
// It has no use for the Gate Counter (inspection runs independently of
// counting) and simply ignores it.
func NewDefectDetector(cfg config.DetectionConfig, _ config.GateConfig, _ *gate.Counter) (Detector, error) {
	d := &DefectDetector{
		cfg:       cfg,
		enabled:   true,
		totals:    DefectTotals{PerType: make(map[DefectType]uint64)},
		gray:      gocv.NewMat(),
		blurred:   gocv.NewMat(),
		canny:     gocv.NewMat(),
		closed:    gocv.NewMat(),
		anomaly:   gocv.NewMat(),
		combined:  gocv.NewMat(),
		opened:    gocv.NewMat(),
		ellipse3:  gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
		meanBuf:   gocv.NewMat(),
		stddevBuf: gocv.NewMat(),
	}
	return d, nil
}

func (d *DefectDetector) Enable()       { d.enabled = true }
func (d *DefectDetector) Disable()      { d.enabled = false }
func (d *DefectDetector) Enabled() bool { return d.enabled }

// Reset clears the accumulated totals (§4.C'); classification failures
// never raise, they degrade to "discoloration" instead.
func (d *DefectDetector) Reset() {
	d.totals = DefectTotals{PerType: make(map[DefectType]uint64)}
}

func (d *DefectDetector) UpdateConfig(cfg config.DetectionConfig) error {
	d.cfg = cfg
	return nil
}

// ProcessFrame implements the §4.C' algorithm: gray -> blur -> Canny ->
// morphological close, fused with a gray-anomaly mask, then classified
// per contour.
func (d *DefectDetector) ProcessFrame(fullFrame, roiView gocv.Mat, yOffset int, annotate bool) (Result, error) {
	if roiView.Channels() > 1 {
		gocv.CvtColor(roiView, &d.gray, gocv.ColorBGRToGray)
	} else {
		roiView.CopyTo(&d.gray)
	}
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	gocv.Canny(d.blurred, &d.canny, float32(d.cfg.CannyLow), float32(d.cfg.CannyHigh))
	gocv.MorphologyEx(d.canny, &d.closed, gocv.MorphClose, d.ellipse3)

	gocv.MeanStdDev(d.blurred, &d.meanBuf, &d.stddevBuf)
	mean := d.meanBuf.GetDoubleAt(0, 0)
	stddev := d.stddevBuf.GetDoubleAt(0, 0)
	k := d.cfg.GrayAnomalyStdDevMult
	lo := float32(math.Max(mean-k*stddev, 0))
	hi := float32(math.Min(mean+k*stddev, 255))

	// low tail: pixels at or below lo
	gocv.Threshold(d.blurred, &d.anomaly, lo, 255, gocv.ThresholdBinaryInv)
	hiMask := gocv.NewMat()
	defer hiMask.Close()
	// high tail: pixels above hi
	gocv.Threshold(d.blurred, &hiMask, hi, 255, gocv.ThresholdBinary)
	gocv.BitwiseOr(d.anomaly, hiMask, &d.anomaly)

	gocv.BitwiseOr(d.closed, d.anomaly, &d.combined)
	gocv.MorphologyEx(d.combined, &d.opened, gocv.MorphOpen, d.ellipse3)

	contours := gocv.FindContours(d.opened, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var findings []DefectFinding
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < d.cfg.MinDefectArea || area > d.cfg.MaxDefectArea {
			continue
		}
		rect := gocv.BoundingRect(c)
		findings = append(findings, DefectFinding{
			BBox: image.Rect(rect.Min.X, rect.Min.Y+yOffset, rect.Max.X, rect.Max.Y+yOffset),
			Area: area,
			Type: classify(rect),
		})
	}

	d.totals.Inspected++
	if len(findings) > 0 {
		d.totals.Defective++
		for _, f := range findings {
			d.totals.PerType[f.Type]++
		}
	}

	detections := make([]Detection, len(findings))
	for i, f := range findings {
		cx := (f.BBox.Min.X + f.BBox.Max.X) / 2
		cy := (f.BBox.Min.Y + f.BBox.Max.Y) / 2
		detections[i] = Detection{BBox: f.BBox, CX: cx, CY: cy, Area: f.Area}
	}

	result := Result{Detections: detections, Count: len(detections)}
	if annotate {
		annotated := annotateDefects(fullFrame, findings)
		result.Annotated = &annotated
	}
	return result, nil
}

// classify assigns a DefectType from a contour's aspect ratio, per §4.C'.
// Any path that cannot confidently classify degrades to
// DefectDiscoloration, never raising.
func classify(rect image.Rectangle) DefectType {
	w, h := float64(rect.Dx()), float64(rect.Dy())
	if w <= 0 || h <= 0 {
		return DefectDiscoloration
	}
	ratio := w / h
	switch {
	case ratio > 3 || ratio < 1.0/3.0:
		return DefectScratch
	case ratio >= 0.7 && ratio <= 1.3:
		return DefectDent
	default:
		return DefectDiscoloration
	}
}

// Totals returns the accumulated inspection counts.
func (d *DefectDetector) Totals() DefectTotals { return d.totals }

// PassRate returns the fraction of inspected frames with no defect.
func (t DefectTotals) PassRate() float64 {
	if t.Inspected == 0 {
		return 1.0
	}
	return 1.0 - float64(t.Defective)/float64(t.Inspected)
}

// Close releases the detector's scratch Mats.
func (d *DefectDetector) Close() error {
	mats := []*gocv.Mat{
		&d.gray, &d.blurred, &d.canny, &d.closed,
		&d.anomaly, &d.combined, &d.opened, &d.ellipse3,
		&d.meanBuf, &d.stddevBuf,
	}
	for _, m := range mats {
		_ = m.Close()
	}
	return nil
}
