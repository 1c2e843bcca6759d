package detect

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/crmado/realtime-item-monitor/config"
)

var (
	colorGreen  = color.RGBA{0, 255, 0, 0}
	colorYellow = color.RGBA{255, 255, 0, 0}
	colorRed    = color.RGBA{255, 0, 0, 0}
)

// annotateCounting draws the ROI rectangle, gate line, and per-detection
// overlays onto a copy of the full frame (§4.C step 7: "Produce an
// annotated copy of the full frame"). Detections and crossings already
// carry full-frame coordinates (§3), so no offset math is needed here; only
// the gate line, computed in the ROI's own coordinate space, needs yOffset
// added back. Annotation is optional and off the counting path: a caller
// that skips it still gets correct counts.
func annotateCounting(fullFrame, roiView gocv.Mat, yOffset int, gateCfg config.GateConfig, detections []Detection) gocv.Mat {
	out := gocv.NewMat()
	if fullFrame.Channels() == 1 {
		gocv.CvtColor(fullFrame, &out, gocv.ColorGrayToBGR)
	} else {
		fullFrame.CopyTo(&out)
	}

	roiRect := image.Rect(0, yOffset, roiView.Cols(), yOffset+roiView.Rows())
	gocv.Rectangle(&out, roiRect, colorYellow, 1)

	gateY := yOffset + int(gateCfg.GateRatio*float64(roiView.Rows()))
	gocv.Line(&out, image.Pt(0, gateY), image.Pt(out.Cols(), gateY), colorYellow, 2)

	for _, d := range detections {
		gocv.Rectangle(&out, d.BBox, colorGreen, 2)
		gocv.Circle(&out, image.Pt(d.CX, d.CY), 3, colorGreen, -1)
		label := fmt.Sprintf("%.0f", d.Area)
		gocv.PutText(&out, label, image.Pt(d.BBox.Min.X, d.BBox.Min.Y-4),
			gocv.FontHersheySimplex, 0.4, colorGreen, 1)
	}

	summary := fmt.Sprintf("objects: %d", len(detections))
	gocv.PutText(&out, summary, image.Pt(5, 15), gocv.FontHersheySimplex, 0.5, colorGreen, 1)
	return out
}

// annotateDefects draws bounding boxes colored by defect type onto a copy
// of the full frame; findings already carry full-frame coordinates.
func annotateDefects(fullFrame gocv.Mat, findings []DefectFinding) gocv.Mat {
	out := gocv.NewMat()
	if fullFrame.Channels() == 1 {
		gocv.CvtColor(fullFrame, &out, gocv.ColorGrayToBGR)
	} else {
		fullFrame.CopyTo(&out)
	}

	for _, f := range findings {
		c := colorRed
		if f.Type == DefectDiscoloration {
			c = colorYellow
		}
		gocv.Rectangle(&out, f.BBox, c, 2)
		gocv.PutText(&out, string(f.Type), image.Pt(f.BBox.Min.X, f.BBox.Min.Y-4),
			gocv.FontHersheySimplex, 0.4, c, 1)
	}
	return out
}
