package app

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// blankSyntheticFrame draws a single moving square on a blank 640x480
// background, giving the Synthetic Frame Source variant (§4.A) a
// repeatable, hardware-free stream for demos and tests.
func blankSyntheticFrame(sequence uint64) gocv.Mat {
	mat := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8U)
	x := int(sequence%580) + 20
	gocv.Rectangle(&mat, image.Rect(x, 200, x+40, 240), color.RGBA{255, 255, 255, 0}, -1)
	return mat
}
