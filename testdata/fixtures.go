// Package testdata builds synthetic camera frames for tests: a bright
// document-like rectangle on a dark background.
package testdata

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
)

var (
	// Background is the dark surface the document lies on.
	Background = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	// Paper is the document fill.
	Paper = color.RGBA{R: 245, G: 245, B: 245, A: 255}
)

// StandardDocument is an 800x600 sheet centred in a 1000x800 frame.
var StandardDocument = image.Rect(100, 100, 900, 700)

// StandardQuad returns the corners of StandardDocument.
func StandardQuad() geometry.Quad {
	return QuadOf(StandardDocument)
}

// QuadOf returns the corners of r in canonical order.
func QuadOf(r image.Rectangle) geometry.Quad {
	return geometry.Quad{
		geometry.Pt(float64(r.Min.X), float64(r.Min.Y)),
		geometry.Pt(float64(r.Max.X), float64(r.Min.Y)),
		geometry.Pt(float64(r.Max.X), float64(r.Max.Y)),
		geometry.Pt(float64(r.Min.X), float64(r.Max.Y)),
	}
}

// DocumentFrame returns a width x height BGR frame with doc filled in paper
// color. The caller owns the Mat.
func DocumentFrame(width, height int, doc image.Rectangle) gocv.Mat {
	frame := BlankFrame(width, height)
	if !doc.Empty() {
		gocv.Rectangle(&frame, doc, Paper, -1)
	}
	return frame
}

// BlankFrame returns a width x height frame of background color.
func BlankFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(Background.B), float64(Background.G), float64(Background.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
}

// DocumentJPEG encodes DocumentFrame as JPEG.
func DocumentJPEG(width, height int, doc image.Rectangle) ([]byte, error) {
	frame := DocumentFrame(width, height, doc)
	defer frame.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Sequence returns n copies of frame for a MockCamera. The caller closes
// them with CloseAll.
func Sequence(frame gocv.Mat, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := frame.Clone()
		frames[i] = &m
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
