// Package vision wraps the OpenCV primitives used by document detection and
// cropping behind a small interface.
package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
)

// ErrEmptyImage is returned when a decoded or encoded image has no pixels.
var ErrEmptyImage = errors.New("image is empty")

// Primitives are the image operations the detector and crop resolver need.
// All Mat outputs are written into caller-owned destinations; contours are
// returned as plain Go slices so callers never hold native vectors.
type Primitives interface {
	ToGray(src gocv.Mat, dst *gocv.Mat)
	Blur(src gocv.Mat, dst *gocv.Mat, ksize int)
	Edges(src gocv.Mat, dst *gocv.Mat, low, high float32)
	Dilate(src gocv.Mat, dst *gocv.Mat, ksize int)
	FindContours(src gocv.Mat) [][]image.Point
	ArcLength(contour []image.Point) float64
	ApproxPolygon(contour []image.Point, epsilon float64) []image.Point
	ContourArea(contour []image.Point) float64
	BoundingRect(contour []image.Point) image.Rectangle
	PerspectiveWarp(src gocv.Mat, dst *gocv.Mat, quad geometry.Quad, size image.Point)
}

// OpenCV implements Primitives with GoCV.
type OpenCV struct{}

// NewOpenCV returns the GoCV-backed primitives.
func NewOpenCV() *OpenCV {
	return &OpenCV{}
}

// ToGray converts a BGR, BGRA or already grey Mat to a single channel.
func (OpenCV) ToGray(src gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 4:
		gocv.CvtColor(src, dst, gocv.ColorBGRAToGray)
	case 3:
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	default:
		src.CopyTo(dst)
	}
}

// Blur applies a ksize x ksize Gaussian blur.
func (OpenCV) Blur(src gocv.Mat, dst *gocv.Mat, ksize int) {
	gocv.GaussianBlur(src, dst, image.Point{X: ksize, Y: ksize}, 0, 0, gocv.BorderDefault)
}

// Edges runs Canny edge detection with the given hysteresis thresholds.
func (OpenCV) Edges(src gocv.Mat, dst *gocv.Mat, low, high float32) {
	gocv.Canny(src, dst, low, high)
}

// Dilate grows white regions with a ksize x ksize rectangular element.
func (OpenCV) Dilate(src gocv.Mat, dst *gocv.Mat, ksize int) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: ksize, Y: ksize})
	defer kernel.Close()
	gocv.Dilate(src, dst, kernel)
}

// FindContours returns the external contours of a binary image.
func (OpenCV) FindContours(src gocv.Mat) [][]image.Point {
	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	return contours.ToPoints()
}

// ArcLength returns the perimeter of a closed contour.
func (OpenCV) ArcLength(contour []image.Point) float64 {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.ArcLength(pv, true)
}

// ApproxPolygon simplifies a closed contour with Douglas-Peucker.
func (OpenCV) ApproxPolygon(contour []image.Point, epsilon float64) []image.Point {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()
	return approx.ToPoints()
}

// ContourArea returns the area enclosed by a contour.
func (OpenCV) ContourArea(contour []image.Point) float64 {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

// BoundingRect returns the upright bounding rectangle of a contour.
func (OpenCV) BoundingRect(contour []image.Point) image.Rectangle {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()
	return gocv.BoundingRect(pv)
}

// PerspectiveWarp maps quad onto the rectangle (0,0)-(size.X,size.Y) and
// writes a size.X x size.Y result into dst.
func (OpenCV) PerspectiveWarp(src gocv.Mat, dst *gocv.Mat, quad geometry.Quad, size image.Point) {
	from := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		toPoint2f(quad[geometry.TopLeft]),
		toPoint2f(quad[geometry.TopRight]),
		toPoint2f(quad[geometry.BottomRight]),
		toPoint2f(quad[geometry.BottomLeft]),
	})
	defer from.Close()

	w, h := float32(size.X), float32(size.Y)
	to := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: 0, Y: 0},
		{X: w, Y: 0},
		{X: w, Y: h},
		{X: 0, Y: h},
	})
	defer to.Close()

	m := gocv.GetPerspectiveTransform2f(from, to)
	defer m.Close()

	gocv.WarpPerspective(src, dst, m, size)
}

func toPoint2f(p geometry.Point) gocv.Point2f {
	return gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
}

// EncodeJPEG encodes mat as JPEG at the given quality (0-100).
// The returned slice is owned by the caller.
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	if mat.Empty() {
		return nil, ErrEmptyImage
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Decode decodes an encoded still image into a BGR Mat.
// The caller is responsible for closing the returned Mat.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrEmptyImage
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), ErrEmptyImage
	}
	return mat, nil
}

// DrawQuad outlines quad on img.
func DrawQuad(img *gocv.Mat, quad geometry.Quad, c color.RGBA, thickness int) {
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{quad.ImagePoints()})
	defer pts.Close()
	gocv.Polylines(img, pts, true, c, thickness)
}
