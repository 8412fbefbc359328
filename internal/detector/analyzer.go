package detector

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

// Analyzer finds the best document quadrilateral in a frame, or nil.
type Analyzer interface {
	Analyze(frame gocv.Mat) (*geometry.Quad, error)
}

// ContourAnalyzer detects documents as the largest plausible four-sided
// external contour of the edge map.
type ContourAnalyzer struct {
	cfg   Config
	prims vision.Primitives
}

// NewContourAnalyzer creates an analyzer with the given thresholds.
func NewContourAnalyzer(cfg Config, prims vision.Primitives) *ContourAnalyzer {
	return &ContourAnalyzer{cfg: cfg, prims: prims}
}

// Analyze runs grey, blur, Canny, dilate and contour extraction, then returns
// the plausible candidate with the largest area in canonical corner order.
func (a *ContourAnalyzer) Analyze(frame gocv.Mat) (*geometry.Quad, error) {
	if frame.Empty() {
		return nil, vision.ErrEmptyImage
	}

	gray := gocv.NewMat()
	defer gray.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()
	edges := gocv.NewMat()
	defer edges.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()

	a.prims.ToGray(frame, &gray)
	a.prims.Blur(gray, &blurred, a.cfg.BlurKernel)
	a.prims.Edges(blurred, &edges, a.cfg.CannyLow, a.cfg.CannyHigh)
	a.prims.Dilate(edges, &dilated, a.cfg.DilateKernel)

	frameArea := float64(frame.Cols() * frame.Rows())

	var (
		best     geometry.Quad
		bestArea float64
		found    bool
	)
	for _, contour := range a.prims.FindContours(dilated) {
		quad, area, ok := a.candidate(contour, frameArea)
		// Strictly greater keeps the first of equal-area candidates.
		if ok && (!found || area > bestArea) {
			best, bestArea, found = quad, area, true
		}
	}

	if !found {
		return nil, nil
	}
	return &best, nil
}

// candidate approximates contour and reports whether it is a plausible
// document outline.
func (a *ContourAnalyzer) candidate(contour []image.Point, frameArea float64) (geometry.Quad, float64, bool) {
	perimeter := a.prims.ArcLength(contour)
	approx := a.prims.ApproxPolygon(contour, a.cfg.ApproxEpsilon*perimeter)
	if len(approx) != 4 {
		return geometry.Quad{}, 0, false
	}

	area := a.prims.ContourArea(approx)
	bounds := a.prims.BoundingRect(approx)
	if !plausible(approx, area, bounds, frameArea, a.cfg) {
		return geometry.Quad{}, 0, false
	}

	quad, _ := geometry.QuadFromImagePoints(approx)
	return quad, area, true
}

// plausible applies the convexity, minimum area and aspect ratio filters to
// a four-point polygon given in contour order.
func plausible(poly []image.Point, area float64, bounds image.Rectangle, frameArea float64, cfg Config) bool {
	if len(poly) != 4 {
		return false
	}

	pts := make([]geometry.Point, len(poly))
	for i, p := range poly {
		pts[i] = geometry.FromImagePoint(p)
	}
	if !geometry.IsConvex(pts) {
		return false
	}

	if area <= cfg.MinAreaRatio*frameArea {
		return false
	}

	if bounds.Dy() == 0 {
		return false
	}
	aspect := float64(bounds.Dx()) / float64(bounds.Dy())
	return aspect >= cfg.MinAspect && aspect <= cfg.MaxAspect
}
