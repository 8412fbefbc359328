package detector

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

func TestPlausible(t *testing.T) {
	cfg := DefaultConfig()
	const frameArea = 1000 * 800

	rect := []image.Point{{100, 100}, {900, 100}, {900, 700}, {100, 700}}

	tests := []struct {
		name   string
		poly   []image.Point
		area   float64
		bounds image.Rectangle
		want   bool
	}{
		{
			name:   "document sized rectangle",
			poly:   rect,
			area:   480000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   true,
		},
		{
			name:   "area exactly ten percent is rejected",
			poly:   rect,
			area:   80000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   false,
		},
		{
			name:   "too small",
			poly:   rect,
			area:   50000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   false,
		},
		{
			name:   "square aspect",
			poly:   []image.Point{{100, 100}, {700, 100}, {700, 700}, {100, 700}},
			area:   360000,
			bounds: image.Rect(100, 100, 700, 700),
			want:   false,
		},
		{
			name:   "aspect at upper bound",
			poly:   []image.Point{{0, 0}, {760, 0}, {760, 400}, {0, 400}},
			area:   304000,
			bounds: image.Rect(0, 0, 760, 400),
			want:   true,
		},
		{
			name:   "too wide",
			poly:   []image.Point{{0, 100}, {1000, 100}, {1000, 500}, {0, 500}},
			area:   400000,
			bounds: image.Rect(0, 100, 1000, 500),
			want:   false,
		},
		{
			name:   "portrait page",
			poly:   []image.Point{{300, 0}, {700, 0}, {700, 780}, {300, 780}},
			area:   312000,
			bounds: image.Rect(300, 0, 700, 780),
			want:   false,
		},
		{
			name:   "concave",
			poly:   []image.Point{{100, 100}, {900, 100}, {500, 300}, {100, 700}},
			area:   200000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   false,
		},
		{
			name:   "self intersecting",
			poly:   []image.Point{{100, 100}, {900, 700}, {900, 100}, {100, 700}},
			area:   200000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   false,
		},
		{
			name:   "triangle",
			poly:   rect[:3],
			area:   240000,
			bounds: image.Rect(100, 100, 900, 700),
			want:   false,
		},
		{
			name:   "flat bounds",
			poly:   rect,
			area:   480000,
			bounds: image.Rect(100, 100, 900, 100),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plausible(tt.poly, tt.area, tt.bounds, frameArea, cfg))
		})
	}
}

// documentFrame draws a filled white rectangle on a dark background.
func documentFrame(cols, rows int, doc image.Rectangle) gocv.Mat {
	frame := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(20, 20, 20, 0))
	gocv.Rectangle(&frame, doc, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	return frame
}

func assertNear(t *testing.T, want, got geometry.Point, tol float64) {
	t.Helper()
	assert.LessOrEqual(t, math.Abs(want.X-got.X), tol, "x of %v vs %v", got, want)
	assert.LessOrEqual(t, math.Abs(want.Y-got.Y), tol, "y of %v vs %v", got, want)
}

func TestContourAnalyzer_FindsDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := documentFrame(1000, 800, image.Rect(100, 100, 900, 700))
	defer frame.Close()

	a := NewContourAnalyzer(DefaultConfig(), vision.NewOpenCV())
	quad, err := a.Analyze(frame)
	require.NoError(t, err)
	require.NotNil(t, quad)

	const tol = 6
	assertNear(t, geometry.Pt(100, 100), quad[geometry.TopLeft], tol)
	assertNear(t, geometry.Pt(900, 100), quad[geometry.TopRight], tol)
	assertNear(t, geometry.Pt(900, 700), quad[geometry.BottomRight], tol)
	assertNear(t, geometry.Pt(100, 700), quad[geometry.BottomLeft], tol)
}

func TestContourAnalyzer_PicksLargest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	// Both pass every filter; the 800x600 one is larger.
	frame := documentFrame(1600, 1000, image.Rect(20, 20, 620, 420))
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(700, 200, 1500, 800), color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)

	a := NewContourAnalyzer(DefaultConfig(), vision.NewOpenCV())
	quad, err := a.Analyze(frame)
	require.NoError(t, err)
	require.NotNil(t, quad)

	assertNear(t, geometry.Pt(700, 200), quad[geometry.TopLeft], 6)
}

func TestContourAnalyzer_RejectsImplausible(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	tests := []struct {
		name string
		doc  image.Rectangle
	}{
		{"square", image.Rect(200, 100, 800, 700)},
		{"too small", image.Rect(400, 300, 640, 460)},
		{"strip", image.Rect(50, 350, 950, 450)},
	}

	a := NewContourAnalyzer(DefaultConfig(), vision.NewOpenCV())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := documentFrame(1000, 800, tt.doc)
			defer frame.Close()

			quad, err := a.Analyze(frame)
			require.NoError(t, err)
			assert.Nil(t, quad)
		})
	}
}

func TestContourAnalyzer_BlankFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	quad, err := NewContourAnalyzer(DefaultConfig(), vision.NewOpenCV()).Analyze(frame)
	require.NoError(t, err)
	assert.Nil(t, quad)
}

func TestContourAnalyzer_EmptyFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMat()
	defer frame.Close()

	_, err := NewContourAnalyzer(DefaultConfig(), vision.NewOpenCV()).Analyze(frame)
	assert.ErrorIs(t, err, vision.ErrEmptyImage)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero fps", func(c *Config) { c.FPS = 0 }, true},
		{"even blur kernel", func(c *Config) { c.BlurKernel = 4 }, true},
		{"canny inverted", func(c *Config) { c.CannyLow, c.CannyHigh = 150, 60 }, true},
		{"area ratio one", func(c *Config) { c.MinAreaRatio = 1 }, true},
		{"aspect inverted", func(c *Config) { c.MinAspect, c.MaxAspect = 2, 1 }, true},
		{"negative clear", func(c *Config) { c.ClearStableAfter = -1 }, true},
		{"zero threshold", func(c *Config) { c.StableThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
