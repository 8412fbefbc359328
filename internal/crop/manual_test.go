package crop

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

// newTestSession returns a manual session over a blank rows x cols still.
func newTestSession(t *testing.T, rows, cols int) *ManualSession {
	t.Helper()
	frame := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	s := newManualSession(frame, DefaultOptions())
	t.Cleanup(s.Close)
	return s
}

func TestManualSession_LoadInitialPoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	assert.Equal(t, StatePointsInitialized, s.State())
	assert.Equal(t, 1.0, s.PreviewScale())
	assert.Equal(t, [4]geometry.Point{
		geometry.Pt(60, 60),
		geometry.Pt(540, 60),
		geometry.Pt(540, 460),
		geometry.Pt(60, 460),
	}, s.Points())
	assert.Equal(t, geometry.Rect{X: 60, Y: 60, W: 480, H: 400}, s.CropRect())
}

func TestManualSession_ConfirmUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	f, err := s.Confirm()
	require.NoError(t, err)

	assert.Equal(t, ModeManual, f.Mode)
	assert.Equal(t, FileName, f.Name)
	assert.Equal(t, 480, f.Width)
	assert.Equal(t, 400, f.Height)
	assert.Nil(t, f.Quad)
	assert.Equal(t, StateCropped, s.State())
	assert.Same(t, f, s.Result())

	mat, err := vision.Decode(f.Data)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 480, mat.Cols())
	assert.Equal(t, 400, mat.Rows())
}

func TestManualSession_PreviewScaling(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 1600, 1200)
	require.NoError(t, s.Load(800))

	// 75% of an 800px viewport.
	assert.InDelta(t, 0.375, s.PreviewScale(), 1e-9)
	assert.Equal(t, image.Point{X: 450, Y: 600}, s.PreviewSize())

	pts := s.Points()
	assert.InDelta(t, 22.5, pts[geometry.TopLeft].X, 1e-9)
	assert.InDelta(t, 22.5, pts[geometry.TopLeft].Y, 1e-9)

	src := s.SourcePoints()
	assert.InDelta(t, 60, src[geometry.TopLeft].X, 1e-9)
	assert.InDelta(t, 1140, src[geometry.BottomRight].X, 1e-9)
	assert.InDelta(t, 1540, src[geometry.BottomRight].Y, 1e-9)

	preview, err := s.Preview()
	require.NoError(t, err)
	mat, err := vision.Decode(preview)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 450, mat.Cols())
	assert.Equal(t, 600, mat.Rows())

	f, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 1080, f.Width)
	assert.Equal(t, 1480, f.Height)
}

func TestManualSession_ViewportLargerThanImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 300, 400)
	require.NoError(t, s.Load(2000))
	assert.Equal(t, 1.0, s.PreviewScale())
	assert.Equal(t, image.Point{X: 400, Y: 300}, s.PreviewSize())
}

func TestManualSession_TinyImageInsetClamped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 80, 100)
	require.NoError(t, s.Load(0))

	r := s.CropRect()
	assert.InDelta(t, 20, r.X, 1e-9)
	assert.InDelta(t, 20, r.Y, 1e-9)
	assert.InDelta(t, 60, r.W, 1e-9)
	assert.InDelta(t, 40, r.H, 1e-9)
}

func TestManualSession_Drag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	tests := []struct {
		name       string
		start      geometry.Point
		wantHandle int
	}{
		{"exact handle", geometry.Pt(60, 60), geometry.TopLeft},
		{"within radius", geometry.Pt(70, 70), geometry.TopLeft},
		{"on radius", geometry.Pt(540, 75), geometry.TopRight},
		{"just outside radius", geometry.Pt(540, 76), -1},
		{"center of image", geometry.Pt(300, 260), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, 520, 600)
			require.NoError(t, s.Load(0))
			before := s.Points()

			idx, err := s.DragStart(tt.start)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHandle, idx)

			moved := s.DragMove(geometry.Pt(10, 10))
			if tt.wantHandle < 0 {
				assert.False(t, moved)
				assert.Equal(t, before, s.Points())
				assert.Equal(t, StatePointsInitialized, s.State())
				return
			}

			assert.True(t, moved)
			assert.Equal(t, StateDragging, s.State())
			assert.Equal(t, geometry.Pt(10, 10), s.Points()[tt.wantHandle])

			s.DragEnd()
			assert.Equal(t, StatePointsInitialized, s.State())
			assert.Equal(t, -1, s.Active())
		})
	}
}

func TestManualSession_DragClampedToPreview(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	_, err := s.DragStart(geometry.Pt(540, 460))
	require.NoError(t, err)
	s.DragMove(geometry.Pt(900, -40))
	s.DragEnd()

	assert.Equal(t, geometry.Pt(600, 0), s.Points()[geometry.BottomRight])
}

func TestManualSession_OverlappingHandlesFirstWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	// Stack the bottom-right handle onto the top-left one.
	_, err := s.DragStart(geometry.Pt(540, 460))
	require.NoError(t, err)
	s.DragMove(geometry.Pt(60, 60))
	s.DragEnd()

	idx, err := s.DragStart(geometry.Pt(60, 60))
	require.NoError(t, err)
	assert.Equal(t, geometry.TopLeft, idx)
}

func TestManualSession_ConfirmEmptyStaysOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	// Collapse every handle onto the same vertical line.
	for _, from := range []geometry.Point{geometry.Pt(540, 60), geometry.Pt(540, 460)} {
		_, err := s.DragStart(from)
		require.NoError(t, err)
		s.DragMove(geometry.Pt(60, from.Y))
		s.DragEnd()
	}

	_, err := s.Confirm()
	assert.ErrorIs(t, err, ErrEmptyCrop)
	assert.Equal(t, StatePointsInitialized, s.State())

	_, err = s.DragStart(geometry.Pt(60, 460))
	require.NoError(t, err)
	s.DragMove(geometry.Pt(300, 460))
	s.DragEnd()

	f, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 240, f.Width)
	assert.Equal(t, 400, f.Height)
}

func TestManualSession_ConfirmWhileDragging(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	s := newTestSession(t, 520, 600)
	require.NoError(t, s.Load(0))

	_, err := s.DragStart(geometry.Pt(60, 60))
	require.NoError(t, err)
	s.DragMove(geometry.Pt(0, 0))

	f, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 540, f.Width)
	assert.Equal(t, 460, f.Height)
}

func TestManualSession_Transitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	t.Run("operations before load", func(t *testing.T) {
		s := newTestSession(t, 100, 100)
		_, err := s.DragStart(geometry.Pt(0, 0))
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = s.Confirm()
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("load twice", func(t *testing.T) {
		s := newTestSession(t, 100, 100)
		require.NoError(t, s.Load(0))
		assert.ErrorIs(t, s.Load(0), ErrInvalidState)
	})

	t.Run("cancel closes", func(t *testing.T) {
		s := newTestSession(t, 520, 600)
		require.NoError(t, s.Load(0))
		require.NoError(t, s.Cancel())

		assert.Equal(t, StateClosed, s.State())
		assert.Nil(t, s.Result())
		assert.ErrorIs(t, s.Cancel(), ErrSessionClosed)

		_, err := s.Confirm()
		assert.ErrorIs(t, err, ErrSessionClosed)
		_, err = s.DragStart(geometry.Pt(60, 60))
		assert.ErrorIs(t, err, ErrSessionClosed)
		_, err = s.Preview()
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.ErrorIs(t, s.Load(0), ErrSessionClosed)
	})

	t.Run("confirm is terminal", func(t *testing.T) {
		s := newTestSession(t, 520, 600)
		require.NoError(t, s.Load(0))
		_, err := s.Confirm()
		require.NoError(t, err)

		_, err = s.Confirm()
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.ErrorIs(t, s.Cancel(), ErrSessionClosed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := newTestSession(t, 100, 100)
		s.Close()
		s.Close()
		assert.Equal(t, StateClosed, s.State())
	})

	t.Run("state names", func(t *testing.T) {
		assert.Equal(t, "idle", StateIdle.String())
		assert.Equal(t, "dragging", StateDragging.String())
		assert.Equal(t, "cropped", StateCropped.String())
	})
}
