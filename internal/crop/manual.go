package crop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

var (
	// ErrSessionClosed is returned for any operation on a cropped or cancelled session.
	ErrSessionClosed = errors.New("crop session is closed")
	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("operation not valid in current crop state")
)

// State is the manual crop session state.
type State int

const (
	StateIdle State = iota
	StatePointsInitialized
	StateDragging
	StateCropped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePointsInitialized:
		return "points_initialized"
	case StateDragging:
		return "dragging"
	case StateCropped:
		return "cropped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateCropped || s == StateClosed
}

// ManualSession is the corner-adjustment fallback used when no stable quad
// was available at capture time.
//
// Handle positions live in preview space; the preview is the source image
// scaled down to fit the viewport. Confirm crops the axis-aligned bounding box
// of the handles in source space, with no perspective correction.
type ManualSession struct {
	mu sync.Mutex

	id     string
	opts   Options
	frame  gocv.Mat
	width  int
	height int

	scale    float64
	points   [4]geometry.Point
	active   int
	state    State
	result   *File
	released bool
}

// newManualSession takes ownership of frame.
func newManualSession(frame gocv.Mat, opts Options) *ManualSession {
	return &ManualSession{
		id:     uuid.New().String(),
		opts:   opts,
		frame:  frame,
		width:  frame.Cols(),
		height: frame.Rows(),
		scale:  1,
		active: -1,
		state:  StateIdle,
	}
}

// ID returns the session identifier.
func (s *ManualSession) ID() string {
	return s.id
}

// State returns the current state.
func (s *ManualSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SourceSize returns the full-resolution image size.
func (s *ManualSession) SourceSize() image.Point {
	return image.Point{X: s.width, Y: s.height}
}

// PreviewScale returns the preview-to-source ratio (1 when not downscaled).
func (s *ManualSession) PreviewScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scale
}

// PreviewSize returns the preview dimensions.
func (s *ManualSession) PreviewSize() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewSize()
}

func (s *ManualSession) previewSize() image.Point {
	return image.Point{
		X: int(math.Round(float64(s.width) * s.scale)),
		Y: int(math.Round(float64(s.height) * s.scale)),
	}
}

// Load sizes the preview for a viewport of the given height and places the
// four handles at the inset rectangle. A viewportHeight of 0 keeps the source
// size.
func (s *ManualSession) Load(viewportHeight int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return ErrSessionClosed
	}
	if s.state != StateIdle {
		return ErrInvalidState
	}

	s.scale = 1
	if viewportHeight > 0 && s.height > 0 {
		maxHeight := float64(viewportHeight) * s.opts.PreviewHeightRatio
		if float64(s.height) > maxHeight {
			s.scale = maxHeight / float64(s.height)
		}
	}

	size := s.previewSize()
	inset := s.opts.ManualInset * s.scale
	// Keep handles from crossing on tiny images.
	inset = math.Min(inset, math.Min(float64(size.X), float64(size.Y))/4)

	w, h := float64(size.X), float64(size.Y)
	s.points = [4]geometry.Point{
		geometry.Pt(inset, inset),
		geometry.Pt(w-inset, inset),
		geometry.Pt(w-inset, h-inset),
		geometry.Pt(inset, h-inset),
	}
	s.active = -1
	s.state = StatePointsInitialized
	return nil
}

// Points returns the handle positions in preview space.
func (s *ManualSession) Points() [4]geometry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points
}

// SourcePoints returns the handle positions rescaled to source pixels.
func (s *ManualSession) SourcePoints() [4]geometry.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcePoints()
}

func (s *ManualSession) sourcePoints() [4]geometry.Point {
	var out [4]geometry.Point
	for i, p := range s.points {
		out[i] = p.Scale(1 / s.scale)
	}
	return out
}

// Active returns the index of the handle being dragged, or -1.
func (s *ManualSession) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HitTest returns the first handle, in point order, within the handle radius
// of p, or -1.
func (s *ManualSession) HitTest(p geometry.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hitTest(p)
}

func (s *ManualSession) hitTest(p geometry.Point) int {
	for i, h := range s.points {
		if h.Dist(p) <= s.opts.HandleRadius {
			return i
		}
	}
	return -1
}

// DragStart selects the handle under p and returns its index. A miss selects
// nothing, returns -1 and leaves the session where it was.
func (s *ManualSession) DragStart(p geometry.Point) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return -1, ErrSessionClosed
	}
	if s.state != StatePointsInitialized {
		return -1, ErrInvalidState
	}

	idx := s.hitTest(p)
	if idx < 0 {
		return -1, nil
	}
	s.active = idx
	s.state = StateDragging
	return idx, nil
}

// DragMove moves the selected handle to p, clamped to the preview. It reports
// whether a handle moved; without a selected handle it does nothing.
func (s *ManualSession) DragMove(p geometry.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDragging || s.active < 0 {
		return false
	}

	size := s.previewSize()
	s.points[s.active] = geometry.Pt(
		math.Max(0, math.Min(p.X, float64(size.X))),
		math.Max(0, math.Min(p.Y, float64(size.Y))),
	)
	return true
}

// DragEnd releases the selected handle.
func (s *ManualSession) DragEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDragging {
		s.state = StatePointsInitialized
	}
	s.active = -1
}

// CropRect returns the bounding box of the handles in source pixels.
func (s *ManualSession) CropRect() geometry.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	pts := s.sourcePoints()
	return geometry.BoundingBox(pts[:])
}

// Confirm crops the bounding box of the handles from the source image and
// encodes it. On ErrEmptyCrop the session stays open so the user can adjust
// and retry.
func (s *ManualSession) Confirm() (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return nil, ErrSessionClosed
	}
	if s.state == StateIdle {
		return nil, ErrInvalidState
	}
	if s.state == StateDragging {
		s.state = StatePointsInitialized
		s.active = -1
	}

	pts := s.sourcePoints()
	rect := geometry.BoundingBox(pts[:]).ImageRect().Intersect(image.Rect(0, 0, s.width, s.height))
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	region := s.frame.Region(rect)
	defer region.Close()

	data, err := vision.EncodeJPEG(region, s.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}

	s.result = &File{
		Name:        FileName,
		ContentType: ContentType,
		Data:        data,
		Width:       rect.Dx(),
		Height:      rect.Dy(),
		Mode:        ModeManual,
	}
	s.state = StateCropped
	s.release()
	return s.result, nil
}

// Result returns the confirmed file, if any.
func (s *ManualSession) Result() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Cancel closes the session without producing a file.
func (s *ManualSession) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return ErrSessionClosed
	}
	s.state = StateClosed
	s.active = -1
	s.release()
	return nil
}

// Preview renders the still at preview size as JPEG.
func (s *ManualSession) Preview() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return nil, ErrSessionClosed
	}

	img, err := s.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert preview: %w", err)
	}

	size := s.previewSize()
	if size.X != s.width || size.Y != s.height {
		img = imaging.Resize(img, size.X, size.Y, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.opts.PreviewQuality)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the source image. It is safe to call more than once.
func (s *ManualSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.terminal() {
		s.state = StateClosed
	}
	s.release()
}

func (s *ManualSession) release() {
	if s.released {
		return
	}
	s.frame.Close()
	s.released = true
}
