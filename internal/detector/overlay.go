package detector

import (
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

// Renderer receives every analyzed frame together with the detected quad.
// Render is only ever called from the detection loop.
type Renderer interface {
	Render(frame gocv.Mat, quad *geometry.Quad, stable bool)
}

var (
	candidateColor = color.RGBA{R: 255, G: 170, B: 0, A: 0}
	stableColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

const outlineThickness = 3

// Overlay keeps the latest frame with the detected quad outlined, for the
// live stream.
type Overlay struct {
	mu      sync.Mutex
	frame   gocv.Mat
	has     bool
	seq     uint64
	quality int
}

// NewOverlay creates an overlay that encodes snapshots at quality.
func NewOverlay(quality int) *Overlay {
	return &Overlay{frame: gocv.NewMat(), quality: quality}
}

// Render copies frame and outlines quad on the copy.
func (o *Overlay) Render(frame gocv.Mat, quad *geometry.Quad, stable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	frame.CopyTo(&o.frame)
	if quad != nil {
		c := candidateColor
		if stable {
			c = stableColor
		}
		vision.DrawQuad(&o.frame, *quad, c, outlineThickness)
	}
	o.has = true
	o.seq++
}

// Snapshot returns the current overlay as JPEG along with a sequence number
// that changes on every render. It returns a nil slice when nothing has been
// rendered.
func (o *Overlay) Snapshot() ([]byte, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.has {
		return nil, o.seq, nil
	}
	data, err := vision.EncodeJPEG(o.frame, o.quality)
	return data, o.seq, err
}

// Clear forgets the current frame.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.has = false
}

// Close releases the overlay buffer.
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.has = false
	return o.frame.Close()
}
