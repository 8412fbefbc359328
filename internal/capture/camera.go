// Package capture provides camera capture and device enumeration using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultFPS is the capture rate requested from the device.
const DefaultFPS = 15

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	// Size returns the native frame size, or the zero point before the
	// first frame has been read.
	Size() image.Point
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Factory opens cameras by device ID.
type Factory func(deviceID string) Camera

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID string
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
	fps      int
	size     image.Point
}

// NewCamera creates a new Camera for the given device. Numeric IDs are
// device indexes; anything else (a /dev/video path, a file or stream URL)
// is passed to OpenCV as-is.
func NewCamera(deviceID string) Camera {
	return &cameraImpl{
		deviceID: deviceID,
		fps:      DefaultFPS,
	}
}

// Open opens the camera at its native resolution.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var source interface{} = c.deviceID
	if idx, err := strconv.Atoi(c.deviceID); err == nil {
		source = idx
	}

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return fmt.Errorf("open camera %q: %w", c.deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %q: device unavailable", c.deviceID)
	}

	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true
	c.size = image.Point{
		X: int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Y: int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}

	return nil
}

// Close closes the camera and releases resources. Closing a camera that is
// not open is a no-op.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	c.size = image.Point{X: mat.Cols(), Y: mat.Rows()}
	return &mat, nil
}

// Size returns the most recently observed frame size.
func (c *cameraImpl) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
