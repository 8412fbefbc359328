package detector

import (
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/capture"
	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/logger"
	"github.com/ayusman/doccapture/internal/metrics"
	"github.com/ayusman/doccapture/internal/vision"
)

// State is a snapshot of the detector for display.
type State struct {
	Running     bool           `json:"running"`
	Enabled     bool           `json:"enabled"`
	Device      string         `json:"device"`
	Counter     int            `json:"counter"`
	Stable      bool           `json:"stable"`
	StableQuad  *geometry.Quad `json:"stable_quad,omitempty"`
	Quad        *geometry.Quad `json:"quad,omitempty"`
	FrameWidth  int            `json:"frame_width"`
	FrameHeight int            `json:"frame_height"`
	Ticks       uint64         `json:"ticks"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithMetrics records tick and capture counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithRenderer receives every analyzed frame.
func WithRenderer(r Renderer) Option {
	return func(d *Detector) { d.renderer = r }
}

// WithResolver replaces the crop resolver used by Capture.
func WithResolver(r *crop.Resolver) Option {
	return func(d *Detector) { d.resolver = r }
}

// WithAnalyzer replaces the contour analyzer.
func WithAnalyzer(a Analyzer) Option {
	return func(d *Detector) { d.analyzer = a }
}

// WithCameraFactory sets how StartDevice and SwitchSource open cameras.
func WithCameraFactory(f capture.Factory) Option {
	return func(d *Detector) { d.newCamera = f }
}

// Detector owns one camera and runs the detection loop over it.
type Detector struct {
	cfg       Config
	analyzer  Analyzer
	resolver  *crop.Resolver
	renderer  Renderer
	newCamera capture.Factory
	metrics   *metrics.Metrics
	log       *zap.Logger

	// runMu serializes Start, Stop and SwitchSource.
	runMu sync.Mutex

	mu        sync.Mutex
	cam       capture.Camera
	device    string
	running   bool
	enabled   bool
	tracker   *Tracker
	last      *geometry.Quad
	latest    gocv.Mat
	hasLatest bool
	size      image.Point
	ticks     uint64
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a stopped, enabled Detector.
func New(cfg Config, prims vision.Primitives, opts ...Option) *Detector {
	d := &Detector{
		cfg:       cfg,
		analyzer:  NewContourAnalyzer(cfg, prims),
		resolver:  crop.NewResolver(prims, crop.DefaultOptions()),
		newCamera: capture.NewCamera,
		log:       logger.Named("detector"),
		enabled:   true,
		tracker:   NewTracker(cfg.StableThreshold, cfg.ClearStableAfter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start opens cam and starts the detection loop. Starting a running detector
// is a no-op. An Open failure is returned as is and nothing is started.
func (d *Detector) Start(cam capture.Camera) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		return nil
	}
	return d.startLocked(cam, "")
}

// StartDevice opens deviceID through the camera factory and starts the loop.
func (d *Detector) StartDevice(deviceID string) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		return nil
	}
	return d.startLocked(d.newCamera(deviceID), deviceID)
}

func (d *Detector) startLocked(cam capture.Camera, device string) error {
	if err := cam.Open(); err != nil {
		return err
	}
	cam.SetFPS(d.cfg.FPS)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	d.mu.Lock()
	d.cam = cam
	d.device = device
	d.running = true
	d.stopCh = stopCh
	d.doneCh = doneCh
	d.mu.Unlock()

	go d.run(cam, stopCh, doneCh)

	d.log.Info("detection loop started", zap.String("device", device), zap.Int("fps", d.cfg.FPS))
	return nil
}

// Stop ends the loop, waits for the in-flight tick and closes the camera.
// Once Stop returns nothing touches the renderer or the stability state
// until the next Start. Stopping a stopped detector is a no-op.
func (d *Detector) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.stopLocked()
}

func (d *Detector) stopLocked() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	stopCh, doneCh, cam := d.stopCh, d.doneCh, d.cam
	d.stopCh, d.doneCh = nil, nil
	d.mu.Unlock()

	close(stopCh)
	<-doneCh

	if err := cam.Close(); err != nil {
		d.log.Warn("error closing camera", zap.Error(err))
	}

	d.mu.Lock()
	d.running = false
	d.cam = nil
	d.releaseLatest()
	d.mu.Unlock()

	d.log.Info("detection loop stopped")
}

// SwitchSource stops the loop, closes the current camera, opens deviceID and
// restarts with fresh stability state. The old camera is closed before the
// new one opens. If the new camera cannot be opened the detector stays
// stopped.
func (d *Detector) SwitchSource(deviceID string) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.stopLocked()

	d.mu.Lock()
	d.tracker.Reset()
	d.last = nil
	d.size = image.Point{}
	d.mu.Unlock()

	if err := d.startLocked(d.newCamera(deviceID), deviceID); err != nil {
		return fmt.Errorf("switch to device %q: %w", deviceID, err)
	}
	return nil
}

// SetEnabled pauses or resumes analysis. Paused ticks change nothing.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Enabled reports whether analysis is active.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// State returns a snapshot of the current detection state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Running:     d.running,
		Enabled:     d.enabled,
		Device:      d.device,
		Counter:     d.tracker.Counter(),
		StableQuad:  d.tracker.Stable(),
		FrameWidth:  d.size.X,
		FrameHeight: d.size.Y,
		Ticks:       d.ticks,
	}
	s.Stable = s.StableQuad != nil
	if d.last != nil {
		q := *d.last
		s.Quad = &q
	}
	return s
}

// Capture snapshots the latest frame and the stable quad and resolves them:
// a perspective-corrected file when a stable quad exists, otherwise a manual
// crop session over the snapshot.
func (d *Detector) Capture() (*crop.Outcome, error) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil, ErrNotRunning
	}
	if !d.hasLatest {
		d.mu.Unlock()
		return nil, ErrNoFrame
	}
	frame := d.latest.Clone()
	stable := d.tracker.Stable()
	d.mu.Unlock()
	defer frame.Close()

	out, err := d.resolver.Resolve(frame, stable)
	if err != nil {
		d.metrics.CaptureFailed()
		return nil, fmt.Errorf("resolve capture: %w", err)
	}
	if out.File != nil {
		d.metrics.Captured(metrics.ModeAuto)
	}
	return out, nil
}

// Config returns the detection settings.
func (d *Detector) Config() Config {
	return d.cfg
}

// Resolver returns the crop resolver used by Capture.
func (d *Detector) Resolver() *crop.Resolver {
	return d.resolver
}

// run is the detection loop. The stop channel is checked before every tick
// so a stop request never races a new tick.
func (d *Detector) run(cam capture.Camera, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		select {
		case <-stopCh:
			return
		default:
		}

		d.tick(cam)
	}
}

// tick processes one frame. Any failure counts as a frame without a quad.
func (d *Detector) tick(cam capture.Camera) {
	if !d.Enabled() {
		return
	}

	frame, err := cam.ReadFrame()
	if err != nil {
		d.metrics.TickError()
		d.log.Debug("read frame failed", zap.Error(err))
		d.observe(nil, nil)
		return
	}
	defer frame.Close()

	quad, err := d.analyze(*frame)
	if err != nil {
		d.metrics.TickError()
		d.log.Warn("frame analysis failed", zap.Error(err))
		quad = nil
	}

	d.observe(frame, quad)
}

// analyze runs the analyzer, converting a panic into an error.
func (d *Detector) analyze(frame gocv.Mat) (quad *geometry.Quad, err error) {
	defer func() {
		if r := recover(); r != nil {
			quad, err = nil, fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return d.analyzer.Analyze(frame)
}

func (d *Detector) observe(frame *gocv.Mat, quad *geometry.Quad) {
	d.mu.Lock()
	promoted := d.tracker.Observe(quad)
	d.last = quad
	d.ticks++
	if frame != nil {
		if !d.hasLatest {
			d.latest = gocv.NewMat()
			d.hasLatest = true
		}
		frame.CopyTo(&d.latest)
		d.size = image.Point{X: frame.Cols(), Y: frame.Rows()}
	}
	counter := d.tracker.Counter()
	d.mu.Unlock()

	d.metrics.ObserveTick(quad != nil, promoted, counter)

	if frame != nil && d.renderer != nil {
		d.renderer.Render(*frame, quad, promoted)
	}
}

// releaseLatest frees the retained frame. Callers hold d.mu.
func (d *Detector) releaseLatest() {
	if d.hasLatest {
		d.latest.Close()
		d.hasLatest = false
	}
}
