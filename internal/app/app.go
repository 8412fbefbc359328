// Package app wires the document capture pipeline: camera selection, the
// live detector, manual crop sessions and the sinks that receive every
// captured document.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/doccapture/internal/capture"
	"github.com/ayusman/doccapture/internal/config"
	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/detector"
	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/logger"
	"github.com/ayusman/doccapture/internal/metrics"
	"github.com/ayusman/doccapture/internal/plugin"
	"github.com/ayusman/doccapture/internal/store"
	"github.com/ayusman/doccapture/internal/upload"
	"github.com/ayusman/doccapture/internal/vision"
)

// Config holds the collaborators of an App. Only Settings is required.
type Config struct {
	Settings *config.Config
	Store    *store.Store
	Metrics  *metrics.Metrics

	// CameraFactory opens cameras by device ID. Nil uses capture.NewCamera.
	CameraFactory capture.Factory
	// Devices lists video inputs. Nil uses capture.ListDevices.
	Devices func() ([]capture.Device, error)
	// Analyzer replaces the contour analyzer.
	Analyzer detector.Analyzer
}

// Result is the outcome of a capture: a stored document, or a manual crop
// session waiting for the user.
type Result struct {
	Document *store.Document
	Session  *crop.ManualSession
}

// App is the document capture application.
type App struct {
	config    Config
	settings  *config.Config
	detector  *detector.Detector
	overlay   *detector.Overlay
	resolver  *crop.Resolver
	sessions  *Sessions
	pluginMgr *plugin.Manager
	pluginExe *plugin.Executor
	uploader  *upload.Uploader
	devices   func() ([]capture.Device, error)
	log       *zap.Logger

	mu        sync.RWMutex
	callbacks []func(crop.File)

	// Sink deliveries run in the background under ctx.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped App.
func New(cfg Config) *App {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	prims := vision.NewOpenCV()
	resolver := crop.NewResolver(prims, settings.Crop)
	overlay := detector.NewOverlay(settings.Server.StreamQuality)

	opts := []detector.Option{
		detector.WithLogger(logger.Named("detector")),
		detector.WithMetrics(cfg.Metrics),
		detector.WithRenderer(overlay),
		detector.WithResolver(resolver),
	}
	if cfg.CameraFactory != nil {
		opts = append(opts, detector.WithCameraFactory(cfg.CameraFactory))
	}
	if cfg.Analyzer != nil {
		opts = append(opts, detector.WithAnalyzer(cfg.Analyzer))
	}

	devices := cfg.Devices
	if devices == nil {
		devices = capture.ListDevices
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:    cfg,
		settings:  settings,
		detector:  detector.New(settings.Detection, prims, opts...),
		overlay:   overlay,
		resolver:  resolver,
		sessions:  NewSessions(),
		pluginMgr: plugin.NewManager(settings.Plugins.Dir),
		pluginExe: plugin.NewExecutor(settings.Plugins.TimeoutMs),
		devices:   devices,
		log:       logger.Named("app"),
		ctx:       ctx,
		cancel:    cancel,
	}

	if settings.Upload.URL != "" {
		a.uploader = upload.New(upload.Config{
			URL:     settings.Upload.URL,
			Timeout: settings.Upload.Timeout,
			Retries: settings.Upload.Retries,
			Headers: settings.Upload.Headers,
		})
	}

	return a
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	if err := a.pluginMgr.Discover(); err != nil {
		return err
	}
	a.log.Info("plugins discovered", zap.Int("count", len(a.pluginMgr.List())))
	return nil
}

// OnCapture registers fn to receive every captured document, after it has
// been stored and before the background sinks run.
func (a *App) OnCapture(fn func(crop.File)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// Start opens the preferred camera and starts detection. Starting a running
// App is a no-op.
func (a *App) Start() error {
	if a.detector.State().Running {
		return nil
	}

	device, err := a.preferredDevice()
	if err != nil {
		return err
	}

	if err := a.detector.StartDevice(device); err != nil {
		return fmt.Errorf("open camera %q: %w", device, err)
	}
	return nil
}

// Stop halts detection and releases the camera. Open manual sessions stay
// usable.
func (a *App) Stop() {
	a.detector.Stop()
	a.overlay.Clear()
}

// Close stops detection, closes every manual session and waits for pending
// sink deliveries.
func (a *App) Close() {
	a.Stop()
	a.sessions.CloseAll()
	a.cancel()
	a.wg.Wait()
	a.overlay.Close()
}

// preferredDevice picks the configured device, then the stored selection,
// then a back-facing camera, then the first one found.
func (a *App) preferredDevice() (string, error) {
	if id := a.settings.Camera.Device; id != "" {
		return id, nil
	}

	if a.config.Store != nil {
		id, err := a.config.Store.Settings().Get(store.SettingCameraDevice)
		switch {
		case err == nil && id != "":
			return id, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			a.log.Warn("failed to read stored camera", zap.Error(err))
		}
	}

	devs, err := a.devices()
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	dev, err := capture.DefaultDevice(devs)
	if err != nil {
		return "", err
	}
	return dev.ID, nil
}

// Devices lists the video inputs and the one a fresh start would pick.
func (a *App) Devices() ([]capture.Device, string, error) {
	devs, err := a.devices()
	if err != nil {
		return nil, "", err
	}
	def := ""
	if d, err := capture.DefaultDevice(devs); err == nil {
		def = d.ID
	}
	return devs, def, nil
}

// SelectDevice switches the detector to deviceID and remembers the choice.
// On failure detection stays stopped and the previous choice is kept.
func (a *App) SelectDevice(deviceID string) error {
	if err := a.detector.SwitchSource(deviceID); err != nil {
		return err
	}
	a.overlay.Clear()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().Set(store.SettingCameraDevice, deviceID); err != nil {
			a.log.Warn("failed to persist camera selection", zap.Error(err))
		}
	}
	a.log.Info("camera selected", zap.String("device", deviceID))
	return nil
}

// SetEnabled pauses or resumes detection.
func (a *App) SetEnabled(enabled bool) {
	a.detector.SetEnabled(enabled)
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	return a.detector.Enabled()
}

// Capture resolves the current frame. With a stable quad the document is
// stored and delivered; otherwise a manual session is opened over the frame.
func (a *App) Capture(viewportHeight int) (*Result, error) {
	out, err := a.detector.Capture()
	if err != nil {
		return nil, err
	}
	return a.finish(out, viewportHeight)
}

// CropImage resolves an uploaded still like Capture. quad may be nil.
func (a *App) CropImage(data []byte, quad *geometry.Quad, viewportHeight int) (*Result, error) {
	out, err := a.resolver.ResolveBytes(data, quad)
	if err != nil {
		a.config.Metrics.CaptureFailed()
		return nil, err
	}
	if out.File != nil {
		a.config.Metrics.Captured(metrics.ModeAuto)
	}
	return a.finish(out, viewportHeight)
}

func (a *App) finish(out *crop.Outcome, viewportHeight int) (*Result, error) {
	if out.File != nil {
		doc, err := a.deliver(out.File)
		if err != nil {
			return nil, err
		}
		return &Result{Document: doc}, nil
	}

	s := out.Session
	if err := s.Load(viewportHeight); err != nil {
		s.Close()
		return nil, err
	}
	a.sessions.Add(s)
	a.log.Info("manual crop session opened",
		zap.String("session", s.ID()),
		zap.Int("width", s.SourceSize().X),
		zap.Int("height", s.SourceSize().Y),
	)
	return &Result{Session: s}, nil
}

// Session returns the open manual session with the given ID.
func (a *App) Session(id string) (*crop.ManualSession, error) {
	return a.sessions.Get(id)
}

// ConfirmSession crops the session's region and delivers the document. An
// empty crop leaves the session open for another try.
func (a *App) ConfirmSession(id string) (*store.Document, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	f, err := s.Confirm()
	if err != nil {
		if errors.Is(err, crop.ErrEmptyCrop) {
			return nil, err
		}
		a.config.Metrics.CaptureFailed()
		a.sessions.Remove(id)
		return nil, err
	}
	a.sessions.Remove(id)
	a.config.Metrics.Captured(metrics.ModeManual)

	return a.deliver(f)
}

// CancelSession discards a manual session.
func (a *App) CancelSession(id string) error {
	s, err := a.sessions.Get(id)
	if err != nil {
		return err
	}
	a.sessions.Remove(id)
	return s.Cancel()
}

// State returns the detector state.
func (a *App) State() detector.State {
	return a.detector.State()
}

// Detector returns the live detector.
func (a *App) Detector() *detector.Detector {
	return a.detector
}

// Overlay returns the annotated frame renderer.
func (a *App) Overlay() *detector.Overlay {
	return a.overlay
}

// Store returns the document store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Metrics returns the metrics registry, which may be nil.
func (a *App) Metrics() *metrics.Metrics {
	return a.config.Metrics
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}
