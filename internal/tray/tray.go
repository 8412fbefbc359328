// Package tray provides a system tray menu for doccapture.
package tray

import (
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/doccapture/internal/detector"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onCapture func() string
	onOpen    func()
	onQuit    func()
	status    func() detector.State
	enabled   bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
	menuLast   *systray.MenuItem
	stopCh     chan struct{}
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		stopCh:  make(chan struct{}),
	}
}

// OnToggle sets the callback function to be called when detection is
// enabled or disabled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnCapture sets the capture callback. It returns a line for the "Last"
// menu item.
func (t *Tray) OnCapture(fn func() string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnOpen sets the callback for the "Open in browser" item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// SetStatusSource makes the status item follow the detector state.
func (t *Tray) SetStatusSource(fn func() detector.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("DocCapture")
	systray.SetTooltip("DocCapture document scanner")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle document detection")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem("Camera: stopped", "Detector status")
	t.menuStatus.Disable()
	t.menuLast = systray.AddMenuItem("Last: none", "Last captured document")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuCapture := systray.AddMenuItem("Capture", "Capture the current frame")
	menuOpen := systray.AddMenuItem("Open in Browser...", "Open the capture page")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit DocCapture")

	go t.pollStatus()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuCapture.ClickedCh:
				t.handleCapture()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Detection on"
	}
	return "○ Detection off"
}

// StatusLine renders a detector state for the status item.
func StatusLine(s detector.State) string {
	switch {
	case !s.Running:
		return "Camera: stopped"
	case !s.Enabled:
		return "Camera " + s.Device + ": paused"
	case s.Stable:
		return "Camera " + s.Device + ": document locked"
	case s.Quad != nil:
		return fmt.Sprintf("Camera %s: document found (%d)", s.Device, s.Counter)
	default:
		return "Camera " + s.Device + ": searching"
	}
}

func (t *Tray) pollStatus() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		t.mu.RLock()
		status, item := t.status, t.menuStatus
		t.mu.RUnlock()
		if status == nil || item == nil {
			continue
		}

		if line := StatusLine(status()); line != last {
			item.SetTitle(line)
			last = line
		}
	}
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleCapture() {
	t.mu.RLock()
	callback := t.onCapture
	t.mu.RUnlock()

	if callback != nil {
		t.SetLast(callback())
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLast updates the last capture display in the menu.
func (t *Tray) SetLast(text string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		if text == "" {
			t.menuLast.SetTitle("Last: none")
		} else {
			t.menuLast.SetTitle("Last: " + text)
		}
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
