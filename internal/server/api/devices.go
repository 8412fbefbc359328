package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/doccapture/internal/capture"
	"github.com/ayusman/doccapture/internal/detector"
)

// DeviceSelector lists cameras and switches the live detector between them.
type DeviceSelector interface {
	Devices() ([]capture.Device, string, error)
	SelectDevice(deviceID string) error
	State() detector.State
}

// DeviceHandler handles /api/devices and /api/devices/select.
type DeviceHandler struct {
	selector DeviceSelector
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(s DeviceSelector) *DeviceHandler {
	return &DeviceHandler{selector: s}
}

type listDevicesResponse struct {
	Devices []capture.Device `json:"devices"`
	Default string           `json:"default"`
	Current string           `json:"current"`
}

type selectDeviceRequest struct {
	ID string `json:"id"`
}

// ServeHTTP routes the device endpoints.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/devices"), "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
	case "select":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.selectDevice(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *DeviceHandler) list(w http.ResponseWriter, r *http.Request) {
	devs, def, err := h.selector.Devices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}
	if devs == nil {
		devs = []capture.Device{}
	}

	writeJSON(w, http.StatusOK, listDevicesResponse{
		Devices: devs,
		Default: def,
		Current: h.selector.State().Device,
	})
}

// selectDevice handles POST /api/devices/select. A camera that fails to open
// answers 503 and leaves detection stopped.
func (h *DeviceHandler) selectDevice(w http.ResponseWriter, r *http.Request) {
	var req selectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := h.selector.SelectDevice(req.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.selector.State())
}
