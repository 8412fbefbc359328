// Package api provides the HTTP API handlers for doccapture.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/doccapture/internal/app"
	"github.com/ayusman/doccapture/internal/capture"
	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/detector"
	"github.com/ayusman/doccapture/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeJPEG writes an image/jpeg response.
func writeJPEG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", crop.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, app.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, crop.ErrDecode), errors.Is(err, crop.ErrEmptyCrop),
		errors.Is(err, crop.ErrInvalidQuad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crop.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, crop.ErrInvalidState), errors.Is(err, detector.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, detector.ErrNoFrame), errors.Is(err, capture.ErrCameraNotOpen),
		errors.Is(err, capture.ErrNoDevices):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with the status statusFor picks.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
