package server

import (
	"fmt"
	"net/http"
	"time"
)

// Snapshotter supplies the latest annotated frame as JPEG together with a
// sequence number that changes whenever the frame does.
type Snapshotter interface {
	Snapshot() ([]byte, uint64, error)
}

// StreamHandler serves the detector overlay as MJPEG.
type StreamHandler struct {
	source   Snapshotter
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler polling source every interval.
func NewStreamHandler(source Snapshotter, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = 66 * time.Millisecond
	}
	return &StreamHandler{source: source, interval: interval}
}

// ServeHTTP streams a part each time the overlay changes, until the client
// goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last uint64
	sent := false
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		data, seq, err := h.source.Snapshot()
		if err != nil || data == nil || (sent && seq == last) {
			continue
		}

		if err := writePart(w, data); err != nil {
			return
		}
		last, sent = seq, true

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}
