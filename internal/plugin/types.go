// Package plugin runs external capture hooks: executables that receive every
// captured document as JSON on stdin.
package plugin

import "encoding/json"

// Events a plugin can subscribe to.
const (
	// EventDocumentCaptured fires once for every document produced by either
	// crop path.
	EventDocumentCaptured = "document.captured"
)

// Manifest describes a plugin's metadata and subscriptions.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Subscribes reports whether the plugin wants event. A manifest without
// events receives every event.
func (m Manifest) Subscribes(event string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DocumentInfo is the document metadata sent with an event.
type DocumentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Mode        string `json:"mode"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Request represents a request sent to a plugin for execution.
// Data carries the encoded document; encoding/json writes it as base64.
type Request struct {
	Event    string          `json:"event"`
	Document DocumentInfo    `json:"document"`
	Data     []byte          `json:"data,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
