// Package main provides a capture hook that writes each captured document
// into a directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Document Document        `json:"document"`
	Data     []byte          `json:"data"`
	Config   json.RawMessage `json:"config"`
}

// Document is the captured document's metadata.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Mode        string `json:"mode"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config selects the output directory. Relative paths resolve against the
// plugin directory.
type Config struct {
	Dir string `json:"dir"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "document.captured" {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	path, err := save(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string]string{"path": path})
	writeSuccessResponse(data)
}

// save writes the document as <dir>/<timestamp>-<id>.jpg.
func save(req Request) (string, error) {
	if len(req.Data) == 0 {
		return "", fmt.Errorf("document has no data")
	}

	cfg := Config{Dir: "captures"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	id := req.Document.ID
	if id == "" {
		id = "document"
	}
	name := fmt.Sprintf("%s-%s.jpg", time.Now().Format("20060102-150405"), id)
	path := filepath.Join(cfg.Dir, name)

	if err := os.WriteFile(path, req.Data, 0644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
