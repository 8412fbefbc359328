package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestPlugin_SaveDir_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	// Find the built plugin
	pluginDir := findPluginDir("save-dir")
	if pluginDir == "" {
		t.Skip("save-dir plugin not built")
	}

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("save-dir")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	outDir := t.TempDir()
	req := testRequest()
	req.Config = json.RawMessage(`{"dir":` + mustJSON(t, outDir) + `}`)

	resp, err := NewExecutor(5000).Execute(plug, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}

	var data struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to parse response data: %v", err)
	}

	written, err := os.ReadFile(data.Path)
	if err != nil {
		t.Fatalf("document was not written: %v", err)
	}
	if string(written) != string(req.Data) {
		t.Error("written document does not match the request data")
	}

	// Unknown events are refused.
	req.Event = "session.cancelled"
	resp, err = NewExecutor(5000).Execute(plug, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for unknown event")
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir
		}
	}
	return ""
}
