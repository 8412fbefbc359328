package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SysfsRoot is where Linux exposes V4L2 device nodes.
const SysfsRoot = "/sys/class/video4linux"

// ErrNoDevices is returned when no video input device is present.
var ErrNoDevices = errors.New("no video input devices found")

// Device is a video input device.
type Device struct {
	// ID is passed to NewCamera.
	ID    string `json:"id"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

// backFacingHints mark a label as a rear camera.
var backFacingHints = []string{"back", "rear", "environment"}

// ListDevices returns the video capture devices on this host.
func ListDevices() ([]Device, error) {
	return ListDevicesIn(SysfsRoot)
}

// ListDevicesIn enumerates video4linux entries under root, skipping the
// metadata nodes UVC drivers register next to each capture node. Devices are
// ordered by index.
func ListDevicesIn(root string) ([]Device, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	type indexed struct {
		n   int
		dev Device
	}
	var found []indexed

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		dir := filepath.Join(root, name)
		if idx, ok := readSysfs(dir, "index"); ok && idx != "0" {
			continue
		}

		label, ok := readSysfs(dir, "name")
		if !ok || label == "" {
			label = name
		}

		found = append(found, indexed{n: n, dev: Device{
			ID:    strconv.Itoa(n),
			Label: label,
			Path:  "/dev/" + name,
		}})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	devices := make([]Device, len(found))
	for i, f := range found {
		devices[i] = f.dev
	}
	return devices, nil
}

func readSysfs(dir, file string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// DefaultDevice picks the first device whose label suggests a back-facing
// camera, falling back to the first device.
func DefaultDevice(devices []Device) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevices
	}
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, hint := range backFacingHints {
			if strings.Contains(label, hint) {
				return d, nil
			}
		}
	}
	return devices[0], nil
}
