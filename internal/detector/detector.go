// Package detector runs the live document detector: it reads camera frames on
// a fixed tick, finds the most plausible document quadrilateral in each one
// and tracks how long that detection has held.
package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrame is returned by Capture before the first frame has been read.
	ErrNoFrame = errors.New("no frame captured yet")
	// ErrNotRunning is returned by Capture when the detector is stopped.
	ErrNotRunning = errors.New("detector is not running")
)

// Config holds the detection thresholds and loop timing.
type Config struct {
	// FPS is the tick rate of the detection loop.
	FPS int `yaml:"fps"`

	// StableThreshold is the number of consecutive detections that must be
	// exceeded before a quad is recorded as stable.
	StableThreshold int `yaml:"stable_threshold"`

	// ClearStableAfter drops the stable quad after this many consecutive
	// frames without a detection. Zero keeps it until the next promotion.
	ClearStableAfter int `yaml:"clear_stable_after"`

	BlurKernel   int     `yaml:"blur_kernel"`
	CannyLow     float32 `yaml:"canny_low"`
	CannyHigh    float32 `yaml:"canny_high"`
	DilateKernel int     `yaml:"dilate_kernel"`

	// ApproxEpsilon is the polygon approximation tolerance as a fraction of
	// the contour perimeter.
	ApproxEpsilon float64 `yaml:"approx_epsilon"`

	// MinAreaRatio is the smallest candidate area as a fraction of the frame.
	MinAreaRatio float64 `yaml:"min_area_ratio"`

	// MinAspect and MaxAspect bound the bounding-box width/height ratio.
	MinAspect float64 `yaml:"min_aspect"`
	MaxAspect float64 `yaml:"max_aspect"`
}

// DefaultConfig returns the reference detection settings.
func DefaultConfig() Config {
	return Config{
		FPS:              15,
		StableThreshold:  5,
		ClearStableAfter: 0,
		BlurKernel:       5,
		CannyLow:         60,
		CannyHigh:        150,
		DilateKernel:     5,
		ApproxEpsilon:    0.02,
		MinAreaRatio:     0.10,
		MinAspect:        1.3,
		MaxAspect:        1.9,
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.FPS <= 0:
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	case c.StableThreshold < 0:
		return fmt.Errorf("stable_threshold must not be negative, got %d", c.StableThreshold)
	case c.ClearStableAfter < 0:
		return fmt.Errorf("clear_stable_after must not be negative, got %d", c.ClearStableAfter)
	case c.BlurKernel <= 0 || c.BlurKernel%2 == 0:
		return fmt.Errorf("blur_kernel must be a positive odd number, got %d", c.BlurKernel)
	case c.DilateKernel <= 0:
		return fmt.Errorf("dilate_kernel must be positive, got %d", c.DilateKernel)
	case c.CannyLow < 0 || c.CannyHigh <= c.CannyLow:
		return fmt.Errorf("canny thresholds must satisfy 0 <= low < high, got %v/%v", c.CannyLow, c.CannyHigh)
	case c.ApproxEpsilon <= 0:
		return fmt.Errorf("approx_epsilon must be positive, got %v", c.ApproxEpsilon)
	case c.MinAreaRatio < 0 || c.MinAreaRatio >= 1:
		return fmt.Errorf("min_area_ratio must be in [0, 1), got %v", c.MinAreaRatio)
	case c.MinAspect <= 0 || c.MaxAspect < c.MinAspect:
		return fmt.Errorf("aspect bounds must satisfy 0 < min <= max, got %v/%v", c.MinAspect, c.MaxAspect)
	}
	return nil
}
