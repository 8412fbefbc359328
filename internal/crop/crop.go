// Package crop turns a captured still frame into a single rectangular JPEG,
// either by perspective-correcting a detected quadrilateral or through an
// interactive manual corner session.
package crop

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/vision"
)

// Output file identity handed to the capture callback.
const (
	FileName    = "document.jpg"
	ContentType = "image/jpeg"
)

var (
	// ErrDecode is returned when the still frame cannot be decoded.
	ErrDecode = errors.New("failed to decode captured image")
	// ErrEmptyCrop is returned when the crop region has no area.
	ErrEmptyCrop = errors.New("crop region is empty")
	// ErrInvalidQuad is returned when the corners do not form a convex
	// quadrilateral.
	ErrInvalidQuad = errors.New("quad is not convex")
)

// Mode identifies which path produced a File.
type Mode string

const (
	// ModeAuto is the perspective warp of a stable quad.
	ModeAuto Mode = "auto"
	// ModeManual is the bounding-box crop of user-adjusted points.
	ModeManual Mode = "manual"
)

// File is the encoded capture result.
type File struct {
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Data        []byte         `json:"-"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Mode        Mode           `json:"mode"`
	Quad        *geometry.Quad `json:"quad,omitempty"`
}

// Outcome is either a finished File (automatic path) or a ManualSession
// awaiting user adjustment. Exactly one field is set.
type Outcome struct {
	File    *File
	Session *ManualSession
}

// Options configures encoding and the manual corner tool.
type Options struct {
	// JPEGQuality is the output quality (0-100).
	JPEGQuality int `yaml:"jpeg_quality"`
	// ManualInset is the initial handle distance from each image corner, in
	// source pixels.
	ManualInset float64 `yaml:"manual_inset"`
	// HandleRadius is the drag hit-test radius in preview pixels.
	HandleRadius float64 `yaml:"handle_radius"`
	// PreviewHeightRatio is the share of the viewport height the preview may fill.
	PreviewHeightRatio float64 `yaml:"preview_height_ratio"`
	// PreviewQuality is the JPEG quality of the manual preview image.
	PreviewQuality int `yaml:"preview_quality"`
}

// DefaultOptions returns the reference crop settings.
func DefaultOptions() Options {
	return Options{
		JPEGQuality:        95,
		ManualInset:        60,
		HandleRadius:       15,
		PreviewHeightRatio: 0.75,
		PreviewQuality:     80,
	}
}

// Resolver decides between the automatic and manual crop paths.
type Resolver struct {
	opts  Options
	prims vision.Primitives
}

// NewResolver creates a Resolver using prims for the perspective warp.
func NewResolver(prims vision.Primitives, opts Options) *Resolver {
	return &Resolver{opts: opts, prims: prims}
}

// Options returns the resolver's settings.
func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve produces a File when quad is set and a new ManualSession otherwise.
// The frame is not retained; a manual session works on its own copy.
func (r *Resolver) Resolve(frame gocv.Mat, quad *geometry.Quad) (*Outcome, error) {
	if frame.Empty() {
		return nil, ErrDecode
	}

	if quad != nil {
		f, err := r.Auto(frame, *quad)
		if err != nil {
			return nil, err
		}
		return &Outcome{File: f}, nil
	}

	return &Outcome{Session: newManualSession(frame.Clone(), r.opts)}, nil
}

// ResolveBytes decodes an encoded still and resolves it like Resolve.
// Nothing is produced when decoding fails.
func (r *Resolver) ResolveBytes(data []byte, quad *geometry.Quad) (*Outcome, error) {
	frame, err := vision.Decode(data)
	if err != nil {
		frame.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer frame.Close()

	return r.Resolve(frame, quad)
}

// Auto warps the quad region of frame to a w x h rectangle, where w and h are
// the longer horizontal and vertical edge lengths of the quad. The corners may
// come in any order; they are put in canonical order before warping.
func (r *Resolver) Auto(frame gocv.Mat, quad geometry.Quad) (*File, error) {
	quad = geometry.OrderCorners(quad)
	w, h := quad.OutputSize()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyCrop
	}
	if !quad.IsConvex() {
		return nil, ErrInvalidQuad
	}

	warped := gocv.NewMat()
	defer warped.Close()
	r.prims.PerspectiveWarp(frame, &warped, quad, image.Point{X: w, Y: h})
	if warped.Empty() {
		return nil, ErrEmptyCrop
	}

	data, err := vision.EncodeJPEG(warped, r.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}

	q := quad
	return &File{
		Name:        FileName,
		ContentType: ContentType,
		Data:        data,
		Width:       warped.Cols(),
		Height:      warped.Rows(),
		Mode:        ModeAuto,
		Quad:        &q,
	}, nil
}
