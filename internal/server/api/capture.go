package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/doccapture/internal/app"
	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/store"
)

// maxUploadBytes bounds a still uploaded to POST /api/crop.
const maxUploadBytes = 32 << 20

// Capturer is the part of the application the capture endpoints drive.
type Capturer interface {
	Capture(viewportHeight int) (*app.Result, error)
	CropImage(data []byte, quad *geometry.Quad, viewportHeight int) (*app.Result, error)
	Session(id string) (*crop.ManualSession, error)
	ConfirmSession(id string) (*store.Document, error)
	CancelSession(id string) error
}

type sessionResponse struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	PreviewWidth  int               `json:"preview_width"`
	PreviewHeight int               `json:"preview_height"`
	Scale         float64           `json:"scale"`
	Points        [4]geometry.Point `json:"points"`
	Active        int               `json:"active"`
	Crop          geometry.Rect     `json:"crop"`
	PreviewURL    string            `json:"preview_url"`
}

type captureResponse struct {
	Document *documentResponse `json:"document,omitempty"`
	Session  *sessionResponse  `json:"session,omitempty"`
}

type dragRequest struct {
	Phase string  `json:"phase"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type dragResponse struct {
	Handle  int             `json:"handle"`
	Moved   bool            `json:"moved"`
	Session sessionResponse `json:"session"`
}

func toSessionResponse(s *crop.ManualSession) sessionResponse {
	src, preview := s.SourceSize(), s.PreviewSize()
	return sessionResponse{
		ID:            s.ID(),
		State:         s.State().String(),
		Width:         src.X,
		Height:        src.Y,
		PreviewWidth:  preview.X,
		PreviewHeight: preview.Y,
		Scale:         s.PreviewScale(),
		Points:        s.Points(),
		Active:        s.Active(),
		Crop:          s.CropRect(),
		PreviewURL:    "/api/crop/" + s.ID() + "/preview",
	}
}

// writeResult answers 201 with the stored document or 202 with the manual
// session that still needs the user.
func writeResult(w http.ResponseWriter, res *app.Result) {
	if res.Document != nil {
		doc := toDocumentResponse(res.Document)
		writeJSON(w, http.StatusCreated, captureResponse{Document: &doc})
		return
	}
	sess := toSessionResponse(res.Session)
	writeJSON(w, http.StatusAccepted, captureResponse{Session: &sess})
}

// viewportHeight reads the optional ?viewport= preview bound.
func viewportHeight(r *http.Request) (int, error) {
	v := r.FormValue("viewport")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid viewport")
	}
	return n, nil
}

// CaptureHandler handles POST /api/capture.
type CaptureHandler struct {
	capturer Capturer
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(c Capturer) *CaptureHandler {
	return &CaptureHandler{capturer: c}
}

// ServeHTTP captures the live frame.
func (h *CaptureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	viewport, err := viewportHeight(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid viewport")
		return
	}

	res, err := h.capturer.Capture(viewport)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeResult(w, res)
}

// CropHandler handles uploaded stills and the manual crop sessions under
// /api/crop.
type CropHandler struct {
	capturer Capturer
}

// NewCropHandler creates a new CropHandler.
func NewCropHandler(c Capturer) *CropHandler {
	return &CropHandler{capturer: c}
}

// ServeHTTP routes POST /api/crop and /api/crop/{id}[/preview|drag|confirm|cancel].
func (h *CropHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/crop")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.upload(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	method := http.MethodPost
	if action == "" || action == "preview" {
		method = http.MethodGet
	}
	if action == "" && r.Method == http.MethodDelete {
		method = http.MethodDelete
		action = "cancel"
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "":
		h.get(w, r, id)
	case "preview":
		h.preview(w, r, id)
	case "drag":
		h.drag(w, r, id)
	case "confirm":
		h.confirm(w, r, id)
	case "cancel":
		h.cancel(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// upload handles POST /api/crop: a multipart still in the "image" field and
// an optional "quad" field holding four {"x","y"} corners.
func (h *CropHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	var quad *geometry.Quad
	if v := r.FormValue("quad"); v != "" {
		var q geometry.Quad
		if err := json.Unmarshal([]byte(v), &q); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quad")
			return
		}
		quad = &q
	}

	viewport, err := viewportHeight(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid viewport")
		return
	}

	res, err := h.capturer.CropImage(data, quad, viewport)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeResult(w, res)
}

func (h *CropHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.capturer.Session(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

func (h *CropHandler) preview(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.capturer.Session(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	data, err := s.Preview()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJPEG(w, data)
}

// drag handles POST /api/crop/{id}/drag. Coordinates are in preview pixels.
func (h *CropHandler) drag(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.capturer.Session(id)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req dragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	p := geometry.Pt(req.X, req.Y)
	resp := dragResponse{Handle: -1}

	switch req.Phase {
	case "start":
		idx, err := s.DragStart(p)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp.Handle = idx
	case "move":
		resp.Moved = s.DragMove(p)
		resp.Handle = s.Active()
	case "end":
		s.DragEnd()
	default:
		writeError(w, http.StatusBadRequest, "Phase must be start, move or end")
		return
	}

	resp.Session = toSessionResponse(s)
	writeJSON(w, http.StatusOK, resp)
}

// confirm handles POST /api/crop/{id}/confirm. An empty crop answers 422 and
// keeps the session open.
func (h *CropHandler) confirm(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := h.capturer.ConfirmSession(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := toDocumentResponse(doc)
	writeJSON(w, http.StatusCreated, captureResponse{Document: &resp})
}

func (h *CropHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.capturer.CancelSession(id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
