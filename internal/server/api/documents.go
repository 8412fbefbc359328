package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/doccapture/internal/geometry"
	"github.com/ayusman/doccapture/internal/store"
)

// defaultListLimit caps GET /api/documents when no limit is given.
const defaultListLimit = 50

// DocumentHandler serves the stored captures.
type DocumentHandler struct {
	store *store.Store
}

// NewDocumentHandler creates a new DocumentHandler with the given store.
func NewDocumentHandler(s *store.Store) *DocumentHandler {
	return &DocumentHandler{store: s}
}

// ServeHTTP routes /api/documents, /api/documents/{id} and
// /api/documents/{id}/deliveries.
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/documents")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case sub == "deliveries" && r.Method == http.MethodGet:
		h.deliveries(w, r, id)
	case sub == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case sub == "" || sub == "deliveries":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

type documentResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Mode        string         `json:"mode"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Size        int            `json:"size"`
	Quad        *geometry.Quad `json:"quad,omitempty"`
	URL         string         `json:"url"`
	CreatedAt   string         `json:"created_at"`
}

type listDocumentsResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
}

type listDeliveriesResponse struct {
	Deliveries []*store.Delivery `json:"deliveries"`
}

// toDocumentResponse converts a store.Document to a documentResponse.
func toDocumentResponse(d *store.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Name:        d.Name,
		ContentType: d.ContentType,
		Mode:        string(d.Mode),
		Width:       d.Width,
		Height:      d.Height,
		Size:        d.Size,
		Quad:        d.Quad,
		URL:         "/api/documents/" + d.ID,
		CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// list handles GET /api/documents, newest first.
func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	docs, err := h.store.Documents().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	total, err := h.store.Documents().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count documents")
		return
	}

	response := listDocumentsResponse{
		Documents: make([]documentResponse, 0, len(docs)),
		Total:     total,
	}
	for _, d := range docs {
		response.Documents = append(response.Documents, toDocumentResponse(d))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/documents/{id} and returns the JPEG itself.
func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := h.store.Documents().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	w.Header().Set("Content-Disposition", `inline; filename="`+doc.Name+`"`)
	writeJPEG(w, doc.Data)
}

// deliveries handles GET /api/documents/{id}/deliveries.
func (h *DocumentHandler) deliveries(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Documents().Get(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}

	deliveries, err := h.store.Deliveries().ListByDocument(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}
	writeJSON(w, http.StatusOK, listDeliveriesResponse{Deliveries: deliveries})
}

// delete handles DELETE /api/documents/{id}.
func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Documents().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
