package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/geometry"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Document is a stored capture. Data is only populated by Get.
type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Mode        crop.Mode      `json:"mode"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Size        int            `json:"size"`
	Quad        *geometry.Quad `json:"quad,omitempty"`
	Data        []byte         `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewDocument builds a Document with a fresh ID from a crop result.
func NewDocument(f *crop.File) *Document {
	return &Document{
		ID:          uuid.New().String(),
		Name:        f.Name,
		ContentType: f.ContentType,
		Mode:        f.Mode,
		Width:       f.Width,
		Height:      f.Height,
		Size:        len(f.Data),
		Quad:        f.Quad,
		Data:        f.Data,
	}
}

// DocumentRepository provides CRUD operations for documents.
type DocumentRepository struct {
	db *sql.DB
}

// Documents returns the document repository for this store.
func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{db: s.db}
}

// Create inserts a new document. An empty ID is filled in.
func (r *DocumentRepository) Create(d *Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()
	d.Size = len(d.Data)

	var quad sql.NullString
	if d.Quad != nil {
		b, err := json.Marshal(d.Quad)
		if err != nil {
			return err
		}
		quad = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO documents (id, name, content_type, mode, width, height, size, quad, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.ContentType, string(d.Mode), d.Width, d.Height, d.Size, quad, d.Data, d.CreatedAt,
	)
	return err
}

// Get retrieves a document, including its image data.
func (r *DocumentRepository) Get(id string) (*Document, error) {
	d := &Document{}
	var mode string
	var quad sql.NullString

	err := r.db.QueryRow(
		`SELECT id, name, content_type, mode, width, height, size, quad, data, created_at
		 FROM documents WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.Name, &d.ContentType, &mode, &d.Width, &d.Height, &d.Size, &quad, &d.Data, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	d.Mode = crop.Mode(mode)
	if err := decodeQuad(quad, d); err != nil {
		return nil, err
	}
	return d, nil
}

// List retrieves document metadata, newest first. A limit of 0 or less
// returns everything.
func (r *DocumentRepository) List(limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, name, content_type, mode, width, height, size, quad, created_at
		 FROM documents ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d := &Document{}
		var mode string
		var quad sql.NullString

		if err := rows.Scan(&d.ID, &d.Name, &d.ContentType, &mode, &d.Width, &d.Height, &d.Size, &quad, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Mode = crop.Mode(mode)
		if err := decodeQuad(quad, d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document and its delivery history.
func (r *DocumentRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Count returns the number of stored documents.
func (r *DocumentRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func decodeQuad(quad sql.NullString, d *Document) error {
	if !quad.Valid {
		return nil
	}
	var q geometry.Quad
	if err := json.Unmarshal([]byte(quad.String), &q); err != nil {
		return err
	}
	d.Quad = &q
	return nil
}
