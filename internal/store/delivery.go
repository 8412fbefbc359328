package store

import (
	"database/sql"
	"time"
)

// Delivery records one attempt to hand a document to a sink (an upload
// endpoint or a plugin).
type Delivery struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Sink       string    `json:"sink"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryRepository provides access to the delivery log.
type DeliveryRepository struct {
	db *sql.DB
}

// Deliveries returns the delivery repository for this store.
func (s *Store) Deliveries() *DeliveryRepository {
	return &DeliveryRepository{db: s.db}
}

// Record appends a delivery.
func (r *DeliveryRepository) Record(d *Delivery) error {
	d.CreatedAt = time.Now()

	result, err := r.db.Exec(
		`INSERT INTO deliveries (document_id, sink, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.DocumentID, d.Sink, d.Success, d.Error, d.CreatedAt,
	)
	if err != nil {
		return err
	}

	d.ID, err = result.LastInsertId()
	return err
}

// ListByDocument returns the deliveries of a document in the order they
// were recorded.
func (r *DeliveryRepository) ListByDocument(documentID string) ([]*Delivery, error) {
	rows, err := r.db.Query(
		`SELECT id, document_id, sink, success, error, created_at
		 FROM deliveries WHERE document_id = ? ORDER BY id`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []*Delivery{}
	for rows.Next() {
		d := &Delivery{}
		var success int
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.Sink, &success, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Success = success != 0
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}
