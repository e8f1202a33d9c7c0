// Package records exposes medical record metadata to the access layer.
// Record content lives off-chain (blob store addressed by StorageRef,
// integrity anchored by ContentHash); this package never decrypts or
// retrieves the payload itself.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the record id does not exist.
var ErrNotFound = errors.New("medical record not found")

// Record is the custody metadata for one medical record.
type Record struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	RecordType  string    `db:"record_type" json:"record_type"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	StorageRef  string    `db:"storage_ref" json:"storage_ref"`
	Sensitive   bool      `db:"sensitive" json:"sensitive"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Service fetches record metadata.
type Service interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
}

type pgService struct{ pool *pgxpool.Pool }

// NewPG returns a Service backed by the medical_record table.
func NewPG(pool *pgxpool.Pool) Service { return &pgService{pool: pool} }

func (s *pgService) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, record_type, content_hash, storage_ref, sensitive, created_at
		FROM medical_record WHERE id = $1`, id).
		Scan(&r.ID, &r.PatientID, &r.RecordType, &r.ContentHash, &r.StorageRef, &r.Sensitive, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medical record %s: %w", id, err)
	}
	return &r, nil
}
