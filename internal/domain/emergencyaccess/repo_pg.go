package emergencyaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// activeGrantIndex is the partial unique index over (requester_id,
// patient_id, record_id) WHERE status IN ('pending','approved'). A 23505
// on this index is the lost-race signal required by the dedup invariant.
const activeGrantIndex = "emergency_access_active_grant_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const accessCols = `id, requester_id, patient_id, record_id, urgency, justification,
	patient_condition, vitals, status, request_time, expiry_time, approval_time,
	supervisor_id, supervisor_name, auto_approved, verification_code,
	accessed_records, access_count, last_access_time,
	revoked_by, revoked_reason, revoked_at, witness_id, follow_up_required,
	created_at, updated_at`

func scanAccess(row pgx.Row) (*AccessRecord, error) {
	var r AccessRecord
	err := row.Scan(&r.ID, &r.RequesterID, &r.PatientID, &r.RecordID, &r.Urgency, &r.Justification,
		&r.PatientCondition, &r.Vitals, &r.Status, &r.RequestTime, &r.ExpiryTime, &r.ApprovalTime,
		&r.SupervisorID, &r.SupervisorName, &r.AutoApproved, &r.VerificationCode,
		&r.AccessedRecords, &r.AccessCount, &r.LastAccessTime,
		&r.RevokedBy, &r.RevokedReason, &r.RevokedAt, &r.WitnessID, &r.FollowUpRequired,
		&r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, rec *AccessRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.AccessedRecords == nil {
		rec.AccessedRecords = []uuid.UUID{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO emergency_access (id, requester_id, patient_id, record_id, urgency,
			justification, patient_condition, vitals, status, request_time, expiry_time,
			approval_time, supervisor_id, supervisor_name, auto_approved, verification_code,
			accessed_records, access_count, witness_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.ID, rec.RequesterID, rec.PatientID, rec.RecordID, rec.Urgency,
		rec.Justification, rec.PatientCondition, rec.Vitals, rec.Status, rec.RequestTime, rec.ExpiryTime,
		rec.ApprovalTime, rec.SupervisorID, rec.SupervisorName, rec.AutoApproved, rec.VerificationCode,
		rec.AccessedRecords, rec.AccessCount, rec.WitnessID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeGrantIndex {
		return &ConcurrencyConflictError{
			RequesterID: rec.RequesterID,
			PatientID:   rec.PatientID,
			RecordID:    rec.RecordID,
		}
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AccessRecord, error) {
	rec, err := scanAccess(r.pool.QueryRow(ctx,
		`SELECT `+accessCols+` FROM emergency_access WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "access record", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get access record %s: %w", id, err)
	}
	return rec, nil
}

func (r *repoPG) FindActive(ctx context.Context, requesterID, patientID, recordID uuid.UUID) (*AccessRecord, error) {
	rec, err := scanAccess(r.pool.QueryRow(ctx, `
		SELECT `+accessCols+` FROM emergency_access
		WHERE requester_id = $1 AND patient_id = $2 AND record_id = $3
		  AND status IN ('pending','approved')
		LIMIT 1`, requesterID, patientID, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active grant: %w", err)
	}
	return rec, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, patch StatusPatch) (*AccessRecord, error) {
	rec, err := scanAccess(r.pool.QueryRow(ctx, `
		UPDATE emergency_access SET
			status = $3,
			approval_time   = COALESCE($4, approval_time),
			supervisor_id   = COALESCE($5, supervisor_id),
			supervisor_name = COALESCE($6, supervisor_name),
			revoked_by      = COALESCE($7, revoked_by),
			revoked_reason  = COALESCE($8, revoked_reason),
			revoked_at      = COALESCE($9, revoked_at),
			updated_at      = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+accessCols,
		id, expected, patch.Status,
		patch.ApprovalTime, patch.SupervisorID, patch.SupervisorName,
		patch.RevokedBy, patch.RevokedReason, patch.RevokedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// Row missing or status moved underneath us; reload to tell apart.
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &InvalidStateError{Current: current.Status, Op: "transition to " + string(patch.Status)}
	}
	if err != nil {
		return nil, fmt.Errorf("update access record %s: %w", id, err)
	}
	return rec, nil
}

func (r *repoPG) RecordAccess(ctx context.Context, id uuid.UUID, recordID uuid.UUID, at time.Time) (*AccessRecord, error) {
	rec, err := scanAccess(r.pool.QueryRow(ctx, `
		UPDATE emergency_access SET
			accessed_records = accessed_records || $2,
			access_count     = access_count + 1,
			last_access_time = $3,
			updated_at       = NOW()
		WHERE id = $1 AND status = 'approved'
		RETURNING `+accessCols,
		id, []uuid.UUID{recordID}, at))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &InvalidStateError{Current: current.Status, Op: "access records under"}
	}
	if err != nil {
		return nil, fmt.Errorf("record access on %s: %w", id, err)
	}
	return rec, nil
}

func (r *repoPG) SetFollowUpRequired(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE emergency_access SET follow_up_required = TRUE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set follow-up on %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "access record", ID: id}
	}
	return nil
}

func (r *repoPG) ListExpiredApproved(ctx context.Context, now time.Time) ([]*AccessRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accessCols+` FROM emergency_access
		WHERE status = 'approved' AND expiry_time < $1
		ORDER BY expiry_time`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired grants: %w", err)
	}
	defer rows.Close()
	var items []*AccessRecord
	for rows.Next() {
		rec, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*AccessRecord, int, error) {
	query := `SELECT ` + accessCols + ` FROM emergency_access WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM emergency_access WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.RequesterID != nil {
		query += fmt.Sprintf(` AND requester_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND requester_id = $%d`, idx)
		args = append(args, *filter.RequesterID)
		idx++
	}
	if filter.PatientID != nil {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *filter.PatientID)
		idx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *filter.Status)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access records: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY request_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list access records: %w", err)
	}
	defer rows.Close()
	var items []*AccessRecord
	for rows.Next() {
		rec, err := scanAccess(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
