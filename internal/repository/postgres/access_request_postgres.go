package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// AccessRequestPostgres is a PostgreSQL implementation of
// repository.AccessRequestRepository. The unique (user_id, item_id) index
// backs both duplicate rejection and the cascade upsert.
type AccessRequestPostgres struct {
	db *sql.DB
}

// NewAccessRequestPostgres creates a new AccessRequestPostgres repository.
func NewAccessRequestPostgres(db *sql.DB) *AccessRequestPostgres {
	return &AccessRequestPostgres{db: db}
}

var _ repository.AccessRequestRepository = (*AccessRequestPostgres)(nil)

const requestColumns = `id, user_id, item_id, item_type, status, created_at`

func scanRequest(row rowScanner) (*model.AccessRequest, error) {
	var ar model.AccessRequest
	if err := row.Scan(
		&ar.ID,
		&ar.UserID,
		&ar.ItemID,
		&ar.ItemType,
		&ar.Status,
		&ar.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ar, nil
}

// Create inserts a new access request row and returns the stored record. A
// unique violation on (user_id, item_id) is reported as repository.ErrDuplicate
// so a racing insert looks the same as a found duplicate.
func (r *AccessRequestPostgres) Create(ctx context.Context, req *model.AccessRequest) (*model.AccessRequest, error) {
	const q = `
		INSERT INTO access_requests (id, user_id, item_id, item_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + requestColumns
	row := r.db.QueryRowContext(ctx, q,
		req.ID,
		req.UserID,
		req.ItemID,
		req.ItemType,
		req.Status,
		req.CreatedAt,
	)
	ar, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return ar, nil
}

// FindByID fetches a single request by its ID.
func (r *AccessRequestPostgres) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM access_requests WHERE id = $1`
	return scanRequest(r.db.QueryRowContext(ctx, q, id))
}

// FindByUserItem returns the request for the pair in any status, or nil when
// none exists.
func (r *AccessRequestPostgres) FindByUserItem(ctx context.Context, userID, itemID string) (*model.AccessRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM access_requests
		WHERE user_id = $1 AND item_id = $2`
	ar, err := scanRequest(r.db.QueryRowContext(ctx, q, userID, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ar, err
}

// HasApproved reports whether an approved request exists for the pair.
func (r *AccessRequestPostgres) HasApproved(ctx context.Context, userID, itemID string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM access_requests
		WHERE user_id = $1 AND item_id = $2 AND status = 'approved')`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, userID, itemID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// List returns all requests, newest first.
func (r *AccessRequestPostgres) List(ctx context.Context) ([]model.AccessRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM access_requests ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AccessRequest, 0)
	for rows.Next() {
		ar, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ar)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status of a request by ID.
func (r *AccessRequestPostgres) UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error {
	const q = `UPDATE access_requests SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Upsert creates or updates the (userID, itemID) request. The generated id
// is only used on insert; a conflicting row keeps its identity.
func (r *AccessRequestPostgres) Upsert(ctx context.Context, userID, itemID string, itemType model.ItemType, status model.RequestStatus) error {
	const q = `
		INSERT INTO access_requests (id, user_id, item_id, item_type, status, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, now())
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET status = EXCLUDED.status, item_type = EXCLUDED.item_type`
	_, err := r.db.ExecContext(ctx, q, userID, itemID, itemType, status)
	return err
}
