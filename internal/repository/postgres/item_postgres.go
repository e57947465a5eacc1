package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// ItemPostgres is a PostgreSQL implementation of repository.ItemRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// Set-valued columns (allowed_users, shared_departments) are stored as JSONB.
type ItemPostgres struct {
	db *sql.DB
}

// NewItemPostgres creates a new ItemPostgres repository.
func NewItemPostgres(db *sql.DB) *ItemPostgres {
	return &ItemPostgres{db: db}
}

var _ repository.ItemRepository = (*ItemPostgres)(nil)

const itemColumns = `id, name, type, company_id, parent_id, path,
		mime_type, byte_size, original_name, relative_path,
		expiry_date, is_restricted, allowed_users, department, shared_departments,
		created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var (
		it           model.Item
		parentID     sql.NullString
		mimeType     sql.NullString
		byteSize     sql.NullInt64
		originalName sql.NullString
		relativePath sql.NullString
		expiry       sql.NullTime
		allowedRaw   []byte
		sharedRaw    []byte
	)
	if err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Type,
		&it.CompanyID,
		&parentID,
		&it.Path,
		&mimeType,
		&byteSize,
		&originalName,
		&relativePath,
		&expiry,
		&it.IsRestricted,
		&allowedRaw,
		&it.Department,
		&sharedRaw,
		&it.CreatedBy,
		&it.CreatedAt,
	); err != nil {
		return nil, err
	}
	if parentID.Valid {
		it.ParentID = &parentID.String
	}
	if expiry.Valid {
		t := expiry.Time
		it.ExpiryDate = &t
	}
	if it.Type == model.TypeFile {
		it.File = &model.FileMeta{
			MimeType:     mimeType.String,
			ByteSize:     byteSize.Int64,
			OriginalName: originalName.String,
			RelativePath: relativePath.String,
		}
	}
	if len(allowedRaw) > 0 {
		if err := json.Unmarshal(allowedRaw, &it.AllowedUsers); err != nil {
			return nil, fmt.Errorf("decode allowed_users: %w", err)
		}
	}
	if it.AllowedUsers == nil {
		it.AllowedUsers = []string{}
	}
	if len(sharedRaw) > 0 {
		if err := json.Unmarshal(sharedRaw, &it.SharedDepartments); err != nil {
			return nil, fmt.Errorf("decode shared_departments: %w", err)
		}
	}
	if it.SharedDepartments == nil {
		it.SharedDepartments = []string{}
	}
	return &it, nil
}

func jsonList(vals []string) ([]byte, error) {
	if vals == nil {
		vals = []string{}
	}
	return json.Marshal(vals)
}

// Create inserts a new item row and returns the stored record.
func (r *ItemPostgres) Create(ctx context.Context, item *model.Item) (*model.Item, error) {
	const q = `
		INSERT INTO items (id, name, type, company_id, parent_id, path,
			mime_type, byte_size, original_name, relative_path,
			expiry_date, is_restricted, allowed_users, department, shared_departments,
			created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + itemColumns

	allowed, err := jsonList(item.AllowedUsers)
	if err != nil {
		return nil, err
	}
	shared, err := jsonList(item.SharedDepartments)
	if err != nil {
		return nil, err
	}

	var (
		mimeType     sql.NullString
		byteSize     sql.NullInt64
		originalName sql.NullString
		relativePath sql.NullString
	)
	if item.File != nil {
		mimeType = sql.NullString{String: item.File.MimeType, Valid: true}
		byteSize = sql.NullInt64{Int64: item.File.ByteSize, Valid: true}
		originalName = sql.NullString{String: item.File.OriginalName, Valid: true}
		relativePath = sql.NullString{String: item.File.RelativePath, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, q,
		item.ID,
		item.Name,
		item.Type,
		item.CompanyID,
		item.ParentID,
		item.Path,
		mimeType,
		byteSize,
		originalName,
		relativePath,
		item.ExpiryDate,
		item.IsRestricted,
		allowed,
		item.Department,
		shared,
		item.CreatedBy,
		item.CreatedAt,
	)
	return scanItem(row)
}

// FindByID fetches a single item by its ID.
func (r *ItemPostgres) FindByID(ctx context.Context, id string) (*model.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return scanItem(r.db.QueryRowContext(ctx, q, id))
}

// FindFolder looks up a folder by exact name under (parentID, companyID).
// Name matching is case-sensitive. A missing folder is (nil, nil).
func (r *ItemPostgres) FindFolder(ctx context.Context, companyID string, parentID *string, name string) (*model.Item, error) {
	const qWithParent = `SELECT ` + itemColumns + `
		FROM items
		WHERE type = 'folder' AND company_id = $1 AND parent_id = $2 AND name = $3`
	const qRoot = `SELECT ` + itemColumns + `
		FROM items
		WHERE type = 'folder' AND company_id = $1 AND parent_id IS NULL AND name = $2`

	var row *sql.Row
	if parentID != nil {
		row = r.db.QueryRowContext(ctx, qWithParent, companyID, *parentID, name)
	} else {
		row = r.db.QueryRowContext(ctx, qRoot, companyID, name)
	}
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// FindChildren returns direct children matching the query, folders first,
// then by name.
func (r *ItemPostgres) FindChildren(ctx context.Context, q repository.ChildQuery) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := make([]any, 0, 3)
	n := 0
	if q.CompanyID != "" {
		n++
		query += fmt.Sprintf(" AND company_id = $%d", n)
		args = append(args, q.CompanyID)
	}
	if q.ParentID != nil {
		n++
		query += fmt.Sprintf(" AND parent_id = $%d", n)
		args = append(args, *q.ParentID)
	} else {
		query += " AND parent_id IS NULL"
	}
	if q.Type != "" {
		n++
		query += fmt.Sprintf(" AND type = $%d", n)
		args = append(args, q.Type)
	}
	query += " ORDER BY type ASC, name ASC"

	return r.queryItems(ctx, query, args...)
}

// ChildrenOf returns every direct child of the given parent.
func (r *ItemPostgres) ChildrenOf(ctx context.Context, parentID string) ([]model.Item, error) {
	const q = `SELECT ` + itemColumns + ` FROM items WHERE parent_id = $1 ORDER BY type ASC, name ASC`
	return r.queryItems(ctx, q, parentID)
}

// FindDescendants walks the subtree breadth-first with an explicit work
// queue of node ids, one children query per node. The tree is acyclic by
// construction, so every node is visited exactly once; the visited set
// guards against a corrupt edge turning the walk into a loop.
func (r *ItemPostgres) FindDescendants(ctx context.Context, rootID string) ([]model.Item, error) {
	var out []model.Item
	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := r.ChildrenOf(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			if child.Type == model.TypeFolder {
				queue = append(queue, child.ID)
			}
		}
	}
	return out, nil
}

// UpdatePath rewrites an item's name and canonical path.
func (r *ItemPostgres) UpdatePath(ctx context.Context, id, name, path string) error {
	const q = `UPDATE items SET name = $2, path = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, name, path)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateTenant rewrites an item's company id, parent reference and canonical path.
func (r *ItemPostgres) UpdateTenant(ctx context.Context, id, companyID string, parentID *string, path string) error {
	const q = `UPDATE items SET company_id = $2, parent_id = $3, path = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, companyID, parentID, path)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateMetadata applies the given field updates and returns the stored row.
func (r *ItemPostgres) UpdateMetadata(ctx context.Context, id string, upd repository.MetadataUpdate) (*model.Item, error) {
	query := `UPDATE items SET id = id`
	args := []any{id}
	n := 1

	if upd.SetExpiry {
		n++
		query += fmt.Sprintf(", expiry_date = $%d", n)
		args = append(args, upd.ExpiryDate)
	}
	if upd.IsRestricted != nil {
		n++
		query += fmt.Sprintf(", is_restricted = $%d", n)
		args = append(args, *upd.IsRestricted)
	}
	if upd.AllowedUsers != nil {
		allowed, err := jsonList(upd.AllowedUsers)
		if err != nil {
			return nil, err
		}
		n++
		query += fmt.Sprintf(", allowed_users = $%d", n)
		args = append(args, allowed)
	}
	if upd.Department != nil {
		n++
		query += fmt.Sprintf(", department = $%d", n)
		args = append(args, *upd.Department)
	}
	if upd.SharedDepartments != nil {
		shared, err := jsonList(upd.SharedDepartments)
		if err != nil {
			return nil, err
		}
		n++
		query += fmt.Sprintf(", shared_departments = $%d", n)
		args = append(args, shared)
	}
	query += ` WHERE id = $1 RETURNING ` + itemColumns

	return scanItem(r.db.QueryRowContext(ctx, query, args...))
}

// Delete removes an item by ID. It does not return an error if the row does
// not exist.
func (r *ItemPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM items WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

// DistinctDepartments lists the department values in use, excluding "none".
func (r *ItemPostgres) DistinctDepartments(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT department FROM items
		WHERE department IS NOT NULL AND department <> '' AND department <> 'none'
		ORDER BY department ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depts := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

func (r *ItemPostgres) queryItems(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
