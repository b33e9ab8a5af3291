package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/tabula"
)

// RecordRepository reads and writes rows of generated tables. It is fully
// data-driven: the table name and column values arrive at call time, no row
// type exists at compile time.
type RecordRepository struct {
	pool    schemaPool
	nowFunc func() time.Time
}

func NewRecordRepository(pool schemaPool) *RecordRepository {
	return &RecordRepository{pool: pool, nowFunc: time.Now}
}

// Insert writes one row. System columns uuid/created/updated are filled
// here; id is generated by the table's sequence and returned.
func (r *RecordRepository) Insert(ctx context.Context, table, tenantID, projectID string, columns map[string]any) (int64, error) {
	now := r.nowFunc().Unix()
	rowUUID, err := uuid.NewV7()
	if err != nil {
		return 0, tabula.NewInternalError("generating row uuid", err)
	}

	values := map[string]any{
		"uuid":       rowUUID.String(),
		"created":    now,
		"updated":    now,
		"tenant_id":  tenantID,
		"project_id": projectID,
	}
	for name, value := range columns {
		values[name] = value
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = sanitizeIdentifier(name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[name]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		sanitizeIdentifier(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var id int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, tabula.NewInternalError("inserting record", err)
	}
	EmitRecordWrite(ctx, table, 1)
	return id, nil
}

// Update rewrites the given columns of one row and bumps updated.
func (r *RecordRepository) Update(ctx context.Context, table string, id int64, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	set := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for i, name := range names {
		set = append(set, fmt.Sprintf("%s = $%d", sanitizeIdentifier(name), i+1))
		args = append(args, columns[name])
	}
	set = append(set, fmt.Sprintf("updated = $%d", len(names)+1))
	args = append(args, r.nowFunc().Unix())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		sanitizeIdentifier(table), strings.Join(set, ", "), len(names)+2)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return tabula.NewInternalError("updating record", err)
	}
	if tag.RowsAffected() == 0 {
		return tabula.NewTabulaError(tabula.ErrorTypeNotFound, tabula.ErrCodeRecordNotFound,
			fmt.Sprintf("record #%d not found in %s", id, table))
	}
	return nil
}

// Get loads one row by id. A missing row returns a not-found error.
func (r *RecordRepository) Get(ctx context.Context, table string, id int64) (tabula.Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", sanitizeIdentifier(table))
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, tabula.NewInternalError("loading record", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, tabula.NewTabulaError(tabula.ErrorTypeNotFound, tabula.ErrCodeRecordNotFound,
			fmt.Sprintf("record #%d not found in %s", id, table))
	}
	return records[0], nil
}

// GetByUUID loads one row by its stable uuid. A missing row returns a
// not-found error.
func (r *RecordRepository) GetByUUID(ctx context.Context, table, rowUUID string) (tabula.Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE uuid = $1", sanitizeIdentifier(table))
	rows, err := r.pool.Query(ctx, query, rowUUID)
	if err != nil {
		return nil, tabula.NewInternalError("loading record", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, tabula.NewTabulaError(tabula.ErrorTypeNotFound, tabula.ErrCodeRecordNotFound,
			fmt.Sprintf("record %s not found in %s", rowUUID, table))
	}
	return records[0], nil
}

// List pages rows of a tenant+project slice of the table, newest first.
func (r *RecordRepository) List(ctx context.Context, table, tenantID, projectID string, limit, offset int) ([]tabula.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE tenant_id = $1 AND project_id = $2 ORDER BY id DESC LIMIT $3 OFFSET $4",
		sanitizeIdentifier(table))
	rows, err := r.pool.Query(ctx, query, tenantID, projectID, limit, offset)
	if err != nil {
		return nil, tabula.NewInternalError("listing records", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the number of rows in a tenant+project slice.
func (r *RecordRepository) Count(ctx context.Context, table, tenantID, projectID string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND project_id = $2",
		sanitizeIdentifier(table))
	var count int64
	if err := r.pool.QueryRow(ctx, query, tenantID, projectID).Scan(&count); err != nil {
		return 0, tabula.NewInternalError("counting records", err)
	}
	return count, nil
}

// Delete removes one row by id.
func (r *RecordRepository) Delete(ctx context.Context, table string, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sanitizeIdentifier(table))
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return tabula.NewInternalError("deleting record", err)
	}
	if tag.RowsAffected() == 0 {
		return tabula.NewTabulaError(tabula.ErrorTypeNotFound, tabula.ErrCodeRecordNotFound,
			fmt.Sprintf("record #%d not found in %s", id, table))
	}
	return nil
}

// Search finds rows whose label column matches the query substring,
// case-insensitively, for autocomplete pickers.
func (r *RecordRepository) Search(ctx context.Context, table, labelColumn, query string, sortBy tabula.ReferenceSort, limit int) ([]tabula.Record, error) {
	orderBy := "id"
	if sortBy.Field != "" {
		orderBy = sanitizeIdentifier(sortBy.Field)
	}
	direction := "ASC"
	if sortBy.Direction == tabula.SortOrderDesc {
		direction = "DESC"
	}
	sql := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s ILIKE $1 ORDER BY %s %s LIMIT $2",
		sanitizeIdentifier(table), sanitizeIdentifier(labelColumn), orderBy, direction)
	rows, err := r.pool.Query(ctx, sql, "%"+query+"%", limit)
	if err != nil {
		return nil, tabula.NewInternalError("searching records", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// scanRecords materializes rows generically via the result's field
// descriptions, so no per-template row type is needed.
func scanRecords(rows pgx.Rows) ([]tabula.Record, error) {
	var out []tabula.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, tabula.NewInternalError("reading record values", err)
		}
		descs := rows.FieldDescriptions()
		record := make(tabula.Record, len(descs))
		for i, desc := range descs {
			record[desc.Name] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, tabula.NewInternalError("iterating records", err)
	}
	return out, nil
}

// normalizeValue converts driver-specific scan types into plain Go values.
// Integer and float widths are unified so serial (int4) ids and smallint
// booleans come back as the same types templates and callers work with.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
