package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/tabula"
	"go.uber.org/zap"
)

type schemaPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// liveColumn is one row of information_schema.columns for a generated table.
type liveColumn struct {
	Name      string
	DataType  string
	CharMax   int
	Precision int
	Scale     int
	NotNull   bool
	Default   string
}

// Lifecycle reconciles generated tables with their template definitions.
// Column operations are best-effort: each ADD/ALTER/DROP/RENAME is attempted
// independently and its outcome recorded, so one failure never aborts the
// rest of a sync.
type Lifecycle struct {
	pool     schemaPool
	compiler *Compiler
}

func NewLifecycle(pool schemaPool, compiler *Compiler) *Lifecycle {
	return &Lifecycle{pool: pool, compiler: compiler}
}

// CreateTable builds the generated table for a template. An existing table
// is a success, not a conflict; callers converge through UpdateTable.
func (l *Lifecycle) CreateTable(ctx context.Context, tpl *tabula.Template, fields []*tabula.Field) (*tabula.SyncResult, error) {
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)
	result := &tabula.SyncResult{Table: table}

	exists, err := l.tableExists(ctx, table)
	if err != nil {
		return nil, tabula.NewInternalError("checking table existence", err)
	}
	if exists {
		zap.S().Debugw("table already exists, skipping create", "table", table)
		result.Append(table, tabula.SyncOpNone, nil)
		return result, nil
	}

	cols, err := l.compiler.DesiredColumns(tpl, fields)
	if err != nil {
		return nil, err
	}

	defs := make([]string, 0, len(cols))
	for _, spec := range cols {
		defs = append(defs, ColumnDDL(spec))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", sanitizeIdentifier(table), strings.Join(defs, ", "))

	if _, err := l.pool.Exec(ctx, ddl); err != nil {
		result.Append(table, tabula.SyncOpCreateTable, err)
		return result, tabula.NewTabulaError(tabula.ErrorTypeSchemaSync, tabula.ErrCodeTableSyncFailed,
			fmt.Sprintf("creating table %s", table)).WithCause(err)
	}

	result.Append(table, tabula.SyncOpCreateTable, nil)
	zap.S().Infow("created table", "table", table, "columns", len(cols))
	return result, nil
}

// UpdateTable diffs the live table against the compiled target column set
// and applies per-column DDL to converge. When the table is missing it is
// created outright. Concurrent syncs of the same table are serialized by a
// transaction-scoped advisory lock keyed on the table name.
func (l *Lifecycle) UpdateTable(ctx context.Context, tpl *tabula.Template, fields []*tabula.Field) (*tabula.SyncResult, error) {
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)

	exists, err := l.tableExists(ctx, table)
	if err != nil {
		return nil, tabula.NewInternalError("checking table existence", err)
	}
	if !exists {
		return l.CreateTable(ctx, tpl, fields)
	}

	desired, err := l.compiler.DesiredColumns(tpl, fields)
	if err != nil {
		return nil, err
	}

	result := &tabula.SyncResult{Table: table}
	start := time.Now()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, tabula.NewInternalError("beginning schema sync transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", table); err != nil {
		return nil, tabula.NewInternalError("acquiring schema sync lock", err)
	}

	live, err := l.liveColumns(ctx, tx, table)
	if err != nil {
		return nil, tabula.NewInternalError("reading live columns", err)
	}

	l.syncColumns(ctx, tx, table, desired, live, result)

	if err := tx.Commit(ctx); err != nil {
		return nil, tabula.NewInternalError("committing schema sync", err)
	}

	EmitSyncLatency(ctx, table, time.Since(start).Milliseconds())
	for _, outcome := range result.Outcomes {
		if outcome.Op == tabula.SyncOpNone {
			continue
		}
		EmitSyncOutcome(ctx, table, string(outcome.Op), outcome.Failed())
	}

	if !result.OK() {
		zap.S().Warnw("table sync finished with failures",
			"table", table, "failed", len(result.Failed()), "changed", result.Changed())
	} else if result.Changed() > 0 {
		zap.S().Infow("table synced", "table", table, "changed", result.Changed())
	}
	return result, nil
}

// DropTable removes a template's generated table. A missing table is a
// success.
func (l *Lifecycle) DropTable(ctx context.Context, tpl *tabula.Template) (*tabula.SyncResult, error) {
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)
	result := &tabula.SyncResult{Table: table}

	ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s", sanitizeIdentifier(table))
	if _, err := l.pool.Exec(ctx, ddl); err != nil {
		result.Append(table, tabula.SyncOpDropTable, err)
		return result, tabula.NewTabulaError(tabula.ErrorTypeSchemaSync, tabula.ErrCodeTableSyncFailed,
			fmt.Sprintf("dropping table %s", table)).WithCause(err)
	}
	result.Append(table, tabula.SyncOpDropTable, nil)
	zap.S().Infow("dropped table", "table", table)
	return result, nil
}

// AddFieldColumns adds one field's columns to an existing table.
func (l *Lifecycle) AddFieldColumns(ctx context.Context, tpl *tabula.Template, field *tabula.Field) (*tabula.SyncResult, error) {
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)
	result := &tabula.SyncResult{Table: table}

	compiled, err := l.compiler.CompileField(field)
	if err != nil {
		return nil, err
	}
	for _, spec := range compiled {
		err := l.addColumn(ctx, l.pool, table, spec)
		result.Append(spec.Name, tabula.SyncOpAdd, err)
		if err != nil {
			zap.S().Warnw("add column failed", "table", table, "column", spec.Name, "err", err)
		}
	}
	return result, nil
}

// DropFieldColumns drops one field's columns from an existing table.
func (l *Lifecycle) DropFieldColumns(ctx context.Context, tpl *tabula.Template, field *tabula.Field) (*tabula.SyncResult, error) {
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)
	result := &tabula.SyncResult{Table: table}

	names, err := l.compiler.FieldColumnNames(field)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
			sanitizeIdentifier(table), sanitizeIdentifier(name))
		_, err := l.pool.Exec(ctx, ddl)
		result.Append(name, tabula.SyncOpDrop, err)
		if err != nil {
			zap.S().Warnw("drop column failed", "table", table, "column", name, "err", err)
		}
	}
	return result, nil
}

// RowCount returns the number of rows in a generated table, for advisory
// warnings before destructive operations.
func (l *Lifecycle) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", sanitizeIdentifier(table))
	if err := l.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (l *Lifecycle) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

func (l *Lifecycle) liveColumns(ctx context.Context, q querier, table string) (map[string]liveColumn, error) {
	rows, err := q.Query(ctx,
		`SELECT column_name, data_type,
		        COALESCE(character_maximum_length, 0),
		        COALESCE(numeric_precision, 0),
		        COALESCE(numeric_scale, 0),
		        is_nullable,
		        COALESCE(column_default, '')
		 FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	live := make(map[string]liveColumn)
	for rows.Next() {
		var col liveColumn
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &col.CharMax, &col.Precision, &col.Scale, &nullable, &col.Default); err != nil {
			return nil, err
		}
		col.NotNull = nullable == "NO"
		live[col.Name] = col
	}
	return live, rows.Err()
}

// syncColumns applies the diff between desired and live column sets. Three
// passes: rename legacy bare columns that a composite field superseded, add
// or modify desired columns, then drop live columns nothing owns anymore.
func (l *Lifecycle) syncColumns(ctx context.Context, tx pgx.Tx, table string, desired []tabula.ColumnSpec, live map[string]liveColumn, result *tabula.SyncResult) {
	desiredByName := make(map[string]tabula.ColumnSpec, len(desired))
	compositeBases := make(map[string]struct{})
	for _, spec := range desired {
		desiredByName[spec.Name] = spec
		if base, ok := splitCompositeSuffix(spec.Name); ok {
			compositeBases[base] = struct{}{}
		}
	}

	// A field that used to be single-column and is now composite leaves a
	// bare {name} column behind while the target wants {name}__value.
	// Renaming instead of drop-and-add keeps the stored data.
	for _, spec := range desired {
		if !strings.HasSuffix(spec.Name, tabula.SuffixValue) {
			continue
		}
		if _, present := live[spec.Name]; present {
			continue
		}
		base := strings.TrimSuffix(spec.Name, tabula.SuffixValue)
		old, present := live[base]
		if !present {
			continue
		}
		if _, baseStillDesired := desiredByName[base]; baseStillDesired {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			sanitizeIdentifier(table), sanitizeIdentifier(base), sanitizeIdentifier(spec.Name))
		_, err := tx.Exec(ctx, ddl)
		result.Append(spec.Name, tabula.SyncOpRename, err)
		if err != nil {
			zap.S().Warnw("rename column failed", "table", table, "from", base, "to", spec.Name, "err", err)
			continue
		}
		live[spec.Name] = liveColumn{Name: spec.Name, DataType: old.DataType, CharMax: old.CharMax, NotNull: old.NotNull, Default: old.Default}
		delete(live, base)
	}

	for _, spec := range desired {
		current, present := live[spec.Name]
		if !present {
			err := l.addColumn(ctx, tx, table, spec)
			result.Append(spec.Name, tabula.SyncOpAdd, err)
			if err != nil {
				zap.S().Warnw("add column failed", "table", table, "column", spec.Name, "err", err)
			}
			continue
		}
		if l.columnMatches(spec, current) {
			result.Append(spec.Name, tabula.SyncOpNone, nil)
			continue
		}
		err := l.modifyColumn(ctx, tx, table, spec, current)
		result.Append(spec.Name, tabula.SyncOpModify, err)
		if err != nil {
			zap.S().Warnw("modify column failed", "table", table, "column", spec.Name, "err", err)
		}
	}

	for name := range live {
		if _, wanted := desiredByName[name]; wanted {
			continue
		}
		// A composite field that changed shape (text to url) leaves its old
		// suffix columns live while new suffixes are desired. Keep them so
		// half of a composite field is never deleted mid-migration.
		if base, ok := splitCompositeSuffix(name); ok {
			if _, stillComposite := compositeBases[base]; stillComposite {
				result.Append(name, tabula.SyncOpNone, nil)
				continue
			}
		}
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
			sanitizeIdentifier(table), sanitizeIdentifier(name))
		_, err := tx.Exec(ctx, ddl)
		result.Append(name, tabula.SyncOpDrop, err)
		if err != nil {
			zap.S().Warnw("drop column failed", "table", table, "column", name, "err", err)
		}
	}
}

func (l *Lifecycle) addColumn(ctx context.Context, ex execer, table string, spec tabula.ColumnSpec) error {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s",
		sanitizeIdentifier(table), ColumnDDL(spec))
	_, err := ex.Exec(ctx, ddl)
	return err
}

// columnMatches compares a compiled spec against a live column. Serial
// columns report as integer with a sequence default, so type alone decides.
func (l *Lifecycle) columnMatches(spec tabula.ColumnSpec, live liveColumn) bool {
	if dataTypeName(spec.Storage) != live.DataType {
		return false
	}
	if spec.Storage == tabula.StorageVarchar {
		size := spec.Size
		if size <= 0 {
			size = tabula.DefaultStringMaxLength
		}
		if size != live.CharMax {
			return false
		}
	}
	if spec.Storage == tabula.StorageNumeric {
		if spec.Precision != live.Precision || spec.Scale != live.Scale {
			return false
		}
	}
	if spec.Storage != tabula.StorageSerial && spec.NotNull != live.NotNull {
		return false
	}
	if spec.Storage != tabula.StorageSerial && normalizeColumnDefault(live.Default) != spec.Default {
		return false
	}
	return true
}

// normalizeColumnDefault strips the cast Postgres appends to reported
// defaults ("'x'::character varying" reads back as "'x'"), so live defaults
// compare against the literals specs carry. Serial sequence defaults are
// never compared.
func normalizeColumnDefault(def string) string {
	if i := strings.Index(def, "::"); i >= 0 {
		return def[:i]
	}
	return def
}

func (l *Lifecycle) modifyColumn(ctx context.Context, ex execer, table string, spec tabula.ColumnSpec, live liveColumn) error {
	tbl := sanitizeIdentifier(table)
	col := sanitizeIdentifier(spec.Name)

	if dataTypeName(spec.Storage) != live.DataType ||
		spec.Storage == tabula.StorageVarchar || spec.Storage == tabula.StorageNumeric {
		ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			tbl, col, storageSQL(spec), col, storageSQL(spec))
		if _, err := ex.Exec(ctx, ddl); err != nil {
			return err
		}
	}

	if spec.NotNull != live.NotNull {
		action := "DROP NOT NULL"
		if spec.NotNull {
			action = "SET NOT NULL"
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", tbl, col, action)
		if _, err := ex.Exec(ctx, ddl); err != nil {
			return err
		}
	}

	if normalizeColumnDefault(live.Default) != spec.Default {
		action := "DROP DEFAULT"
		if spec.Default != "" {
			action = "SET DEFAULT " + spec.Default
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", tbl, col, action)
		if _, err := ex.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
