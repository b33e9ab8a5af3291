package internal

import (
	"context"
	"fmt"

	"github.com/lychee-technology/tabula"
	"go.uber.org/zap"
)

// Engine implements tabula.TemplateEngine. Metadata validation always runs
// before DDL and blocks the mutation outright; schema work after a
// successful metadata write is best-effort and surfaces as warnings on the
// mutation result instead of failing it.
type Engine struct {
	registry  *tabula.Registry
	store     *Store
	compiler  *Compiler
	lifecycle *Lifecycle
	records   *RecordRepository
	resolver  *Resolver
}

func NewEngine(pool schemaPool, registry *tabula.Registry, cfg tabula.Config, builtin tabula.BuiltinEntityLookup) *Engine {
	compiler := NewCompiler(registry)
	store := NewStore(pool, registry, cfg.Tables, cfg.Identifier.MaxLength)
	records := NewRecordRepository(pool)
	return &Engine{
		registry:  registry,
		store:     store,
		compiler:  compiler,
		lifecycle: NewLifecycle(pool, compiler),
		records:   records,
		resolver:  NewResolver(store, records, builtin, cfg.Reference.SearchLimit),
	}
}

// Store exposes the metadata store for callers that only need reads.
func (e *Engine) Store() *Store { return e.store }

// Resolver exposes reference resolution for transport layers.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// ============================================================================
// Template CRUD
// ============================================================================

func (e *Engine) CreateTemplate(ctx context.Context, tpl *tabula.Template, fields []*tabula.Field) (*tabula.MutationResult, error) {
	if err := e.store.ValidateTemplate(tpl); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if err := e.store.ValidateField(field); err != nil {
			return nil, err
		}
		if _, dup := seen[field.Name]; dup {
			return nil, tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeDuplicateName,
				fmt.Sprintf("field '%s' appears more than once", field.Name)).WithField("name")
		}
		seen[field.Name] = struct{}{}
	}

	id, err := e.store.CreateTemplate(ctx, tpl)
	if err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: id}
	result.AddMessage("template '%s' created", tpl.TypeID())

	for _, field := range fields {
		if _, err := e.store.AddField(ctx, id, field); err != nil {
			result.OK = false
			result.AddWarning("field '%s' was not saved: %v", field.Name, err)
		}
	}

	sync, err := e.lifecycle.CreateTable(ctx, tpl, fields)
	result.Sync = sync
	if err != nil {
		result.OK = false
		result.AddWarning("table creation failed: %v", err)
		return result, nil
	}
	e.appendSyncWarnings(result, sync)
	return result, nil
}

// appendSyncWarnings surfaces failed column operations as mutation warnings,
// so callers see partial sync outcomes without inspecting the SyncResult.
func (e *Engine) appendSyncWarnings(result *tabula.MutationResult, sync *tabula.SyncResult) {
	for _, failed := range sync.Failed() {
		result.AddWarning("column '%s': %s failed: %s", failed.Column, failed.Op, failed.Err)
	}
}

func (e *Engine) UpdateTemplate(ctx context.Context, id int64, values map[string]any) (*tabula.MutationResult, error) {
	if err := e.store.UpdateTemplate(ctx, id, values); err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: id}
	result.AddMessage("template #%d updated", id)

	// Settings changes can toggle the title column, so reconverge.
	if _, changed := values["settings"]; changed {
		sync, err := e.syncByID(ctx, id)
		result.Sync = sync
		if err != nil {
			result.AddWarning("schema sync failed: %v", err)
		} else {
			e.appendSyncWarnings(result, sync)
		}
	}
	return result, nil
}

func (e *Engine) DeleteTemplate(ctx context.Context, id int64) (*tabula.MutationResult, error) {
	tpl, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: id}
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)

	// Advisory only. Deletion proceeds regardless.
	if count, err := e.lifecycle.RowCount(ctx, table); err == nil && count > 0 {
		result.AddWarning("table %s still holds %d record(s)", table, count)
	}
	if refs, err := e.store.ReferencingFields(ctx, tpl.TypeID()); err == nil && len(refs) > 0 {
		for _, ref := range refs {
			result.AddWarning("field '%s' on template #%d references this template", ref.Name, ref.TemplateID)
		}
	}

	if err := e.store.DeleteTemplate(ctx, id); err != nil {
		return nil, err
	}
	result.AddMessage("template '%s' deleted", tpl.TypeID())

	sync, err := e.lifecycle.DropTable(ctx, tpl)
	result.Sync = sync
	if err != nil {
		result.AddWarning("template deleted, but table drop failed, clean up manually: %v", err)
	}
	return result, nil
}

func (e *Engine) GetTemplate(ctx context.Context, id int64) (*tabula.Template, error) {
	return e.store.GetTemplate(ctx, id)
}

func (e *Engine) GetTemplateByName(ctx context.Context, tenantID, projectID, name string) (*tabula.Template, error) {
	return e.store.GetTemplateByName(ctx, tenantID, projectID, name)
}

func (e *Engine) ListTemplates(ctx context.Context, tenantID, projectID string) ([]*tabula.Template, error) {
	return e.store.ListTemplates(ctx, tenantID, projectID)
}

// ============================================================================
// Field CRUD
// ============================================================================

func (e *Engine) AddField(ctx context.Context, templateID int64, field *tabula.Field) (*tabula.MutationResult, error) {
	tpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	id, err := e.store.AddField(ctx, templateID, field)
	if err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: id}
	result.AddMessage("field '%s' added to template '%s'", field.Name, tpl.TypeID())

	sync, err := e.lifecycle.AddFieldColumns(ctx, tpl, field)
	result.Sync = sync
	if err != nil {
		result.AddWarning("field saved, but column creation failed: %v", err)
		return result, nil
	}
	e.appendSyncWarnings(result, sync)
	return result, nil
}

func (e *Engine) UpdateField(ctx context.Context, fieldID int64, values map[string]any) (*tabula.MutationResult, error) {
	field, err := e.store.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateField(ctx, fieldID, values); err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: fieldID}
	result.AddMessage("field '%s' updated", field.Name)

	// Type, settings or required changes alter the column layout; a full
	// table sync converges whatever the edit implied, including the rename
	// of a bare column that became composite.
	if changesSchema(values) {
		sync, err := e.syncByID(ctx, field.TemplateID)
		result.Sync = sync
		if err != nil {
			result.AddWarning("field updated, but schema sync failed: %v", err)
		} else {
			e.appendSyncWarnings(result, sync)
		}
	}
	return result, nil
}

func (e *Engine) DeleteField(ctx context.Context, fieldID int64) (*tabula.MutationResult, error) {
	field, err := e.store.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	tpl, err := e.store.GetTemplate(ctx, field.TemplateID)
	if err != nil {
		return nil, err
	}

	result := &tabula.MutationResult{OK: true, ID: fieldID}
	table := TableName(tpl.TenantID, tpl.ProjectID, tpl.Name)
	if count, err := e.lifecycle.RowCount(ctx, table); err == nil && count > 0 {
		result.AddWarning("table %s still holds %d record(s), column data will be lost", table, count)
	}

	if err := e.store.DeleteField(ctx, fieldID); err != nil {
		return nil, err
	}
	result.AddMessage("field '%s' deleted", field.Name)

	sync, err := e.lifecycle.DropFieldColumns(ctx, tpl, field)
	result.Sync = sync
	if err != nil {
		result.AddWarning("field deleted, but column drop failed, clean up manually: %v", err)
		return result, nil
	}
	e.appendSyncWarnings(result, sync)
	return result, nil
}

func (e *Engine) GetFields(ctx context.Context, templateID int64) ([]*tabula.Field, error) {
	return e.store.GetFields(ctx, templateID)
}

// ============================================================================
// Record operations
// ============================================================================

func (e *Engine) CreateRecord(ctx context.Context, tenantID, projectID, template string, values tabula.Record) (*tabula.Record, error) {
	tpl, fields, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, err
	}

	ve := tabula.NewValidationErrors()
	columns := make(map[string]any)

	if tpl.HasTitle() {
		title, _ := values["title"].(string)
		if title == "" {
			ve.Addf("title", "title is required")
		} else {
			columns["title"] = title
		}
	}

	for _, field := range fields {
		value, present := values[field.Name]
		if !present || value == nil {
			if field.Required {
				ve.Addf(field.Name, "value is required")
			}
			continue
		}
		if err := e.registry.Validate(field, value); err != nil {
			if te, ok := err.(*tabula.TabulaError); ok {
				ve.Add(te)
			} else {
				ve.Addf(field.Name, "%v", err)
			}
			continue
		}
		transformed, err := e.registry.Transform(field, value)
		if err != nil {
			ve.Addf(field.Name, "%v", err)
			continue
		}
		for suffix, colValue := range transformed {
			columns[field.Name+suffix] = colValue
		}
	}
	if err := ve.ToError(); err != nil {
		return nil, err
	}

	table := TableName(tenantID, projectID, tpl.Name)
	id, err := e.records.Insert(ctx, table, tenantID, projectID, columns)
	if err != nil {
		return nil, err
	}
	zap.S().Debugw("record created", "table", table, "id", id)
	return e.GetRecord(ctx, tenantID, projectID, template, id)
}

func (e *Engine) GetRecord(ctx context.Context, tenantID, projectID, template string, id int64) (*tabula.Record, error) {
	tpl, fields, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, err
	}

	table := TableName(tenantID, projectID, tpl.Name)
	raw, err := e.records.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}

	record := e.formatRecord(fields, raw)
	record = e.resolver.Resolve(ctx, tenantID, record, referenceFields(fields))
	return &record, nil
}

func (e *Engine) GetRecordByUUID(ctx context.Context, tenantID, projectID, template, rowUUID string) (*tabula.Record, error) {
	tpl, fields, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, err
	}

	table := TableName(tenantID, projectID, tpl.Name)
	raw, err := e.records.GetByUUID(ctx, table, rowUUID)
	if err != nil {
		return nil, err
	}

	record := e.formatRecord(fields, raw)
	record = e.resolver.Resolve(ctx, tenantID, record, referenceFields(fields))
	return &record, nil
}

func (e *Engine) ListRecords(ctx context.Context, tenantID, projectID, template string, limit, offset int) ([]*tabula.Record, error) {
	tpl, fields, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, err
	}

	table := TableName(tenantID, projectID, tpl.Name)
	raws, err := e.records.List(ctx, table, tenantID, projectID, limit, offset)
	if err != nil {
		return nil, err
	}

	refs := referenceFields(fields)
	out := make([]*tabula.Record, 0, len(raws))
	for _, raw := range raws {
		record := e.formatRecord(fields, raw)
		record = e.resolver.Resolve(ctx, tenantID, record, refs)
		out = append(out, &record)
	}
	return out, nil
}

func (e *Engine) DeleteRecord(ctx context.Context, tenantID, projectID, template string, id int64) error {
	tpl, _, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return err
	}
	table := TableName(tenantID, projectID, tpl.Name)
	return e.records.Delete(ctx, table, id)
}

// SearchReferenceTargets finds candidate targets for a reference field, for
// autocomplete pickers. The field's bundle restrictions and sort order apply.
func (e *Engine) SearchReferenceTargets(ctx context.Context, tenantID, projectID, template, fieldName, query string, limit int) ([]tabula.Record, error) {
	_, fields, err := e.templateWithFields(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, err
	}
	for _, field := range fields {
		if field.Name != fieldName {
			continue
		}
		if field.Type != "reference" {
			return nil, tabula.NewValidationError(fieldName,
				fmt.Sprintf("field '%s' is not a reference", fieldName))
		}
		desc := field.ReferenceDescriptor()
		return e.resolver.SearchReferenced(ctx, desc.TargetType, query, desc, tenantID, limit), nil
	}
	return nil, tabula.NewFieldNotFoundError(fieldName)
}

// ============================================================================
// Catalog and maintenance
// ============================================================================

func (e *Engine) FieldTypes() []tabula.TypeInfo {
	return e.registry.Types()
}

func (e *Engine) SyncTemplate(ctx context.Context, id int64) (*tabula.SyncResult, error) {
	return e.syncByID(ctx, id)
}

// ============================================================================
// Helpers
// ============================================================================

func (e *Engine) syncByID(ctx context.Context, templateID int64) (*tabula.SyncResult, error) {
	tpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	fields, err := e.store.GetFields(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return e.lifecycle.UpdateTable(ctx, tpl, fields)
}

func (e *Engine) templateWithFields(ctx context.Context, tenantID, projectID, template string) (*tabula.Template, []*tabula.Field, error) {
	tpl, err := e.store.GetTemplateByName(ctx, tenantID, projectID, template)
	if err != nil {
		return nil, nil, err
	}
	fields, err := e.store.GetFields(ctx, tpl.ID)
	if err != nil {
		return nil, nil, err
	}
	return tpl, fields, nil
}

// formatRecord renders a raw row into its logical shape: system columns
// pass through, each field's physical columns collapse back into one value
// through its type's formatter.
func (e *Engine) formatRecord(fields []*tabula.Field, raw tabula.Record) tabula.Record {
	record := make(tabula.Record)
	consumed := make(map[string]struct{})

	for _, field := range fields {
		compiled, err := e.compiler.CompileField(field)
		if err != nil {
			continue
		}
		columns := make(map[string]any, len(compiled))
		for _, spec := range compiled {
			columns[spec.Name[len(field.Name):]] = raw[spec.Name]
			consumed[spec.Name] = struct{}{}
		}
		value, err := e.registry.Format(field, columns, tabula.FormatModeDisplay)
		if err != nil {
			zap.S().Warnw("field format failed", "field", field.Name, "err", err)
			continue
		}
		record[field.Name] = value
	}

	for name, value := range raw {
		if _, ok := consumed[name]; !ok {
			record[name] = value
		}
	}
	return record
}

func referenceFields(fields []*tabula.Field) []*tabula.Field {
	var refs []*tabula.Field
	for _, field := range fields {
		if field.Type == "reference" {
			refs = append(refs, field)
		}
	}
	return refs
}

// changesSchema reports whether a field update touches anything that maps
// to physical columns.
func changesSchema(values map[string]any) bool {
	for _, key := range []string{"type", "settings", "required"} {
		if _, ok := values[key]; ok {
			return true
		}
	}
	return false
}
