package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/tabula"
	"go.uber.org/zap"
)

// Store persists template and field metadata and enforces every naming rule
// before a mutation reaches the table lifecycle. Reads go through a
// process-local cache invalidated on writes.
type Store struct {
	pool     schemaPool
	registry *tabula.Registry
	tables   tabula.TableNames
	ceiling  int
	nowFunc  func() time.Time

	mu      sync.RWMutex
	byID    map[int64]*tabula.Template
	byTID   map[string]*tabula.Template
}

func NewStore(pool schemaPool, registry *tabula.Registry, tables tabula.TableNames, identifierCeiling int) *Store {
	return &Store{
		pool:     pool,
		registry: registry,
		tables:   tables,
		ceiling:  identifierCeiling,
		nowFunc:  time.Now,
		byID:     make(map[int64]*tabula.Template),
		byTID:    make(map[string]*tabula.Template),
	}
}

func (s *Store) now() int64 {
	return s.nowFunc().Unix()
}

// ============================================================================
// Validation
// ============================================================================

// ValidateTemplate checks a template definition before any DDL runs.
func (s *Store) ValidateTemplate(tpl *tabula.Template) error {
	ve := tabula.NewValidationErrors()

	if tpl.TenantID == "" || !tabula.ValidNamePattern(tpl.TenantID) {
		ve.Addf("tenant_id", "tenant id must match ^[a-z0-9_]+$")
	}
	if tpl.ProjectID == "" || !tabula.ValidNamePattern(tpl.ProjectID) {
		ve.Addf("project_id", "project id must match ^[a-z0-9_]+$")
	}

	s.validateName(ve, "name", tpl.Name)
	if ve.HasErrors() {
		return ve.ToError()
	}

	if max := MaxNameLength(s.ceiling, tpl.TenantID, tpl.ProjectID); len(tpl.Name) > max {
		ve.Addf("name", "name exceeds maximum length of %d characters for tenant '%s' project '%s'",
			max, tpl.TenantID, tpl.ProjectID)
	}
	return ve.ToError()
}

// ValidateField checks a field definition, including type membership.
func (s *Store) ValidateField(field *tabula.Field) error {
	ve := tabula.NewValidationErrors()

	s.validateName(ve, "name", field.Name)
	if !s.registry.Has(field.Type) {
		ve.Add(tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeUnknownFieldType,
			fmt.Sprintf("unknown field type '%s'", field.Type)).WithField(field.Name))
	}
	return ve.ToError()
}

func (s *Store) validateName(ve *tabula.ValidationErrors, key, name string) {
	if name == "" {
		ve.Addf(key, "name must not be empty")
		return
	}
	if !tabula.ValidNamePattern(name) {
		ve.Add(tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeInvalidName,
			fmt.Sprintf("name '%s' must contain only lowercase letters, digits and underscores", name)).WithField(key))
	}
	if tabula.IsReservedName(name) {
		ve.Add(tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeReservedName,
			fmt.Sprintf("name '%s' is reserved", name)).WithField(key))
	}
}

// ============================================================================
// Template CRUD
// ============================================================================

func (s *Store) CreateTemplate(ctx context.Context, tpl *tabula.Template) (int64, error) {
	if err := s.ValidateTemplate(tpl); err != nil {
		return 0, err
	}

	existing, err := s.GetTemplateByName(ctx, tpl.TenantID, tpl.ProjectID, tpl.Name)
	if err != nil && !tabula.IsNotFoundError(err) {
		return 0, err
	}
	if existing != nil {
		return 0, tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeDuplicateName,
			fmt.Sprintf("template '%s' already exists in tenant '%s' project '%s'",
				tpl.Name, tpl.TenantID, tpl.ProjectID)).WithField("name")
	}

	if tpl.Status == "" {
		tpl.Status = tabula.TemplateStatusActive
	}
	settings, err := encodeSettings(tpl.Settings)
	if err != nil {
		return 0, err
	}
	now := s.now()

	query := fmt.Sprintf(
		`INSERT INTO %s (tenant_id, project_id, name, label, description, settings, status, created, updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		sanitizeIdentifier(s.tables.TemplateRegistry))

	var id int64
	err = s.pool.QueryRow(ctx, query,
		tpl.TenantID, tpl.ProjectID, tpl.Name, tpl.Label, tpl.Description,
		settings, string(tpl.Status), now).Scan(&id)
	if err != nil {
		return 0, tabula.NewInternalError("inserting template", err)
	}

	tpl.ID = id
	tpl.Created = now
	tpl.Updated = now
	s.invalidate(tpl)
	zap.S().Infow("template created", "id", id, "typeID", tpl.TypeID())
	return id, nil
}

// mutableTemplateColumns are the columns UpdateTemplate accepts. Name and
// tenancy are immutable; a rename would orphan the generated table.
var mutableTemplateColumns = map[string]struct{}{
	"label": {}, "description": {}, "settings": {}, "status": {},
}

func (s *Store) UpdateTemplate(ctx context.Context, id int64, values map[string]any) error {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	set := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+2)
	i := 1
	for key, value := range values {
		if _, ok := mutableTemplateColumns[key]; !ok {
			return tabula.NewValidationError(key, "column is not updatable")
		}
		if key == "settings" {
			encoded, err := encodeSettingsValue(value)
			if err != nil {
				return err
			}
			value = encoded
		}
		set = append(set, fmt.Sprintf("%s = $%d", key, i))
		args = append(args, value)
		i++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated = $%d", i))
	args = append(args, s.now())
	i++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		sanitizeIdentifier(s.tables.TemplateRegistry), strings.Join(set, ", "), i)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return tabula.NewInternalError("updating template", err)
	}
	s.invalidate(tpl)
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	fieldsQuery := fmt.Sprintf("DELETE FROM %s WHERE template_id = $1",
		sanitizeIdentifier(s.tables.TemplateFields))
	if _, err := s.pool.Exec(ctx, fieldsQuery, id); err != nil {
		return tabula.NewInternalError("deleting template fields", err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1",
		sanitizeIdentifier(s.tables.TemplateRegistry))
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return tabula.NewInternalError("deleting template", err)
	}

	s.invalidate(tpl)
	zap.S().Infow("template deleted", "id", id, "typeID", tpl.TypeID())
	return nil
}

const templateColumns = "id, tenant_id, project_id, name, label, description, settings, status, created, updated"

func (s *Store) GetTemplate(ctx context.Context, id int64) (*tabula.Template, error) {
	s.mu.RLock()
	if tpl, ok := s.byID[id]; ok {
		s.mu.RUnlock()
		return tpl, nil
	}
	s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		templateColumns, sanitizeIdentifier(s.tables.TemplateRegistry))
	tpl, err := s.scanTemplate(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tabula.NewTemplateNotFoundError(fmt.Sprintf("#%d", id))
		}
		return nil, tabula.NewInternalError("loading template", err)
	}
	s.remember(tpl)
	return tpl, nil
}

func (s *Store) GetTemplateByName(ctx context.Context, tenantID, projectID, name string) (*tabula.Template, error) {
	typeID := fmt.Sprintf("%s_%s_%s", tenantID, projectID, name)
	s.mu.RLock()
	if tpl, ok := s.byTID[typeID]; ok {
		s.mu.RUnlock()
		return tpl, nil
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE tenant_id = $1 AND project_id = $2 AND name = $3",
		templateColumns, sanitizeIdentifier(s.tables.TemplateRegistry))
	tpl, err := s.scanTemplate(s.pool.QueryRow(ctx, query, tenantID, projectID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tabula.NewTemplateNotFoundError(typeID)
		}
		return nil, tabula.NewInternalError("loading template", err)
	}
	s.remember(tpl)
	return tpl, nil
}

// GetTemplateByTypeID resolves a combined tenant_project_name identifier,
// used by the reference resolver's dynamic-entity dispatch.
func (s *Store) GetTemplateByTypeID(ctx context.Context, typeID string) (*tabula.Template, error) {
	s.mu.RLock()
	if tpl, ok := s.byTID[typeID]; ok {
		s.mu.RUnlock()
		return tpl, nil
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE tenant_id || '_' || project_id || '_' || name = $1",
		templateColumns, sanitizeIdentifier(s.tables.TemplateRegistry))
	tpl, err := s.scanTemplate(s.pool.QueryRow(ctx, query, typeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tabula.NewTemplateNotFoundError(typeID)
		}
		return nil, tabula.NewInternalError("loading template", err)
	}
	s.remember(tpl)
	return tpl, nil
}

func (s *Store) ListTemplates(ctx context.Context, tenantID, projectID string) ([]*tabula.Template, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE tenant_id = $1 AND project_id = $2 ORDER BY name",
		templateColumns, sanitizeIdentifier(s.tables.TemplateRegistry))
	rows, err := s.pool.Query(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, tabula.NewInternalError("listing templates", err)
	}
	defer rows.Close()

	var out []*tabula.Template
	for rows.Next() {
		tpl, err := s.scanTemplate(rows)
		if err != nil {
			return nil, tabula.NewInternalError("scanning template", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// ============================================================================
// Field CRUD
// ============================================================================

func (s *Store) AddField(ctx context.Context, templateID int64, field *tabula.Field) (int64, error) {
	if _, err := s.GetTemplate(ctx, templateID); err != nil {
		return 0, err
	}
	if err := s.ValidateField(field); err != nil {
		return 0, err
	}

	existing, err := s.GetFields(ctx, templateID)
	if err != nil {
		return 0, err
	}
	for _, f := range existing {
		if f.Name == field.Name {
			return 0, tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeDuplicateName,
				fmt.Sprintf("field '%s' already exists on this template", field.Name)).WithField("name")
		}
	}

	if field.Settings == nil {
		if ft, err := s.registry.Get(field.Type); err == nil {
			field.Settings = ft.DefaultSettings()
		}
	}
	settings, err := encodeSettings(field.Settings)
	if err != nil {
		return 0, err
	}
	now := s.now()

	query := fmt.Sprintf(
		`INSERT INTO %s (template_id, name, label, type, description, required, weight, settings, created, updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		sanitizeIdentifier(s.tables.TemplateFields))

	var id int64
	err = s.pool.QueryRow(ctx, query,
		templateID, field.Name, field.Label, field.Type, field.Description,
		field.Required, field.Weight, settings, now).Scan(&id)
	if err != nil {
		return 0, tabula.NewInternalError("inserting field", err)
	}

	field.ID = id
	field.TemplateID = templateID
	field.Created = now
	field.Updated = now
	zap.S().Infow("field created", "id", id, "templateID", templateID, "name", field.Name, "type", field.Type)
	return id, nil
}

// mutableFieldColumns: name and type changes flow through here as well, the
// engine decides what schema work they imply.
var mutableFieldColumns = map[string]struct{}{
	"label": {}, "description": {}, "required": {}, "weight": {}, "settings": {}, "type": {},
}

func (s *Store) UpdateField(ctx context.Context, fieldID int64, values map[string]any) error {
	if _, err := s.GetField(ctx, fieldID); err != nil {
		return err
	}

	set := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+2)
	i := 1
	for key, value := range values {
		if _, ok := mutableFieldColumns[key]; !ok {
			return tabula.NewValidationError(key, "column is not updatable")
		}
		if key == "type" {
			if t, ok := value.(string); !ok || !s.registry.Has(t) {
				return tabula.NewTabulaError(tabula.ErrorTypeValidation, tabula.ErrCodeUnknownFieldType,
					fmt.Sprintf("unknown field type '%v'", value))
			}
		}
		if key == "settings" {
			encoded, err := encodeSettingsValue(value)
			if err != nil {
				return err
			}
			value = encoded
		}
		set = append(set, fmt.Sprintf("%s = $%d", key, i))
		args = append(args, value)
		i++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated = $%d", i))
	args = append(args, s.now())
	i++
	args = append(args, fieldID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		sanitizeIdentifier(s.tables.TemplateFields), strings.Join(set, ", "), i)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return tabula.NewInternalError("updating field", err)
	}
	return nil
}

func (s *Store) DeleteField(ctx context.Context, fieldID int64) error {
	if _, err := s.GetField(ctx, fieldID); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1",
		sanitizeIdentifier(s.tables.TemplateFields))
	if _, err := s.pool.Exec(ctx, query, fieldID); err != nil {
		return tabula.NewInternalError("deleting field", err)
	}
	zap.S().Infow("field deleted", "id", fieldID)
	return nil
}

const fieldColumns = "id, template_id, name, label, type, description, required, weight, settings, created, updated"

func (s *Store) GetField(ctx context.Context, fieldID int64) (*tabula.Field, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		fieldColumns, sanitizeIdentifier(s.tables.TemplateFields))
	field, err := s.scanField(s.pool.QueryRow(ctx, query, fieldID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tabula.NewFieldNotFoundError(fmt.Sprintf("#%d", fieldID))
		}
		return nil, tabula.NewInternalError("loading field", err)
	}
	return field, nil
}

func (s *Store) GetFields(ctx context.Context, templateID int64) ([]*tabula.Field, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE template_id = $1 ORDER BY weight, name",
		fieldColumns, sanitizeIdentifier(s.tables.TemplateFields))
	rows, err := s.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, tabula.NewInternalError("listing fields", err)
	}
	defer rows.Close()

	var out []*tabula.Field
	for rows.Next() {
		field, err := s.scanField(rows)
		if err != nil {
			return nil, tabula.NewInternalError("scanning field", err)
		}
		out = append(out, field)
	}
	return out, rows.Err()
}

// ReferencingFields finds reference fields across all templates whose
// target_type points at typeID. Used for advisory warnings before deletes.
func (s *Store) ReferencingFields(ctx context.Context, typeID string) ([]*tabula.Field, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE type = 'reference' AND settings->>'target_type' = $1",
		fieldColumns, sanitizeIdentifier(s.tables.TemplateFields))
	rows, err := s.pool.Query(ctx, query, typeID)
	if err != nil {
		return nil, tabula.NewInternalError("scanning referencing fields", err)
	}
	defer rows.Close()

	var out []*tabula.Field
	for rows.Next() {
		field, err := s.scanField(rows)
		if err != nil {
			return nil, tabula.NewInternalError("scanning field", err)
		}
		out = append(out, field)
	}
	return out, rows.Err()
}

// ============================================================================
// Scanning and cache
// ============================================================================

func (s *Store) scanTemplate(row pgx.Row) (*tabula.Template, error) {
	var tpl tabula.Template
	var settings []byte
	var status string
	err := row.Scan(&tpl.ID, &tpl.TenantID, &tpl.ProjectID, &tpl.Name, &tpl.Label,
		&tpl.Description, &settings, &status, &tpl.Created, &tpl.Updated)
	if err != nil {
		return nil, err
	}
	tpl.Status = tabula.TemplateStatus(status)
	tpl.Settings, err = decodeSettings(settings)
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *Store) scanField(row pgx.Row) (*tabula.Field, error) {
	var field tabula.Field
	var settings []byte
	err := row.Scan(&field.ID, &field.TemplateID, &field.Name, &field.Label, &field.Type,
		&field.Description, &field.Required, &field.Weight, &settings, &field.Created, &field.Updated)
	if err != nil {
		return nil, err
	}
	field.Settings, err = decodeSettings(settings)
	if err != nil {
		return nil, err
	}
	return &field, nil
}

func (s *Store) remember(tpl *tabula.Template) {
	s.mu.Lock()
	s.byID[tpl.ID] = tpl
	s.byTID[tpl.TypeID()] = tpl
	s.mu.Unlock()
}

func (s *Store) invalidate(tpl *tabula.Template) {
	s.mu.Lock()
	delete(s.byID, tpl.ID)
	delete(s.byTID, tpl.TypeID())
	s.mu.Unlock()
}

func encodeSettings(settings tabula.FieldSettings) ([]byte, error) {
	if settings == nil {
		settings = tabula.FieldSettings{}
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return nil, tabula.NewInternalError("encoding settings", err)
	}
	return encoded, nil
}

func encodeSettingsValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case tabula.FieldSettings:
		return encodeSettings(v)
	case map[string]any:
		return encodeSettings(tabula.FieldSettings(v))
	case string:
		if !json.Valid([]byte(v)) {
			return nil, tabula.NewValidationError("settings", "settings must be valid JSON")
		}
		return []byte(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, tabula.NewValidationError("settings", "settings must be valid JSON")
		}
		return v, nil
	default:
		return nil, tabula.NewValidationError("settings", "settings must be a JSON object")
	}
}

func decodeSettings(raw []byte) (tabula.FieldSettings, error) {
	if len(raw) == 0 {
		return tabula.FieldSettings{}, nil
	}
	var settings tabula.FieldSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, tabula.NewInternalError("decoding settings", err)
	}
	return settings, nil
}

