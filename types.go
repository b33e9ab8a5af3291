package tabula

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TemplateStatus marks whether a template's generated table accepts writes.
type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusDisabled TemplateStatus = "disabled"
)

// Template is a tenant-authored definition of a dynamic entity type. Its name,
// combined with the tenant and project identifiers, determines the physical
// table backing it.
type Template struct {
	ID          int64          `json:"id"`
	TenantID    string         `json:"tenant_id"`
	ProjectID   string         `json:"project_id"`
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Settings    FieldSettings  `json:"settings,omitempty"`
	Status      TemplateStatus `json:"status"`
	Created     int64          `json:"created"`
	Updated     int64          `json:"updated"`
}

// TypeID returns the platform-wide type identifier for the template,
// which doubles as the generated table name.
func (t Template) TypeID() string {
	return t.TenantID + "_" + t.ProjectID + "_" + t.Name
}

// HasTitle reports whether the template declares a title column.
func (t Template) HasTitle() bool {
	return t.Settings.Bool("has_title", false)
}

// Field is one typed attribute of a Template.
type Field struct {
	ID          int64         `json:"id"`
	TemplateID  int64         `json:"template_id"`
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Weight      int           `json:"weight"`
	Settings    FieldSettings `json:"settings,omitempty"`
	Created     int64         `json:"created"`
	Updated     int64         `json:"updated"`
}

// ReferenceDescriptor returns the reference semantics derived from the field's
// settings. Meaningful only for reference-typed fields; zero values otherwise.
func (f Field) ReferenceDescriptor() ReferenceDescriptor {
	desc := ReferenceDescriptor{
		TargetType:    f.Settings.String("target_type", ""),
		TargetBundles: f.Settings.StringSlice("target_bundles"),
		Multiple:      f.Settings.Bool("multiple", false),
		AutoCreate:    f.Settings.Bool("auto_create", false),
	}
	if sort, ok := f.Settings["sort"].(map[string]any); ok {
		if field, ok := sort["field"].(string); ok {
			desc.Sort.Field = field
		}
		if dir, ok := sort["direction"].(string); ok {
			desc.Sort.Direction = SortOrder(dir)
		}
	}
	return desc
}

// FieldSettings is the type-specific settings bag attached to templates and
// fields. It persists as a single JSONB document.
type FieldSettings map[string]any

// String returns the string value at key, or def when absent or mistyped.
func (s FieldSettings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value at key, tolerating the float64 that
// encoding/json produces for numbers.
func (s FieldSettings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Float returns the float value at key, or def.
func (s FieldSettings) Float(key string, def float64) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the boolean value at key, or def.
func (s FieldSettings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// StringSlice returns the list of strings at key, or nil.
func (s FieldSettings) StringSlice(key string) []string {
	raw, ok := s[key].([]any)
	if !ok {
		if direct, ok := s[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// StringMap returns the key->label map at key (used for allowed_values), or nil.
func (s FieldSettings) StringMap(key string) map[string]string {
	raw, ok := s[key].(map[string]any)
	if !ok {
		if direct, ok := s[key].(map[string]string); ok {
			return direct
		}
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// ColumnStorage is the physical storage kind of a generated column.
type ColumnStorage string

const (
	StorageVarchar  ColumnStorage = "varchar"
	StorageText     ColumnStorage = "text"
	StorageSmallInt ColumnStorage = "smallint"
	StorageInteger  ColumnStorage = "integer"
	StorageBigInt   ColumnStorage = "bigint"
	StorageDouble   ColumnStorage = "double precision"
	StorageNumeric  ColumnStorage = "numeric"
	StorageJSONB    ColumnStorage = "jsonb"
	StorageUUID     ColumnStorage = "uuid"
	StorageSerial   ColumnStorage = "serial"
)

// ColumnSpec is one physical column derived from a field (or a system column).
// The compiler is the only producer; table creation and schema diffing both
// consume exactly this shape.
type ColumnSpec struct {
	Name       string        `json:"name"`
	Storage    ColumnStorage `json:"storage"`
	Size       int           `json:"size,omitempty"`
	Precision  int           `json:"precision,omitempty"`
	Scale      int           `json:"scale,omitempty"`
	NotNull    bool          `json:"not_null"`
	Default    string        `json:"default,omitempty"` // SQL literal, empty for none
	Unique     bool          `json:"unique,omitempty"`
	PrimaryKey bool          `json:"primary_key,omitempty"`
}

// SortOrder defines sort direction.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// ReferenceDescriptor captures the semantics of a reference-typed field,
// computed on demand from its settings.
type ReferenceDescriptor struct {
	TargetType    string        `json:"target_type"`
	TargetBundles []string      `json:"target_bundles,omitempty"`
	Multiple      bool          `json:"multiple"`
	Sort          ReferenceSort `json:"sort,omitempty"`
	AutoCreate    bool          `json:"auto_create"`
}

// ReferenceSort orders reference search results.
type ReferenceSort struct {
	Field     string    `json:"field,omitempty"`
	Direction SortOrder `json:"direction,omitempty"`
}

// AllowsBundle reports whether the descriptor permits targets of the given
// bundle. An empty allow-list permits everything.
func (d ReferenceDescriptor) AllowsBundle(bundle string) bool {
	if len(d.TargetBundles) == 0 {
		return true
	}
	for _, b := range d.TargetBundles {
		if b == bundle {
			return true
		}
	}
	return false
}

// Record is one row of a generated table, keyed by column name.
type Record map[string]any

// SyncOp enumerates the column operations a table sync can perform.
type SyncOp string

const (
	SyncOpCreateTable SyncOp = "create_table"
	SyncOpDropTable   SyncOp = "drop_table"
	SyncOpAdd         SyncOp = "add"
	SyncOpModify      SyncOp = "modify"
	SyncOpDrop        SyncOp = "drop"
	SyncOpRename      SyncOp = "rename"
	SyncOpNone        SyncOp = "none"
)

// ColumnOutcome records the result of one column operation during a sync.
// Partial failure is a first-class return value, not a logging side effect.
type ColumnOutcome struct {
	Column string `json:"column"`
	Op     SyncOp `json:"op"`
	Err    string `json:"error,omitempty"`
}

// Failed reports whether the operation failed.
func (o ColumnOutcome) Failed() bool { return o.Err != "" }

// SyncResult is the full outcome list of one table reconciliation.
type SyncResult struct {
	Table    string          `json:"table"`
	Outcomes []ColumnOutcome `json:"outcomes"`
}

// Append records an outcome.
func (r *SyncResult) Append(column string, op SyncOp, err error) {
	outcome := ColumnOutcome{Column: column, Op: op}
	if err != nil {
		outcome.Err = err.Error()
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// OK reports whether every operation succeeded.
func (r *SyncResult) OK() bool {
	for _, o := range r.Outcomes {
		if o.Failed() {
			return false
		}
	}
	return true
}

// Failed returns the failed outcomes.
func (r *SyncResult) Failed() []ColumnOutcome {
	var failed []ColumnOutcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Changed counts outcomes that performed a real operation.
func (r *SyncResult) Changed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Op != SyncOpNone && !o.Failed() {
			n++
		}
	}
	return n
}

// MutationResult reports a template or field mutation back to the caller:
// an explicit success flag plus the human-readable messages and warnings
// accumulated along the way, so partial success is visible.
type MutationResult struct {
	OK       bool        `json:"ok"`
	ID       int64       `json:"id,omitempty"`
	Messages []string    `json:"messages,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Sync     *SyncResult `json:"sync,omitempty"`
}

// AddMessage appends a formatted message.
func (m *MutationResult) AddMessage(format string, args ...any) {
	m.Messages = append(m.Messages, fmt.Sprintf(format, args...))
}

// AddWarning appends a formatted warning.
func (m *MutationResult) AddWarning(format string, args ...any) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

// FormatMode selects how a field value is rendered.
type FormatMode string

const (
	FormatModeDisplay FormatMode = "display"
	FormatModePlain   FormatMode = "plain"
)

// TypeInfo is the listing entry for a registered field type.
type TypeInfo struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}
