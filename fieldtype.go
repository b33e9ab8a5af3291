package tabula

import (
	"fmt"
	"sort"
)

// Composite column suffixes. A field type that stores several facets of a
// value spreads them across sibling columns named {field}{suffix}.
const (
	SuffixValue   = "__value"
	SuffixFormat  = "__format"
	SuffixURI     = "__uri"
	SuffixTitle   = "__title"
	SuffixOptions = "__options"
)

// FieldType describes one pluggable field type: its storage mapping and its
// value pipeline (validate, transform, format).
type FieldType interface {
	// Name is the machine name used in field definitions, e.g. "string".
	Name() string

	// Label is the human-readable name, e.g. "Text (short)".
	Label() string

	// Columns maps the field definition to physical columns. The returned
	// specs use bare names ("" for the single-column case, or a composite
	// suffix); the compiler prefixes the field name.
	Columns(field *Field) []ColumnSpec

	// Composite reports whether the type spreads across suffixed columns.
	Composite() bool

	// SupportsMultiple reports whether the type can hold multiple values.
	SupportsMultiple() bool

	// DefaultSettings returns the settings applied when a field omits them.
	DefaultSettings() FieldSettings

	// Validate checks a raw input value against the field definition.
	// A nil value is only rejected when the field is required.
	Validate(field *Field, value any) error

	// Transform converts a validated input value into the column values to
	// store. Single-column types return {"": v}; composite types key by
	// suffix.
	Transform(field *Field, value any) (map[string]any, error)

	// Format renders stored column values back into an output value.
	Format(field *Field, columns map[string]any, mode FormatMode) (any, error)
}

// Registry is the catalog of available field types. It is populated once at
// construction and immutable afterwards, so reads need no locking.
type Registry struct {
	types map[string]FieldType
}

// NewRegistry builds a registry with all built-in field types plus any
// extras. Extras with a built-in's name override it.
func NewRegistry(extras ...FieldType) *Registry {
	r := &Registry{types: make(map[string]FieldType)}
	for _, ft := range builtinFieldTypes() {
		r.types[ft.Name()] = ft
	}
	for _, ft := range extras {
		r.types[ft.Name()] = ft
	}
	return r
}

// Get returns the field type by name.
func (r *Registry) Get(name string) (FieldType, error) {
	ft, ok := r.types[name]
	if !ok {
		return nil, NewTabulaError(ErrorTypeValidation, ErrCodeUnknownFieldType,
			fmt.Sprintf("unknown field type '%s'", name))
	}
	return ft, nil
}

// Has reports whether a type is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.types[name]
	return ok
}

// Types lists registered types sorted by name.
func (r *Registry) Types() []TypeInfo {
	infos := make([]TypeInfo, 0, len(r.types))
	for _, ft := range r.types {
		infos = append(infos, TypeInfo{Type: ft.Name(), Label: ft.Label()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// Validate runs the field's type validator against a value. Required fields
// reject nil; optional fields accept it without consulting the type.
func (r *Registry) Validate(field *Field, value any) error {
	ft, err := r.Get(field.Type)
	if err != nil {
		return err
	}
	if value == nil {
		if field.Required {
			return NewValidationError(field.Name, "value is required")
		}
		return nil
	}
	return ft.Validate(field, value)
}

// Transform converts a value into its column representation. A nil value
// maps every column of the field to nil. When the field's type is no longer
// registered the value passes through unchanged, same as Format, so a
// removed plugin never blocks writes that validation already allowed.
func (r *Registry) Transform(field *Field, value any) (map[string]any, error) {
	ft, ok := r.types[field.Type]
	if !ok {
		return map[string]any{"": value}, nil
	}
	if value == nil {
		out := make(map[string]any)
		for _, col := range ft.Columns(field) {
			out[col.Name] = nil
		}
		return out, nil
	}
	return ft.Transform(field, value)
}

// Format renders stored column values for output. When the field's type is
// no longer registered, the raw primary column value is passed through so a
// removed plugin never makes stored rows unreadable.
func (r *Registry) Format(field *Field, columns map[string]any, mode FormatMode) (any, error) {
	ft, ok := r.types[field.Type]
	if !ok {
		if v, present := columns[""]; present {
			return v, nil
		}
		return columns[SuffixValue], nil
	}
	return ft.Format(field, columns, mode)
}
