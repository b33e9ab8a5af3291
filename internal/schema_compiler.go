package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lychee-technology/tabula"
)

// Compiler maps field definitions to physical column sets. It is the single
// source of truth consulted by both table creation and schema diffing.
type Compiler struct {
	registry *tabula.Registry
}

func NewCompiler(registry *tabula.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// CompileField resolves a field definition into its physical columns, field
// name prefixed onto any composite suffix.
func (c *Compiler) CompileField(field *tabula.Field) ([]tabula.ColumnSpec, error) {
	ft, err := c.registry.Get(field.Type)
	if err != nil {
		return nil, err
	}
	specs := ft.Columns(field)
	out := make([]tabula.ColumnSpec, len(specs))
	for i, spec := range specs {
		spec.Name = field.Name + spec.Name
		out[i] = spec
	}
	return out, nil
}

// SystemColumns returns the engine-owned columns every generated table has.
func SystemColumns(hasTitle bool) []tabula.ColumnSpec {
	cols := []tabula.ColumnSpec{
		{Name: "id", Storage: tabula.StorageSerial, NotNull: true, PrimaryKey: true},
		{Name: "uuid", Storage: tabula.StorageUUID, NotNull: true, Unique: true},
		{Name: "created", Storage: tabula.StorageBigInt, NotNull: true},
		{Name: "updated", Storage: tabula.StorageBigInt, NotNull: true},
		{Name: "tenant_id", Storage: tabula.StorageVarchar, Size: 64, NotNull: true},
		{Name: "project_id", Storage: tabula.StorageVarchar, Size: 64, NotNull: true},
	}
	if hasTitle {
		cols = append(cols, tabula.ColumnSpec{
			Name: "title", Storage: tabula.StorageVarchar,
			Size: tabula.DefaultStringMaxLength, NotNull: true,
		})
	}
	return cols
}

// DesiredColumns builds the complete target column set for a template:
// system columns followed by every field's compiled columns, fields ordered
// by weight then name so the layout is deterministic.
func (c *Compiler) DesiredColumns(tpl *tabula.Template, fields []*tabula.Field) ([]tabula.ColumnSpec, error) {
	ordered := make([]*tabula.Field, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight < ordered[j].Weight
		}
		return ordered[i].Name < ordered[j].Name
	})

	cols := SystemColumns(tpl.HasTitle())
	for _, field := range ordered {
		compiled, err := c.CompileField(field)
		if err != nil {
			return nil, err
		}
		cols = append(cols, compiled...)
	}
	return cols, nil
}

// FieldColumnNames returns just the column names a field owns, used when a
// single field is added or dropped.
func (c *Compiler) FieldColumnNames(field *tabula.Field) ([]string, error) {
	compiled, err := c.CompileField(field)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(compiled))
	for i, spec := range compiled {
		names[i] = spec.Name
	}
	return names, nil
}

// storageSQL renders the Postgres type portion of a column definition.
func storageSQL(spec tabula.ColumnSpec) string {
	switch spec.Storage {
	case tabula.StorageVarchar:
		size := spec.Size
		if size <= 0 {
			size = tabula.DefaultStringMaxLength
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case tabula.StorageText:
		return "TEXT"
	case tabula.StorageSmallInt:
		return "SMALLINT"
	case tabula.StorageInteger:
		return "INTEGER"
	case tabula.StorageBigInt:
		return "BIGINT"
	case tabula.StorageDouble:
		return "DOUBLE PRECISION"
	case tabula.StorageNumeric:
		return fmt.Sprintf("NUMERIC(%d,%d)", spec.Precision, spec.Scale)
	case tabula.StorageJSONB:
		return "JSONB"
	case tabula.StorageUUID:
		return "UUID"
	case tabula.StorageSerial:
		return "SERIAL"
	default:
		return "TEXT"
	}
}

// ColumnDDL renders a full column definition for CREATE TABLE or ADD COLUMN.
func ColumnDDL(spec tabula.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(sanitizeIdentifier(spec.Name))
	b.WriteByte(' ')
	b.WriteString(storageSQL(spec))
	if spec.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		return b.String()
	}
	if spec.NotNull {
		b.WriteString(" NOT NULL")
	}
	if spec.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(spec.Default)
	}
	if spec.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// compositeSuffixes are every multi-column suffix a field type can emit.
var compositeSuffixes = []string{
	tabula.SuffixValue, tabula.SuffixFormat,
	tabula.SuffixURI, tabula.SuffixTitle, tabula.SuffixOptions,
}

// splitCompositeSuffix strips a known composite suffix off a column name,
// returning the owning field name and whether a suffix was found.
func splitCompositeSuffix(name string) (string, bool) {
	for _, suffix := range compositeSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return strings.TrimSuffix(name, suffix), true
		}
	}
	return "", false
}

// dataTypeName maps a storage kind to the data_type string reported by
// information_schema.columns, so live columns can be compared to specs.
func dataTypeName(storage tabula.ColumnStorage) string {
	switch storage {
	case tabula.StorageVarchar:
		return "character varying"
	case tabula.StorageText:
		return "text"
	case tabula.StorageSmallInt:
		return "smallint"
	case tabula.StorageInteger, tabula.StorageSerial:
		return "integer"
	case tabula.StorageBigInt:
		return "bigint"
	case tabula.StorageDouble:
		return "double precision"
	case tabula.StorageNumeric:
		return "numeric"
	case tabula.StorageJSONB:
		return "jsonb"
	case tabula.StorageUUID:
		return "uuid"
	default:
		return string(storage)
	}
}
