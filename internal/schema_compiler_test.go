package internal

import (
	"testing"

	"github.com/lychee-technology/tabula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler() *Compiler {
	return NewCompiler(tabula.NewRegistry())
}

func TestCompileField_Simple(t *testing.T) {
	c := newTestCompiler()
	field := &tabula.Field{Name: "amount", Type: "integer", Required: true}

	cols, err := c.CompileField(field)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "amount", cols[0].Name)
	assert.Equal(t, tabula.StorageInteger, cols[0].Storage)
	assert.True(t, cols[0].NotNull)
}

func TestCompileField_Composite(t *testing.T) {
	c := newTestCompiler()
	field := &tabula.Field{Name: "notes", Type: "text"}

	cols, err := c.CompileField(field)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "notes__value", cols[0].Name)
	assert.Equal(t, tabula.StorageText, cols[0].Storage)
	assert.False(t, cols[0].NotNull)
	assert.Equal(t, "notes__format", cols[1].Name)
	assert.Equal(t, tabula.StorageVarchar, cols[1].Storage)
}

func TestCompileField_UnknownType(t *testing.T) {
	c := newTestCompiler()
	_, err := c.CompileField(&tabula.Field{Name: "x", Type: "telepathy"})
	require.Error(t, err)
	assert.True(t, tabula.IsValidationError(err))
}

func TestSystemColumns(t *testing.T) {
	cols := SystemColumns(false)
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	assert.Equal(t, []string{"id", "uuid", "created", "updated", "tenant_id", "project_id"}, names)

	withTitle := SystemColumns(true)
	assert.Equal(t, "title", withTitle[len(withTitle)-1].Name)
	assert.True(t, withTitle[len(withTitle)-1].NotNull)
}

func TestDesiredColumns_RoundTrip(t *testing.T) {
	c := newTestCompiler()
	tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: "order"}
	fields := []*tabula.Field{
		{Name: "f1", Type: "string", Weight: 0},
		{Name: "f2", Type: "text", Weight: 1},
		{Name: "f3", Type: "reference", Weight: 2, Settings: tabula.FieldSettings{"target_type": "user"}},
	}

	cols, err := c.DesiredColumns(tpl, fields)
	require.NoError(t, err)

	names := make(map[string]struct{}, len(cols))
	for _, col := range cols {
		names[col.Name] = struct{}{}
	}
	want := []string{
		"id", "uuid", "created", "updated", "tenant_id", "project_id",
		"f1", "f2__value", "f2__format", "f3",
	}
	assert.Len(t, cols, len(want))
	for _, name := range want {
		assert.Contains(t, names, name)
	}
}

func TestDesiredColumns_OrderedByWeight(t *testing.T) {
	c := newTestCompiler()
	tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: "order"}
	fields := []*tabula.Field{
		{Name: "zeta", Type: "string", Weight: 0},
		{Name: "alpha", Type: "string", Weight: 0},
		{Name: "first", Type: "string", Weight: -10},
	}

	cols, err := c.DesiredColumns(tpl, fields)
	require.NoError(t, err)

	sys := len(SystemColumns(false))
	assert.Equal(t, "first", cols[sys].Name)
	assert.Equal(t, "alpha", cols[sys+1].Name)
	assert.Equal(t, "zeta", cols[sys+2].Name)
}

func TestColumnDDL(t *testing.T) {
	tests := []struct {
		name string
		spec tabula.ColumnSpec
		want string
	}{
		{
			"primary key serial",
			tabula.ColumnSpec{Name: "id", Storage: tabula.StorageSerial, NotNull: true, PrimaryKey: true},
			`"id" SERIAL PRIMARY KEY`,
		},
		{
			"unique uuid",
			tabula.ColumnSpec{Name: "uuid", Storage: tabula.StorageUUID, NotNull: true, Unique: true},
			`"uuid" UUID NOT NULL UNIQUE`,
		},
		{
			"sized varchar",
			tabula.ColumnSpec{Name: "sku", Storage: tabula.StorageVarchar, Size: 64, NotNull: true},
			`"sku" VARCHAR(64) NOT NULL`,
		},
		{
			"boolean with default",
			tabula.ColumnSpec{Name: "paid", Storage: tabula.StorageSmallInt, NotNull: true, Default: "0"},
			`"paid" SMALLINT NOT NULL DEFAULT 0`,
		},
		{
			"numeric",
			tabula.ColumnSpec{Name: "amount", Storage: tabula.StorageNumeric, Precision: 10, Scale: 2},
			`"amount" NUMERIC(10,2)`,
		},
		{
			"jsonb",
			tabula.ColumnSpec{Name: "payload", Storage: tabula.StorageJSONB},
			`"payload" JSONB`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnDDL(tt.spec))
		})
	}
}

func TestSerialStorageIsConsistent(t *testing.T) {
	// the storage token, the rendered DDL and the information_schema name
	// must describe the same column type
	assert.Equal(t, "serial", string(tabula.StorageSerial))
	assert.Equal(t, "SERIAL", storageSQL(tabula.ColumnSpec{Storage: tabula.StorageSerial}))
	assert.Equal(t, "integer", dataTypeName(tabula.StorageSerial))
}

func TestSplitCompositeSuffix(t *testing.T) {
	base, ok := splitCompositeSuffix("notes__value")
	require.True(t, ok)
	assert.Equal(t, "notes", base)

	base, ok = splitCompositeSuffix("link__options")
	require.True(t, ok)
	assert.Equal(t, "link", base)

	_, ok = splitCompositeSuffix("amount")
	assert.False(t, ok)

	// a bare suffix is not a composite column
	_, ok = splitCompositeSuffix("__value")
	assert.False(t, ok)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "acme_crm_invoice", TableName("acme", "crm", "invoice"))
}

func TestMaxNameLength(t *testing.T) {
	// 32 - len("acme") - len("crm") - 2 separators
	assert.Equal(t, 23, MaxNameLength(32, "acme", "crm"))
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, `"orders"`, sanitizeIdentifier("orders"))
	assert.Equal(t, `"public"."orders"`, sanitizeIdentifier("public.orders"))
	assert.Equal(t, `"bad""name"`, sanitizeIdentifier(`bad"name`))
	assert.Equal(t, "", sanitizeIdentifier(""))
}
