package internal

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/tabula"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg := tabula.DefaultConfig()
	store := NewStore(mock, tabula.NewRegistry(), cfg.Tables, cfg.Identifier.MaxLength)
	return store, mock
}

// =============================================================================
// Validation
// =============================================================================

func TestValidateTemplate_Names(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name    string
		tplName string
		wantErr bool
	}{
		{"valid", "invoice", false},
		{"valid with digits", "invoice_v2", false},
		{"uppercase rejected", "Invoice", true},
		{"hyphen rejected", "invoice-line", true},
		{"reserved id", "id", true},
		{"reserved created", "created", true},
		{"reserved title", "title", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: tt.tplName}
			err := store.ValidateTemplate(tpl)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, tabula.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTemplate_LengthCeiling(t *testing.T) {
	store, _ := newTestStore(t)

	// ceiling 32 minus "acme", "crm" and two separators leaves 23.
	max := MaxNameLength(tabula.DefaultMaxIdentifierLength, "acme", "crm")
	require.Equal(t, 23, max)

	atLimit := &tabula.Template{TenantID: "acme", ProjectID: "crm",
		Name: "abcdefghijklmnopqrstuvw"}
	require.Len(t, atLimit.Name, max)
	assert.NoError(t, store.ValidateTemplate(atLimit))

	overLimit := &tabula.Template{TenantID: "acme", ProjectID: "crm",
		Name: "abcdefghijklmnopqrstuvwx"}
	require.Len(t, overLimit.Name, max+1)
	err := store.ValidateTemplate(overLimit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}

func TestValidateField(t *testing.T) {
	store, _ := newTestStore(t)

	assert.NoError(t, store.ValidateField(&tabula.Field{Name: "amount", Type: "integer"}))

	err := store.ValidateField(&tabula.Field{Name: "amount", Type: "telepathy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field type")

	err = store.ValidateField(&tabula.Field{Name: "uuid", Type: "string"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

// =============================================================================
// Template CRUD
// =============================================================================

func TestCreateTemplate(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_registry" WHERE tenant_id`).
		WithArgs("acme", "crm", "invoice").
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO "template_registry"`).
		WithArgs("acme", "crm", "invoice", "Invoice", "", []byte(`{}`), "active", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: "invoice", Label: "Invoice"}
	id, err := store.CreateTemplate(ctx, tpl)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), tpl.ID)
	assert.Equal(t, tabula.TemplateStatusActive, tpl.Status)
	assert.NotZero(t, tpl.Created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTemplate_Duplicate(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_registry" WHERE tenant_id`).
		WithArgs("acme", "crm", "invoice").
		WillReturnRows(templateRows(1, "acme", "crm", "invoice"))

	tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: "invoice"}
	_, err := store.CreateTemplate(ctx, tpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTemplate_InvalidNameSkipsDatabase(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	tpl := &tabula.Template{TenantID: "acme", ProjectID: "crm", Name: "Bad-Name"}
	_, err := store.CreateTemplate(ctx, tpl)
	require.Error(t, err)
	assert.True(t, tabula.IsValidationError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate_CachesResult(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_registry" WHERE id`).
		WithArgs(int64(1)).
		WillReturnRows(templateRows(1, "acme", "crm", "invoice"))

	first, err := store.GetTemplate(ctx, 1)
	require.NoError(t, err)

	// Second read must come from the cache: no further expectation is set.
	second, err := store.GetTemplate(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate_NotFound(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_registry" WHERE id`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetTemplate(ctx, 42)
	require.Error(t, err)
	assert.True(t, tabula.IsNotFoundError(err))
}

func TestUpdateTemplate_RejectsImmutableColumns(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_registry" WHERE id`).
		WithArgs(int64(1)).
		WillReturnRows(templateRows(1, "acme", "crm", "invoice"))

	err := store.UpdateTemplate(ctx, 1, map[string]any{"name": "renamed"})
	require.Error(t, err)
	assert.True(t, tabula.IsValidationError(err))
}

// =============================================================================
// Field CRUD
// =============================================================================

func TestAddField(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)
	store.remember(testTemplate(1, "acme", "crm", "invoice"))

	mock.ExpectQuery(`SELECT .* FROM "template_fields" WHERE template_id`).
		WithArgs(int64(1)).
		WillReturnRows(fieldRows())

	mock.ExpectQuery(`INSERT INTO "template_fields"`).
		WithArgs(int64(1), "amount", "Amount", "integer", "", true, 0, []byte(`{}`), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	field := &tabula.Field{Name: "amount", Label: "Amount", Type: "integer", Required: true, Settings: tabula.FieldSettings{}}
	id, err := store.AddField(ctx, 1, field)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.Equal(t, int64(1), field.TemplateID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddField_DuplicateName(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)
	store.remember(testTemplate(1, "acme", "crm", "invoice"))

	mock.ExpectQuery(`SELECT .* FROM "template_fields" WHERE template_id`).
		WithArgs(int64(1)).
		WillReturnRows(fieldRows(fieldRow{id: 10, templateID: 1, name: "amount", fieldType: "integer"}))

	field := &tabula.Field{Name: "amount", Type: "integer"}
	_, err := store.AddField(ctx, 1, field)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddField_UnknownType(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	store.remember(testTemplate(1, "acme", "crm", "invoice"))

	field := &tabula.Field{Name: "vibe", Type: "telepathy"}
	_, err := store.AddField(ctx, 1, field)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field type")
}

func TestReferencingFields(t *testing.T) {
	ctx := context.Background()
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM "template_fields" WHERE type = 'reference'`).
		WithArgs("acme_crm_customer").
		WillReturnRows(fieldRows(fieldRow{
			id: 5, templateID: 2, name: "customer", fieldType: "reference",
			settings: `{"target_type":"acme_crm_customer"}`,
		}))

	refs, err := store.ReferencingFields(ctx, "acme_crm_customer")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "customer", refs[0].Name)
	assert.Equal(t, "acme_crm_customer", refs[0].Settings.String("target_type", ""))
}

// =============================================================================
// Row helpers
// =============================================================================

func testTemplate(id int64, tenant, project, name string) *tabula.Template {
	return &tabula.Template{
		ID: id, TenantID: tenant, ProjectID: project, Name: name,
		Status: tabula.TemplateStatusActive, Settings: tabula.FieldSettings{},
	}
}

func templateRows(id int64, tenant, project, name string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "project_id", "name", "label", "description",
		"settings", "status", "created", "updated",
	}).AddRow(id, tenant, project, name, "", "", []byte(`{}`), "active", int64(100), int64(100))
}

type fieldRow struct {
	id         int64
	templateID int64
	name       string
	fieldType  string
	settings   string
}

func fieldRows(rows ...fieldRow) *pgxmock.Rows {
	out := pgxmock.NewRows([]string{
		"id", "template_id", "name", "label", "type", "description",
		"required", "weight", "settings", "created", "updated",
	})
	for _, r := range rows {
		settings := r.settings
		if settings == "" {
			settings = "{}"
		}
		out.AddRow(r.id, r.templateID, r.name, "", r.fieldType, "", false, 0, []byte(settings), int64(100), int64(100))
	}
	return out
}
