package tabula

import (
	"context"
)

// TemplateEngine is the single entry point for template management and
// record access over generated tables.
type TemplateEngine interface {
	// Template CRUD
	CreateTemplate(ctx context.Context, tpl *Template, fields []*Field) (*MutationResult, error)
	UpdateTemplate(ctx context.Context, id int64, values map[string]any) (*MutationResult, error)
	DeleteTemplate(ctx context.Context, id int64) (*MutationResult, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	GetTemplateByName(ctx context.Context, tenantID, projectID, name string) (*Template, error)
	ListTemplates(ctx context.Context, tenantID, projectID string) ([]*Template, error)

	// Field CRUD
	AddField(ctx context.Context, templateID int64, field *Field) (*MutationResult, error)
	UpdateField(ctx context.Context, fieldID int64, values map[string]any) (*MutationResult, error)
	DeleteField(ctx context.Context, fieldID int64) (*MutationResult, error)
	GetFields(ctx context.Context, templateID int64) ([]*Field, error)

	// Record operations against a template's generated table
	CreateRecord(ctx context.Context, tenantID, projectID, template string, values Record) (*Record, error)
	GetRecord(ctx context.Context, tenantID, projectID, template string, id int64) (*Record, error)
	GetRecordByUUID(ctx context.Context, tenantID, projectID, template, uuid string) (*Record, error)
	ListRecords(ctx context.Context, tenantID, projectID, template string, limit, offset int) ([]*Record, error)
	DeleteRecord(ctx context.Context, tenantID, projectID, template string, id int64) error

	// Reference target autocomplete
	SearchReferenceTargets(ctx context.Context, tenantID, projectID, template, fieldName, query string, limit int) ([]Record, error)

	// Field type catalog
	FieldTypes() []TypeInfo

	// Schema maintenance
	SyncTemplate(ctx context.Context, id int64) (*SyncResult, error)
}

// BuiltinEntityLookup loads rows of platform-owned entities that predate the
// template engine, so reference fields can point at them. Implementations
// fail with an error, never panic; the resolver treats errors as absent.
type BuiltinEntityLookup interface {
	// Supports reports whether entityType is a built-in the lookup can serve.
	Supports(entityType string) bool

	// Load fetches one row by id. A missing row returns (nil, nil).
	Load(ctx context.Context, entityType string, id int64) (Record, error)

	// Search finds rows whose label matches query, up to limit.
	Search(ctx context.Context, entityType, query string, limit int) ([]Record, error)
}
