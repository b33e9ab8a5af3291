package tabula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Template Tests
// =============================================================================

func TestTemplate_TypeID(t *testing.T) {
	tpl := &Template{TenantID: "acme", ProjectID: "crm", Name: "invoice"}
	assert.Equal(t, "acme_crm_invoice", tpl.TypeID())
}

func TestTemplate_HasTitle(t *testing.T) {
	tests := []struct {
		name     string
		settings FieldSettings
		want     bool
	}{
		{"no settings", nil, false},
		{"title disabled", FieldSettings{"has_title": false}, false},
		{"title enabled", FieldSettings{"has_title": true}, true},
		{"json decoded bool", FieldSettings{"has_title": "true"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := &Template{Settings: tt.settings}
			assert.Equal(t, tt.want, tpl.HasTitle())
		})
	}
}

// =============================================================================
// FieldSettings Tests
// =============================================================================

func TestFieldSettings_Int(t *testing.T) {
	s := FieldSettings{
		"native": 42,
		"json":   float64(42),
		"string": "42",
		"bad":    "oops",
	}
	assert.Equal(t, 42, s.Int("native", 0))
	assert.Equal(t, 42, s.Int("json", 0))
	assert.Equal(t, 42, s.Int("string", 0))
	assert.Equal(t, 7, s.Int("bad", 7))
	assert.Equal(t, 7, s.Int("missing", 7))
}

func TestFieldSettings_Bool(t *testing.T) {
	s := FieldSettings{"on": true, "off": false, "num": float64(1), "str": "true"}
	assert.True(t, s.Bool("on", false))
	assert.False(t, s.Bool("off", true))
	assert.True(t, s.Bool("num", false))
	assert.True(t, s.Bool("str", false))
	assert.True(t, s.Bool("missing", true))
}

func TestFieldSettings_StringSlice(t *testing.T) {
	s := FieldSettings{
		"native": []string{"a", "b"},
		"json":   []any{"a", "b"},
	}
	assert.Equal(t, []string{"a", "b"}, s.StringSlice("native"))
	assert.Equal(t, []string{"a", "b"}, s.StringSlice("json"))
	assert.Nil(t, s.StringSlice("missing"))
}

func TestFieldSettings_StringMap(t *testing.T) {
	s := FieldSettings{
		"allowed_values": map[string]any{"draft": "Draft", "sent": "Sent"},
	}
	m := s.StringMap("allowed_values")
	assert.Equal(t, "Draft", m["draft"])
	assert.Equal(t, "Sent", m["sent"])
	assert.Nil(t, s.StringMap("missing"))
}

// =============================================================================
// ReferenceDescriptor Tests
// =============================================================================

func TestField_ReferenceDescriptor(t *testing.T) {
	field := &Field{
		Name: "customer",
		Type: "reference",
		Settings: FieldSettings{
			"target_type":    "acme_crm_customer",
			"target_bundles": []any{"customer", "partner"},
			"multiple":       true,
			"sort":           map[string]any{"field": "title", "direction": "desc"},
			"auto_create":    false,
		},
	}

	desc := field.ReferenceDescriptor()
	assert.Equal(t, "acme_crm_customer", desc.TargetType)
	assert.Equal(t, []string{"customer", "partner"}, desc.TargetBundles)
	assert.True(t, desc.Multiple)
	assert.Equal(t, "title", desc.Sort.Field)
	assert.Equal(t, SortOrderDesc, desc.Sort.Direction)
	assert.False(t, desc.AutoCreate)
}

func TestField_ReferenceDescriptor_NonReference(t *testing.T) {
	field := &Field{Name: "amount", Type: "integer"}
	desc := field.ReferenceDescriptor()
	assert.Empty(t, desc.TargetType)
	assert.Empty(t, desc.TargetBundles)
}

func TestReferenceDescriptor_AllowsBundle(t *testing.T) {
	open := ReferenceDescriptor{TargetType: "user"}
	assert.True(t, open.AllowsBundle("anything"))

	restricted := ReferenceDescriptor{TargetType: "node", TargetBundles: []string{"article"}}
	assert.True(t, restricted.AllowsBundle("article"))
	assert.False(t, restricted.AllowsBundle("page"))
}

// =============================================================================
// SyncResult Tests
// =============================================================================

func TestSyncResult_Outcomes(t *testing.T) {
	sr := &SyncResult{Table: "acme_crm_invoice"}
	sr.Append("amount", SyncOpAdd, nil)
	sr.Append("notes__value", SyncOpNone, nil)
	sr.Append("legacy", SyncOpDrop, errors.New("dependent view"))

	assert.False(t, sr.OK())
	assert.Equal(t, 1, sr.Changed())
	require.Len(t, sr.Failed(), 1)
	assert.Equal(t, "legacy", sr.Failed()[0].Column)
}

func TestSyncResult_Idempotent(t *testing.T) {
	sr := &SyncResult{Table: "acme_crm_invoice"}
	sr.Append("amount", SyncOpNone, nil)
	sr.Append("notes__value", SyncOpNone, nil)

	assert.True(t, sr.OK())
	assert.Equal(t, 0, sr.Changed())
	assert.Empty(t, sr.Failed())
}

// =============================================================================
// MutationResult Tests
// =============================================================================

func TestMutationResult_Messages(t *testing.T) {
	mr := &MutationResult{OK: true, ID: 12}
	mr.AddMessage("field created")
	mr.AddWarning("column add failed, table out of sync")

	assert.True(t, mr.OK)
	assert.Equal(t, []string{"field created"}, mr.Messages)
	assert.Equal(t, []string{"column add failed, table out of sync"}, mr.Warnings)
}
