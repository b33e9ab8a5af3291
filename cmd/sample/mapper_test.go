package main

import (
	"context"
	"strings"
	"testing"

	"github.com/lychee-technology/tabula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMapper_MapRow(t *testing.T) {
	mapper := &HeaderMapper{
		Renames:    map[string]string{"Full Name": "title"},
		Skip:       map[string]bool{"internal_id": true},
		MultiValue: map[string]bool{"tags": true},
	}

	header := []string{"Full Name", "email", "internal_id", "tags", "notes"}
	row := []string{"Jane Doe", "jane@example.com", "x99", "vip; early-adopter", ""}

	record, err := mapper.MapRow(header, row)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", record["title"])
	assert.Equal(t, "jane@example.com", record["email"])
	assert.NotContains(t, record, "internal_id")
	assert.NotContains(t, record, "notes", "empty cells are skipped")
	assert.Equal(t, []any{"vip", "early-adopter"}, record["tags"])
}

func TestHeaderMapper_RowLengthMismatch(t *testing.T) {
	mapper := &HeaderMapper{}
	_, err := mapper.MapRow([]string{"a", "b"}, []string{"1"})
	require.Error(t, err)
}

func TestParseRenameFlags(t *testing.T) {
	renames, err := parseRenameFlags([]string{"Full Name=title", "E-Mail=email"})
	require.NoError(t, err)
	assert.Equal(t, "title", renames["Full Name"])
	assert.Equal(t, "email", renames["E-Mail"])

	_, err = parseRenameFlags([]string{"missing-separator"})
	require.Error(t, err)
}

// recordingEngine captures CreateRecord calls; every other method is unused.
type recordingEngine struct {
	tabula.TemplateEngine

	created []tabula.Record
	fail    bool
}

func (e *recordingEngine) CreateRecord(_ context.Context, _, _, _ string, values tabula.Record) (*tabula.Record, error) {
	if e.fail {
		return nil, tabula.NewValidationError("email", "value is required")
	}
	e.created = append(e.created, values)
	return &values, nil
}

func TestCSVImporter_ImportFromReader(t *testing.T) {
	engine := &recordingEngine{}
	importer := NewCSVImporter(engine, &HeaderMapper{}, "acme", "crm", "contact", false)

	csv := "email,age\njane@example.com,34\nann@example.com,41\nbob@example.com,55\n"
	result, err := importer.ImportFromReader(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.SuccessCount)
	require.Len(t, engine.created, 3)
	assert.Equal(t, "jane@example.com", engine.created[0]["email"])
	assert.Equal(t, "34", engine.created[0]["age"])
}

func TestCSVImporter_FailedRowsAreRecorded(t *testing.T) {
	engine := &recordingEngine{fail: true}
	importer := NewCSVImporter(engine, &HeaderMapper{}, "acme", "crm", "contact", false)

	csv := "email\njane@example.com\nbob@example.com\n"
	result, err := importer.ImportFromReader(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 2, result.FailedCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].RowNumber)
}

func TestCSVImporter_DryRunWritesNothing(t *testing.T) {
	engine := &recordingEngine{}
	importer := NewCSVImporter(engine, &HeaderMapper{}, "acme", "crm", "contact", true)

	csv := "email\njane@example.com\n"
	result, err := importer.ImportFromReader(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Empty(t, engine.created)
}
