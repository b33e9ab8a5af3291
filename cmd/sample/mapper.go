package main

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/tabula"
)

// CSVToRecordMapper turns one CSV row into the value map CreateRecord takes.
type CSVToRecordMapper interface {
	// MapRow maps header/cell pairs to field values. Empty cells are skipped.
	MapRow(header []string, row []string) (tabula.Record, error)
}

// HeaderMapper maps CSV columns to fields by column name, with optional
// renames. Columns named in Skip are dropped. Columns named in MultiValue
// split their cell on the separator into a value list.
type HeaderMapper struct {
	// Renames maps a CSV column name to a field name. Columns without an
	// entry keep their own name.
	Renames map[string]string

	// Skip lists CSV columns that are not imported.
	Skip map[string]bool

	// MultiValue lists field names whose cells hold separator-joined lists.
	MultiValue map[string]bool

	// Separator splits multi-value cells. Defaults to ";".
	Separator string
}

func (m *HeaderMapper) fieldName(column string) string {
	if renamed, ok := m.Renames[column]; ok {
		return renamed
	}
	return column
}

func (m *HeaderMapper) separator() string {
	if m.Separator == "" {
		return ";"
	}
	return m.Separator
}

func (m *HeaderMapper) MapRow(header []string, row []string) (tabula.Record, error) {
	if len(row) != len(header) {
		return nil, fmt.Errorf("row has %d cells, header has %d columns", len(row), len(header))
	}

	record := make(tabula.Record)
	for i, column := range header {
		if m.Skip[column] {
			continue
		}
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}

		field := m.fieldName(column)
		if m.MultiValue[field] {
			parts := strings.Split(cell, m.separator())
			values := make([]any, 0, len(parts))
			for _, part := range parts {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					values = append(values, trimmed)
				}
			}
			record[field] = values
			continue
		}
		record[field] = cell
	}
	return record, nil
}

// parseRenameFlags parses repeated "csv_column=field_name" mappings.
func parseRenameFlags(specs []string) (map[string]string, error) {
	renames := make(map[string]string, len(specs))
	for _, spec := range specs {
		column, field, ok := strings.Cut(spec, "=")
		if !ok || column == "" || field == "" {
			return nil, fmt.Errorf("invalid mapping %q, expected csv_column=field_name", spec)
		}
		renames[column] = field
	}
	return renames, nil
}
