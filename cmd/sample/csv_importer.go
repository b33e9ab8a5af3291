package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/lychee-technology/tabula"
)

// ImportError represents an error that occurred while importing a single CSV row.
type ImportError struct {
	RowNumber int    // CSV row number (1-based, including header)
	Reason    string // Error description
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}

// ImportResult contains the results of a CSV import operation.
type ImportResult struct {
	TotalRows    int            // Total number of data rows in CSV (excluding header)
	SuccessCount int            // Number of successfully imported rows
	FailedCount  int            // Number of failed rows
	Errors       []*ImportError // Detailed error information for failed rows
	Duration     time.Duration  // Total import duration
}

// Summary returns a human-readable summary of the import result.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Import completed: %d/%d rows successful, %d failed, duration: %v",
		r.SuccessCount, r.TotalRows, r.FailedCount, r.Duration)
}

// CSVImporter imports CSV data as records of one template.
type CSVImporter struct {
	engine   tabula.TemplateEngine
	mapper   CSVToRecordMapper
	tenant   string
	project  string
	template string
	dryRun   bool
	logger   *log.Logger
}

// NewCSVImporter creates a new CSVImporter. With dryRun, rows are parsed and
// mapped but nothing is written.
func NewCSVImporter(engine tabula.TemplateEngine, mapper CSVToRecordMapper, tenant, project, template string, dryRun bool) *CSVImporter {
	return &CSVImporter{
		engine:   engine,
		mapper:   mapper,
		tenant:   tenant,
		project:  project,
		template: template,
		dryRun:   dryRun,
		logger:   log.New(os.Stderr, "[CSVImporter] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger for the importer.
func (i *CSVImporter) SetLogger(logger *log.Logger) {
	i.logger = logger
}

// ImportFromFile imports CSV data from a file.
func (i *CSVImporter) ImportFromFile(ctx context.Context, filePath string) (*ImportResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return i.ImportFromReader(ctx, file)
}

// ImportFromReader imports CSV data from a reader. A failed row is recorded
// and skipped; the import always runs to the end of the input.
func (i *CSVImporter) ImportFromReader(ctx context.Context, r io.Reader) (*ImportResult, error) {
	start := time.Now()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	result := &ImportResult{}
	rowNumber := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNumber++
		if err != nil {
			result.TotalRows++
			result.FailedCount++
			result.Errors = append(result.Errors, &ImportError{RowNumber: rowNumber, Reason: err.Error()})
			continue
		}
		result.TotalRows++

		values, err := i.mapper.MapRow(header, row)
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, &ImportError{RowNumber: rowNumber, Reason: err.Error()})
			continue
		}

		if i.dryRun {
			result.SuccessCount++
			continue
		}

		if _, err := i.engine.CreateRecord(ctx, i.tenant, i.project, i.template, values); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, &ImportError{RowNumber: rowNumber, Reason: err.Error()})
			continue
		}
		result.SuccessCount++

		if result.SuccessCount%500 == 0 {
			i.logger.Printf("imported %d rows", result.SuccessCount)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
