// Command sample imports CSV rows as records of a template, mapping CSV
// columns to fields by header name.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/factory"
	"go.uber.org/zap"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	csvFile := flag.String("csv", "", "Path to CSV file to import (required)")
	tenant := flag.String("tenant", "", "Tenant id (required)")
	project := flag.String("project", "", "Project id (required)")
	template := flag.String("template", "", "Target template name (required)")
	dbURL := flag.String("db", "", "PostgreSQL connection URL (or set DATABASE_URL env)")
	dryRun := flag.Bool("dry-run", false, "Parse CSV and validate mappings without writing to database")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	separator := flag.String("separator", ";", "Separator for multi-value cells")

	var renameSpecs stringList
	var skipColumns stringList
	var multiFields stringList
	flag.Var(&renameSpecs, "map", "CSV column to field mapping as csv_column=field_name (repeatable)")
	flag.Var(&skipColumns, "skip", "CSV column to ignore (repeatable)")
	flag.Var(&multiFields, "multi", "Field whose cells hold separator-joined lists (repeatable)")

	flag.Parse()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if *verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if *csvFile == "" || *tenant == "" || *project == "" || *template == "" {
		sugar.Error("Error: -csv, -tenant, -project and -template are required")
		flag.Usage()
		os.Exit(1)
	}

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		sugar.Error("Error: Database URL is required. Use -db flag or set DATABASE_URL environment variable.")
		os.Exit(1)
	}

	renames, err := parseRenameFlags(renameSpecs)
	if err != nil {
		sugar.Fatalf("invalid -map flag: %v", err)
	}
	mapper := &HeaderMapper{
		Renames:    renames,
		Skip:       toSet(skipColumns),
		MultiValue: toSet(multiFields),
		Separator:  *separator,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	config := tabula.DefaultConfig()
	config.Database.DSN = databaseURL

	pool, err := factory.ConnectPool(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	engine, err := factory.NewTemplateEngine(ctx, config, pool, nil)
	if err != nil {
		sugar.Fatalf("failed to create template engine: %v", err)
	}

	// Fail early when the target template does not exist.
	if _, err := engine.GetTemplateByName(ctx, *tenant, *project, *template); err != nil {
		sugar.Fatalf("template %s_%s_%s: %v", *tenant, *project, *template, err)
	}

	importer := NewCSVImporter(engine, mapper, *tenant, *project, *template, *dryRun)
	result, err := importer.ImportFromFile(ctx, *csvFile)
	if err != nil {
		sugar.Fatalf("import failed: %v", err)
	}

	sugar.Info(result.Summary())
	for i, importErr := range result.Errors {
		if i >= 20 {
			sugar.Warnf("... and %d more errors", len(result.Errors)-i)
			break
		}
		sugar.Warn(importErr.Error())
	}
	if result.FailedCount > 0 {
		os.Exit(1)
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
