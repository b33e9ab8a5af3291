package factory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/tabula"
	"github.com/lychee-technology/tabula/internal"
	"go.uber.org/zap"
)

// NewTemplateEngine creates a TemplateEngine wired to the provided database
// pool. This is the primary way for external projects to obtain an engine.
//
// The metadata tables named in config.Tables must already exist; create them
// with `tabula-tools init-db` or equivalent migrations. builtin may be nil
// when the host platform has no built-in entities to reference.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/tabula"
//	    "github.com/lychee-technology/tabula/factory"
//	)
//
//	config := tabula.DefaultConfig()
//	engine, err := factory.NewTemplateEngine(ctx, config, pool, nil)
//	if err != nil {
//	    // handle error
//	}
//
// Custom field types extend the built-in catalog:
//
//	engine, err := factory.NewTemplateEngine(ctx, config, pool, nil, myColorType{})
func NewTemplateEngine(ctx context.Context, config tabula.Config, pool *pgxpool.Pool, builtin tabula.BuiltinEntityLookup, extraTypes ...tabula.FieldType) (tabula.TemplateEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE';`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if !slices.Contains(tables, config.Tables.TemplateRegistry) || !slices.Contains(tables, config.Tables.TemplateFields) {
		return nil, fmt.Errorf("metadata tables %s and %s are missing in the database",
			config.Tables.TemplateRegistry, config.Tables.TemplateFields)
	}

	registry := tabula.NewRegistry(extraTypes...)
	zap.S().Infow("field type registry initialized", "types", len(registry.Types()))

	return internal.NewEngine(pool, registry, config, builtin), nil
}

// ConnectPool opens a pgx pool from the configured DSN and connection limits.
func ConnectPool(ctx context.Context, config tabula.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	poolConfig.MaxConns = int32(config.Database.MaxConnections)
	poolConfig.MinConns = int32(config.Database.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}
