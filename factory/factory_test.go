package factory

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/tabula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectTestPostgres establishes a connection to the test PostgreSQL database.
// Skips the test if DATABASE_URL is not set.
func connectTestPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

// createMetadataTables creates temporary metadata tables for testing.
func createMetadataTables(t *testing.T, ctx context.Context, pool *pgxpool.Pool) tabula.TableNames {
	t.Helper()

	suffix := time.Now().UnixNano()
	tables := tabula.TableNames{
		TemplateRegistry: fmt.Sprintf("template_registry_test_%d", suffix),
		TemplateFields:   fmt.Sprintf("template_fields_test_%d", suffix),
	}

	_, err := pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		id BIGSERIAL PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		project_id VARCHAR(64) NOT NULL,
		name VARCHAR(64) NOT NULL,
		label VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		settings JSONB NOT NULL DEFAULT '{}',
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL,
		UNIQUE (tenant_id, project_id, name)
	)`, tables.TemplateRegistry))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		id BIGSERIAL PRIMARY KEY,
		template_id BIGINT NOT NULL,
		name VARCHAR(64) NOT NULL,
		label VARCHAR(255) NOT NULL DEFAULT '',
		type VARCHAR(32) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		required BOOLEAN NOT NULL DEFAULT FALSE,
		weight INTEGER NOT NULL DEFAULT 0,
		settings JSONB NOT NULL DEFAULT '{}',
		created BIGINT NOT NULL,
		updated BIGINT NOT NULL,
		UNIQUE (template_id, name)
	)`, tables.TemplateFields))
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(cleanupCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s, %s",
			tables.TemplateRegistry, tables.TemplateFields))
	})

	return tables
}

func TestNewTemplateEngine_InvalidConfig(t *testing.T) {
	cfg := tabula.DefaultConfig()
	cfg.Database.DSN = ""

	_, err := NewTemplateEngine(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}

func TestNewTemplateEngine_MissingTables(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := connectTestPostgres(t, ctx)

	cfg := tabula.DefaultConfig()
	cfg.Database.DSN = os.Getenv("DATABASE_URL")
	cfg.Tables = tabula.TableNames{
		TemplateRegistry: fmt.Sprintf("absent_registry_%d", time.Now().UnixNano()),
		TemplateFields:   fmt.Sprintf("absent_fields_%d", time.Now().UnixNano()),
	}

	_, err := NewTemplateEngine(ctx, cfg, pool, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestNewTemplateEngine_Integration_Success(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := connectTestPostgres(t, ctx)

	cfg := tabula.DefaultConfig()
	cfg.Database.DSN = os.Getenv("DATABASE_URL")
	cfg.Tables = createMetadataTables(t, ctx, pool)

	engine, err := NewTemplateEngine(ctx, cfg, pool, nil)
	require.NoError(t, err)
	require.NotNil(t, engine)

	types := engine.FieldTypes()
	assert.NotEmpty(t, types)

	tenant := fmt.Sprintf("f%d", time.Now().Unix()%1000000)
	result, err := engine.CreateTemplate(ctx, &tabula.Template{
		TenantID: tenant, ProjectID: "app", Name: "note",
	}, []*tabula.Field{
		{Name: "body", Type: "text"},
	})
	require.NoError(t, err)
	assert.True(t, result.OK, "warnings: %v", result.Warnings)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(cleanupCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s_app_note", tenant))
	})
}
