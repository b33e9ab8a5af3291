package tabula

import (
	"fmt"
	"regexp"
)

// Default identifier limits. Postgres truncates identifiers at 63 bytes; the
// engine keeps a stricter ceiling so composite suffixes always fit.
const (
	DefaultMaxIdentifierLength = 32
	DefaultStringMaxLength     = 255
	DefaultDecimalPrecision    = 10
	DefaultDecimalScale        = 2
)

// namePattern is the shape every template and field name must match.
var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// reservedNames are column names owned by the engine; user fields may not
// shadow them.
var reservedNames = map[string]struct{}{
	"id":         {},
	"uuid":       {},
	"created":    {},
	"updated":    {},
	"tenant_id":  {},
	"project_id": {},
	"title":      {},
}

// IsReservedName reports whether name collides with a system column.
func IsReservedName(name string) bool {
	_, ok := reservedNames[name]
	return ok
}

// ReservedNames returns the system column names in stable order.
func ReservedNames() []string {
	return []string{"id", "uuid", "created", "updated", "tenant_id", "project_id", "title"}
}

// ValidNamePattern reports whether name matches the identifier grammar.
func ValidNamePattern(name string) bool {
	return namePattern.MatchString(name)
}

// TableNames configures the registry's own storage tables.
type TableNames struct {
	TemplateRegistry string `json:"template_registry"`
	TemplateFields   string `json:"template_fields"`
}

// DatabaseConfig holds pool-level connection settings.
type DatabaseConfig struct {
	DSN             string `json:"dsn"`
	MaxConnections  int32  `json:"max_connections"`
	MinConnections  int32  `json:"min_connections"`
	MaxConnIdleMins int    `json:"max_conn_idle_mins"`
}

// IdentifierConfig bounds generated table and column names.
type IdentifierConfig struct {
	// MaxLength is the ceiling for a full physical identifier
	// (tenant + project + name, separators included).
	MaxLength int `json:"max_length"`
}

// ReferenceConfig tunes the reference resolver.
type ReferenceConfig struct {
	// SearchLimit caps rows returned by reference autocomplete search.
	SearchLimit int `json:"search_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Config is the top-level engine configuration.
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Tables     TableNames       `json:"tables"`
	Identifier IdentifierConfig `json:"identifier"`
	Reference  ReferenceConfig  `json:"reference"`
	Logging    LoggingConfig    `json:"logging"`
}

// DefaultConfig returns a Config with sensible defaults. The DSN must still
// be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConnections:  10,
			MinConnections:  2,
			MaxConnIdleMins: 30,
		},
		Tables: TableNames{
			TemplateRegistry: "template_registry",
			TemplateFields:   "template_fields",
		},
		Identifier: IdentifierConfig{
			MaxLength: DefaultMaxIdentifierLength,
		},
		Reference: ReferenceConfig{
			SearchLimit: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigError describes an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return &ConfigError{Field: "database.dsn", Message: "must not be empty"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.max_connections", Message: "must be positive"}
	}
	if c.Database.MinConnections < 0 || c.Database.MinConnections > c.Database.MaxConnections {
		return &ConfigError{Field: "database.min_connections", Message: "must be between 0 and max_connections"}
	}
	if c.Tables.TemplateRegistry == "" || !ValidNamePattern(c.Tables.TemplateRegistry) {
		return &ConfigError{Field: "tables.template_registry", Message: "must match ^[a-z0-9_]+$"}
	}
	if c.Tables.TemplateFields == "" || !ValidNamePattern(c.Tables.TemplateFields) {
		return &ConfigError{Field: "tables.template_fields", Message: "must match ^[a-z0-9_]+$"}
	}
	if c.Tables.TemplateRegistry == c.Tables.TemplateFields {
		return &ConfigError{Field: "tables", Message: "registry and fields tables must differ"}
	}
	if c.Identifier.MaxLength < 8 || c.Identifier.MaxLength > 63 {
		return &ConfigError{Field: "identifier.max_length", Message: "must be between 8 and 63"}
	}
	if c.Reference.SearchLimit <= 0 {
		return &ConfigError{Field: "reference.search_limit", Message: "must be positive"}
	}
	return nil
}
