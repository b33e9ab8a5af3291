package internal

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// TableName derives the physical table name for a template. The same
// derivation backs the platform type id, so the two can never drift.
func TableName(tenantID, projectID, name string) string {
	return fmt.Sprintf("%s_%s_%s", tenantID, projectID, name)
}

// MaxNameLength computes the longest template name that still fits the
// identifier ceiling once the tenant and project prefixes and their two
// separators are accounted for.
func MaxNameLength(ceiling int, tenantID, projectID string) int {
	return ceiling - len(tenantID) - len(projectID) - 2
}
