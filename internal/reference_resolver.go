package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/tabula"
	"go.uber.org/zap"
)

// Resolver loads, validates and searches the targets of reference fields.
// It dispatches on the target type: built-in platform entities go through
// the BuiltinEntityLookup, types carrying the tenant's prefix are dynamic
// entities read from their generated table, anything else falls back to a
// generic table lookup. Every path fails soft: a broken reference degrades
// to an absent value, never an error on the read.
type Resolver struct {
	store       *Store
	records     *RecordRepository
	builtin     tabula.BuiltinEntityLookup
	searchLimit int
}

func NewResolver(store *Store, records *RecordRepository, builtin tabula.BuiltinEntityLookup, searchLimit int) *Resolver {
	if searchLimit <= 0 {
		searchLimit = 10
	}
	return &Resolver{store: store, records: records, builtin: builtin, searchLimit: searchLimit}
}

// Resolve attaches the loaded target row(s) of every non-empty reference
// field under a "{field}_resolved" key. Single-valued fields with exactly
// one id resolve to a single row, everything else to an array.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, record tabula.Record, referenceFields []*tabula.Field) tabula.Record {
	for _, field := range referenceFields {
		raw, present := record[field.Name]
		if !present || raw == nil {
			continue
		}
		ids := tabula.TargetIDs(raw)
		if len(ids) == 0 {
			continue
		}

		desc := field.ReferenceDescriptor()
		resolved := make([]tabula.Record, 0, len(ids))
		for _, id := range ids {
			row, ok := r.LoadReferenced(ctx, desc.TargetType, id, tenantID)
			if ok {
				resolved = append(resolved, row)
			}
		}
		if len(resolved) == 0 {
			continue
		}

		key := field.Name + "_resolved"
		if !desc.Multiple && len(resolved) == 1 {
			record[key] = resolved[0]
		} else {
			record[key] = resolved
		}
	}
	return record
}

// LoadReferenced fetches one target row by id. A missing row, an unknown
// target type or any storage error all return (nil, false).
func (r *Resolver) LoadReferenced(ctx context.Context, targetType string, id int64, tenantID string) (tabula.Record, bool) {
	if targetType == "" {
		return nil, false
	}

	if r.builtin != nil && r.builtin.Supports(targetType) {
		breaker := GetBuiltinLookupBreaker()
		if breaker.IsOpen() {
			zap.S().Debugw("builtin reference load skipped, breaker open", "targetType", targetType, "id", id)
			return nil, false
		}
		row, err := r.builtin.Load(ctx, targetType, id)
		if err != nil {
			breaker.RecordFailure()
			zap.S().Warnw("builtin reference load failed", "targetType", targetType, "id", id, "err", err)
			return nil, false
		}
		breaker.RecordSuccess()
		if row == nil {
			return nil, false
		}
		r.attachLabel(row)
		return row, true
	}

	if strings.HasPrefix(targetType, tenantID+"_") {
		tpl, err := r.store.GetTemplateByTypeID(ctx, targetType)
		if err != nil {
			zap.S().Debugw("dynamic reference target unknown", "targetType", targetType, "err", err)
			return nil, false
		}
		row, err := r.records.Get(ctx, targetType, id)
		if err != nil {
			if !tabula.IsNotFoundError(err) {
				zap.S().Warnw("dynamic reference load failed", "targetType", targetType, "id", id, "err", err)
			}
			return nil, false
		}
		row["bundle"] = tpl.Name
		r.attachLabel(row)
		return row, true
	}

	row, err := r.records.Get(ctx, targetType, id)
	if err != nil {
		if !tabula.IsNotFoundError(err) {
			zap.S().Warnw("generic reference load failed", "targetType", targetType, "id", id, "err", err)
		}
		return nil, false
	}
	r.attachLabel(row)
	return row, true
}

// ValidateReference reports whether a target row exists and, when the field
// restricts target bundles, whether the target's bundle is allowed.
func (r *Resolver) ValidateReference(ctx context.Context, targetType string, id int64, desc tabula.ReferenceDescriptor, tenantID string) bool {
	row, ok := r.LoadReferenced(ctx, targetType, id, tenantID)
	if !ok {
		return false
	}
	if len(desc.TargetBundles) == 0 {
		return true
	}
	bundle := rowBundle(row)
	return desc.AllowsBundle(bundle)
}

// SearchReferenced finds candidate targets whose label matches the query,
// for autocomplete pickers. Bundle restrictions are applied after the
// lookup; failures yield an empty slice.
func (r *Resolver) SearchReferenced(ctx context.Context, targetType, query string, desc tabula.ReferenceDescriptor, tenantID string, limit int) []tabula.Record {
	if limit <= 0 || limit > r.searchLimit {
		limit = r.searchLimit
	}

	var rows []tabula.Record
	switch {
	case r.builtin != nil && r.builtin.Supports(targetType):
		breaker := GetBuiltinLookupBreaker()
		if breaker.IsOpen() {
			zap.S().Debugw("builtin reference search skipped, breaker open", "targetType", targetType)
			return nil
		}
		found, err := r.builtin.Search(ctx, targetType, query, limit)
		if err != nil {
			breaker.RecordFailure()
			zap.S().Warnw("builtin reference search failed", "targetType", targetType, "err", err)
			return nil
		}
		breaker.RecordSuccess()
		rows = found

	case strings.HasPrefix(targetType, tenantID+"_"):
		tpl, err := r.store.GetTemplateByTypeID(ctx, targetType)
		if err != nil {
			zap.S().Debugw("dynamic reference target unknown", "targetType", targetType, "err", err)
			return nil
		}
		labelColumn := "uuid"
		if tpl.HasTitle() {
			labelColumn = "title"
		}
		found, err := r.records.Search(ctx, targetType, labelColumn, query, desc.Sort, limit)
		if err != nil {
			zap.S().Warnw("dynamic reference search failed", "targetType", targetType, "err", err)
			return nil
		}
		for _, row := range found {
			row["bundle"] = tpl.Name
		}
		rows = found

	default:
		found, err := r.records.Search(ctx, targetType, "title", query, desc.Sort, limit)
		if err != nil {
			zap.S().Warnw("generic reference search failed", "targetType", targetType, "err", err)
			return nil
		}
		rows = found
	}

	if len(desc.TargetBundles) == 0 {
		return rows
	}
	filtered := rows[:0]
	for _, row := range rows {
		if desc.AllowsBundle(rowBundle(row)) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// attachLabel picks a display label from the first of title/name/label
// present and stores it under "label" when none exists yet.
func (r *Resolver) attachLabel(row tabula.Record) {
	if _, ok := row["label"]; ok {
		return
	}
	for _, key := range []string{"title", "name", "label"} {
		if v, ok := row[key]; ok && v != nil {
			if s := fmt.Sprintf("%v", v); s != "" {
				row["label"] = s
				return
			}
		}
	}
}

func rowBundle(row tabula.Record) string {
	for _, key := range []string{"bundle", "type"} {
		if v, ok := row[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}
