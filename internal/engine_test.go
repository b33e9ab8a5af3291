package internal

import (
	"errors"
	"testing"

	"github.com/lychee-technology/tabula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendSyncWarnings(t *testing.T) {
	engine := &Engine{}
	result := &tabula.MutationResult{OK: true}

	sync := &tabula.SyncResult{Table: "acme_crm_invoice"}
	sync.Append("amount", tabula.SyncOpAdd, nil)
	sync.Append("notes__value", tabula.SyncOpModify, errors.New("disk full"))

	engine.appendSyncWarnings(result, sync)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "notes__value")
	assert.Contains(t, result.Warnings[0], "disk full")
}

func TestAppendSyncWarnings_CleanSyncAddsNothing(t *testing.T) {
	engine := &Engine{}
	result := &tabula.MutationResult{OK: true}

	sync := &tabula.SyncResult{Table: "acme_crm_invoice"}
	sync.Append("amount", tabula.SyncOpAdd, nil)

	engine.appendSyncWarnings(result, sync)
	assert.Empty(t, result.Warnings)
}
