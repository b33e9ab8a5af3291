package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMetric struct {
	name   string
	labels map[string]string
	value  any
}

func TestTelemetryEmitters(t *testing.T) {
	var captured []capturedMetric
	RegisterTelemetryEmitter(func(ctx context.Context, name string, labels map[string]string, value any) {
		captured = append(captured, capturedMetric{name: name, labels: labels, value: value})
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })

	ctx := context.Background()
	EmitSyncLatency(ctx, "acme_crm_invoice", 42)
	EmitSyncOutcome(ctx, "acme_crm_invoice", "add", false)
	EmitSyncOutcome(ctx, "acme_crm_invoice", "modify", true)
	EmitRecordWrite(ctx, "acme_crm_invoice", 1)

	require.Len(t, captured, 4)

	assert.Equal(t, "schema_sync_latency_ms", captured[0].name)
	assert.Equal(t, int64(42), captured[0].value)
	assert.Equal(t, "acme_crm_invoice", captured[0].labels["table"])

	assert.Equal(t, "ok", captured[1].labels["outcome"])
	assert.Equal(t, "failed", captured[2].labels["outcome"])
	assert.Equal(t, "modify", captured[2].labels["op"])

	assert.Equal(t, "record_writes", captured[3].name)
}

func TestRegisterTelemetryEmitter_NilResetsToNoop(t *testing.T) {
	RegisterTelemetryEmitter(nil)
	// must not panic
	EmitSyncLatency(context.Background(), "t", 1)
}
