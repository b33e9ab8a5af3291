package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the schema sync engine.
// Callers may register a real OpenTelemetry emitter (or a test stub) via
// RegisterTelemetryEmitter. By default the emitter is a no-op, avoiding any
// hard dependency on an OTEL SDK.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. Callers (e.g.
// service wiring) can provide an OpenTelemetry-backed emitter or a test meter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitSyncLatency records the duration (milliseconds) of one table sync.
// name: "schema_sync_latency_ms" with label {"table": "<table>"}
func EmitSyncLatency(ctx context.Context, table string, ms int64) {
	emit(ctx, "schema_sync_latency_ms", map[string]string{"table": table}, ms)
}

// EmitSyncOutcome records one column operation of a table sync.
// name: "schema_sync_column_ops" with labels {"table", "op", "outcome"}
func EmitSyncOutcome(ctx context.Context, table, op string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	emit(ctx, "schema_sync_column_ops", map[string]string{
		"table": table, "op": op, "outcome": outcome,
	}, int64(1))
}

// EmitRecordWrite records rows written to a generated table.
// name: "record_writes" with label {"table": "<table>"}
func EmitRecordWrite(ctx context.Context, table string, rows int64) {
	emit(ctx, "record_writes", map[string]string{"table": table}, rows)
}
