package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_NilIsSafe(t *testing.T) {
	var cb *CircuitBreaker
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
}
