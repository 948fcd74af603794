package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestStore_KeepsClassifiedErrors(t *testing.T) {
	assert.NoError(t, Store(nil))

	conflict := Conflict("phase is %s", "TESTING")
	assert.Same(t, conflict, Store(conflict))

	wrapped := Store(errors.New("connection reset"))
	assert.ErrorIs(t, wrapped, ErrTransientStore)
}

func TestGeneration_WrapsOnce(t *testing.T) {
	err := Generation(Generation(errors.New("timeout")))
	assert.ErrorIs(t, err, ErrExternalGenerationFailed)
	assert.Equal(t, "external generation failed: timeout", err.Error())
}

func TestQuotaExceededError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &QuotaExceededError{
		Bucket:  "auto_explain",
		Used:    20,
		Limit:   20,
		ResetAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.True(t, Classified(err))

	var qe *QuotaExceededError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, 20, qe.Limit)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "conflict", err: Conflict("stale version"), want: true},
		{name: "plain store failure", err: Store(errors.New("disk full")), want: true},
		{name: "serialization failure", err: Store(&pgconn.PgError{Code: "40001"}), want: true},
		{name: "deadlock", err: Store(&pgconn.PgError{Code: "40P01"}), want: true},
		{name: "connection failure", err: Store(&pgconn.PgError{Code: "08006"}), want: true},
		{name: "unique violation", err: Store(&pgconn.PgError{Code: "23505"}), want: false},
		{name: "not found", err: NotFound("session"), want: false},
		{name: "generation", err: Generation(errors.New("bad json")), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
