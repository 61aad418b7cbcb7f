package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"locked", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked (262)"), true},
		{"busy code", errors.New("sqlite: step: SQLITE_BUSY"), true},
		{"constraint", errors.New("UNIQUE constraint failed: book_locations.volume_id"), false},
		{"unrelated", errors.New("no such table: books"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isBusyError(tt.err))
		})
	}
}

func TestBackoff_Capped(t *testing.T) {
	assert.GreaterOrEqual(t, backoff(0), retryBaseDelay)
	assert.LessOrEqual(t, backoff(0), retryBaseDelay+retryBaseDelay/4)
	assert.Equal(t, retryMaxDelay, backoff(40))
}

func TestWithRetry_RetriesBusyThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonBusyErrorReturnsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, func() error {
		calls++
		return errors.New("syntax error")
	})

	require.EqualError(t, err, "syntax error")
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := withRetry(ctx, 100, func() error {
		return errors.New("database is locked")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
