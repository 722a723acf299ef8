package dbretry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/roostlabs/roost/internal/database/dbretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "plain error", err: errors.New("boom"), retryable: false},
		{name: "constraint violation", err: errors.New("duplicate key value violates unique constraint"), retryable: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "canceled", err: context.Canceled, retryable: true},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), retryable: true},
		{name: "connection reset", err: errors.New("read tcp 127.0.0.1:5432: connection reset by peer"), retryable: true},
		{name: "broken pipe", err: errors.New("write: broken pipe"), retryable: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connection refused"), retryable: true},
		{name: "io timeout", err: errors.New("read tcp: i/o timeout"), retryable: true},
		{name: "unexpected eof", err: errors.New("unexpected EOF"), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestOperationRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	result, err := dbretry.Operation(t.Context(), func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("dial tcp 127.0.0.1:5432: connection refused")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

func TestOperationStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("duplicate key value violates unique constraint")
	attempts := 0
	_, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
		attempts++
		return 0, permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts, "permanent errors are not retried")
}

func TestNoResult(t *testing.T) {
	t.Parallel()

	require.NoError(t, dbretry.NoResult(t.Context(), func(context.Context) error {
		return nil
	}))

	failure := errors.New("boom")
	err := dbretry.NoResult(t.Context(), func(context.Context) error {
		return failure
	})
	assert.ErrorIs(t, err, failure)
}
