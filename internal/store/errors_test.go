package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pq.Error{Code: "55P03"}))
	assert.True(t, isRetryable(&pq.Error{Code: "40P01"}))
	assert.True(t, isRetryable(&pq.Error{Code: "40001"}))

	assert.False(t, isRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("plain error")))
	assert.False(t, isRetryable(nil))
}

func TestIsRetryableWrapped(t *testing.T) {
	wrapped := fmt.Errorf("failed to lock wallet: %w", &pq.Error{Code: "55P03"})
	assert.True(t, isRetryable(wrapped))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))

	assert.False(t, isUniqueViolation(&pq.Error{Code: "55P03"}))
	assert.False(t, isUniqueViolation(errors.New("plain error")))
}
