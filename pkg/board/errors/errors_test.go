package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want berrors.Category
	}{
		{"http 500", &berrors.HTTPError{StatusCode: 500}, berrors.CategoryTransient},
		{"http 503", &berrors.HTTPError{StatusCode: 503}, berrors.CategoryTransient},
		{"http 429", &berrors.HTTPError{StatusCode: 429}, berrors.CategoryTransient},
		{"http 401", &berrors.HTTPError{StatusCode: 401}, berrors.CategoryPermanent},
		{"http 402", &berrors.HTTPError{StatusCode: 402}, berrors.CategoryQuota},
		{"http 400", &berrors.HTTPError{StatusCode: 400}, berrors.CategoryPermanent},
		{"timeout", &berrors.TimeoutError{Operation: "gen", Limit: time.Minute}, berrors.CategoryTransient},
		{"stream", &berrors.StreamError{Message: "broken"}, berrors.CategoryTransient},
		{"render", &berrors.RenderError{Renderer: "Mermaid", Message: "bad"}, berrors.CategoryContentInvalid},
		{"content", &berrors.ContentError{Kind: "table"}, berrors.CategoryContentInvalid},
		{"quota", &berrors.QuotaError{Resource: "nodes", Limit: 50}, berrors.CategoryQuota},
		{"cancelled", context.Canceled, berrors.CategoryPermanent},
		{"unknown", stderrors.New("mystery"), berrors.CategoryPermanent},
		{"wrapped stream", fmt.Errorf("outer: %w", &berrors.StreamError{Message: "inner"}), berrors.CategoryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, berrors.Categorize(tt.err))
		})
	}
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, berrors.IsRetryable(&berrors.StreamError{Message: "x"}))
	assert.False(t, berrors.IsRetryable(&berrors.QuotaError{Resource: "boards"}))
	assert.True(t, berrors.IsContentInvalid(&berrors.RenderError{Renderer: "Mermaid"}))
	assert.True(t, berrors.IsQuota(&berrors.QuotaError{Resource: "boards"}))
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result := berrors.WithRetry(berrors.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &berrors.StreamError{Message: "flaky"}
		}
		return "ok", nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	result := berrors.WithRetry(berrors.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	}, func() (struct{}, error) {
		attempts++
		return struct{}{}, &berrors.QuotaError{Resource: "nodes"}
	})

	require.Error(t, result.Err)
	assert.Equal(t, 1, attempts)

	var catErr *berrors.CategorizedError
	require.True(t, stderrors.As(result.Err, &catErr))
	assert.Equal(t, berrors.CategoryQuota, catErr.Category)
}

func TestWithRetryExhausts(t *testing.T) {
	result := berrors.WithRetry(berrors.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  1.0,
	}, func() (struct{}, error) {
		return struct{}{}, &berrors.StreamError{Message: "always down"}
	})

	require.Error(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := berrors.WithRetryContext(ctx, berrors.DefaultRetry, func(ctx context.Context) (struct{}, error) {
		t.Fatal("must not run with cancelled context")
		return struct{}{}, nil
	})

	require.Error(t, result.Err)
	assert.Equal(t, 0, result.Attempts)
}
