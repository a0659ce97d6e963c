package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchErrorClassification(t *testing.T) {
	t.Parallel()

	notFound := NewFetchError("https://example.com/x", http.StatusNotFound, errors.New("Not Found"))
	require.True(t, errors.Is(notFound, ErrTransport))
	require.True(t, IsPermanent(notFound))

	throttled := NewFetchError("https://example.com/x", http.StatusTooManyRequests, errors.New("Too Many Requests"))
	require.True(t, errors.Is(throttled, ErrTransport))
	require.False(t, IsPermanent(throttled))

	reset := NewFetchError("https://example.com/x", 0, errors.New("connection reset by peer"))
	require.False(t, IsPermanent(reset))
	require.Contains(t, reset.Error(), "connection reset")

	wrapped := fmt.Errorf("fetch stage: %w", notFound)
	require.True(t, IsPermanent(wrapped))
	var fe *FetchError
	require.True(t, errors.As(wrapped, &fe))
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestIsPermanentIgnoresCancellation(t *testing.T) {
	t.Parallel()

	require.False(t, IsPermanent(nil))
	require.False(t, IsPermanent(context.Canceled))
	require.False(t, IsPermanent(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	require.True(t, IsPermanent(fmt.Errorf("bad url: %w", ErrPermanent)))
}

func TestInsertOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "inserted", Inserted.String())
	require.Equal(t, "duplicate", Duplicate.String())
	require.Equal(t, "unknown", InsertOutcome(0).String())
}
