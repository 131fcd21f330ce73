package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

func fastPolicy(attempts int) *crawler.RetryPolicy {
	return crawler.NewRetryPolicy(crawler.RetryConfig{
		MaxAttempts: attempts,
		ThrottleMin: time.Millisecond,
		ThrottleMax: 2 * time.Millisecond,
	})
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>judgment</body></html>"))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"}, fastPolicy(3), zap.NewNop())
	ok, outcome := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL})

	require.True(t, ok)
	require.Equal(t, crawler.OutcomeSuccess, outcome.Kind)
	require.Equal(t, http.StatusOK, outcome.StatusCode)
	require.Contains(t, string(outcome.Body), "judgment")
}

func TestFetch_TooManyRequestsShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := New(Config{}, fastPolicy(3), zap.NewNop())
	ok, outcome := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL})

	require.False(t, ok)
	require.Equal(t, crawler.OutcomeRateLimited, outcome.Kind)
	require.Equal(t, http.StatusTooManyRequests, outcome.StatusCode)
	// No retries against a throttling upstream.
	require.Equal(t, int32(1), hits.Load())
}

func TestFetch_RateLimitPhraseShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<html><body><h1>Rate Limit Exceeded</h1></body></html>"))
	}))
	defer server.Close()

	f := New(Config{RateLimitPhrases: []string{"rate limit exceeded"}}, fastPolicy(3), zap.NewNop())
	ok, outcome := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL})

	require.False(t, ok)
	require.Equal(t, crawler.OutcomeRateLimited, outcome.Kind)
	require.Equal(t, int32(1), hits.Load())
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body>recovered</body></html>"))
	}))
	defer server.Close()

	f := New(Config{}, fastPolicy(3), zap.NewNop())

	start := time.Now()
	ok, outcome := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL})

	require.True(t, ok)
	require.Equal(t, int32(2), hits.Load())
	require.Contains(t, string(outcome.Body), "recovered")
	// One backoff sleep of at least the doubled base happened in between.
	require.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestFetch_ExhaustedRetriesReportTransient(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(Config{}, fastPolicy(2), zap.NewNop())
	ok, outcome := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL})

	require.False(t, ok)
	require.Equal(t, crawler.OutcomeTransientError, outcome.Kind)
	require.Error(t, outcome.Err)
	require.Equal(t, int32(2), hits.Load())
}

func TestFetch_CanceledContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{}, fastPolicy(3), zap.NewNop())
	ok, outcome := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL})

	require.False(t, ok)
	require.Equal(t, crawler.OutcomeTransientError, outcome.Kind)
}
