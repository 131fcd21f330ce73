package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://example.org/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html", "2025onsc1"},
		{"https://example.org/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html/", "2025onsc1"},
		{"https://example.org/doc/2024scc12", "2024scc12"},
		{"https://example.org/doc/2024scc12.pdf", "2024scc12"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CaseKey(tc.url), "url %s", tc.url)
	}
}

func TestIsDocumentURL(t *testing.T) {
	t.Parallel()

	require.True(t, IsDocumentURL("/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html"))
	require.False(t, IsDocumentURL("/en/on/onsc/nav/date/2025/"))
	require.False(t, IsDocumentURL("#"))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://example.org/en/doc/2025onsc1",
		ResolveURL("https://example.org/en/nav/2025/", "/en/doc/2025onsc1"))
	require.Equal(t,
		"https://other.org/doc/x",
		ResolveURL("https://example.org/", "https://other.org/doc/x"))
	require.Equal(t, "", ResolveURL("https://example.org/", "http://bad\x7f.org/"))
}

func TestContainsRateLimitPhrase(t *testing.T) {
	t.Parallel()

	phrases := []string{"rate limit exceeded", "too many requests", "access denied"}

	require.True(t, ContainsRateLimitPhrase([]byte("<h1>Rate Limit Exceeded</h1>"), phrases))
	require.True(t, ContainsRateLimitPhrase([]byte("error: TOO MANY REQUESTS"), phrases))
	require.False(t, ContainsRateLimitPhrase([]byte("<div>judgment text</div>"), phrases))
	require.False(t, ContainsRateLimitPhrase(nil, phrases))
	require.False(t, ContainsRateLimitPhrase([]byte("anything"), nil))
}
