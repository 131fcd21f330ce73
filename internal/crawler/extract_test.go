package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractCaseText(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
		<div class="paragWrapper">  [1] The motion is granted.  </div>
		<div class="paragWrapper"></div>
		<div class="paragWrapper">[2] No order as to costs.</div>
		<div class="sidebar">navigation noise</div>
	</body></html>`)

	text, err := ExtractCaseText(body)
	require.NoError(t, err)
	require.Equal(t, "[1] The motion is granted.\n[2] No order as to costs.", text)
}

func TestExtractCaseText_NoParagraphs(t *testing.T) {
	t.Parallel()

	text, err := ExtractCaseText([]byte(`<html><body><p>maintenance page</p></body></html>`))
	require.ErrorIs(t, err, ErrNoContent)
	require.Empty(t, text)
}

func TestExtractDocumentLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
	<div id="filterableList">
		<a href="/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html">Smith v Jones</a>
		<a href="/en/on/onsc/doc/2025/2025onsc2/2025onsc2.html">R v Doe</a>
		<a href="/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html">Smith v Jones (duplicate)</a>
		<a href="/en/on/onsc/nav/date/2024/">Previous year</a>
	</div>
	<a href="/en/on/onsc/doc/2025/2025onsc9/2025onsc9.html">outside the list</a>
	</body></html>`)

	links, err := ExtractDocumentLinks(body, "https://example.org/en/on/onsc/nav/date/2025/")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.org/en/on/onsc/doc/2025/2025onsc1/2025onsc1.html",
		"https://example.org/en/on/onsc/doc/2025/2025onsc2/2025onsc2.html",
	}, links)
}

func TestExtractDocumentLinks_NoList(t *testing.T) {
	t.Parallel()

	links, err := ExtractDocumentLinks([]byte(`<html><body><p>not found</p></body></html>`), "https://example.org/")
	require.NoError(t, err)
	require.Empty(t, links)
}
