package crawler

import (
	"net/url"
	"path"
	"strings"
)

// CaseKey derives the content key for a document URL: the final path segment
// with its extension stripped. ".../2025onsc1/2025onsc1.html" -> "2025onsc1".
func CaseKey(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	base := path.Base(trimmed)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// IsDocumentURL reports whether the href points at a case document.
func IsDocumentURL(href string) bool {
	return strings.Contains(href, "/doc/")
}

// ResolveURL resolves href against base, returning "" for unparseable input.
func ResolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// ContainsRateLimitPhrase scans the body for any of the configured throttle
// phrases, case-insensitively.
func ContainsRateLimitPhrase(body []byte, phrases []string) bool {
	if len(body) == 0 || len(phrases) == 0 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
