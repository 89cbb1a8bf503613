package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"https with path", "https://Example.com/path/", "Example.com/path"},
		{"upper http double slash", "HTTP://x.com//", "x.com"},
		{"mixed case https", "hTTpS://a.com", "a.com"},
		{"no scheme", "a.com/b", "a.com/b"},
		{"zero width space", "\u200bhttps://a\u200c.com\u200d/\ufeff", "a.com"},
		{"surrounding whitespace", "  \thttp://a.com/ \n", "a.com"},
		{"inner slashes kept", "a.com//b//", "a.com//b"},
		{"https then http", "https://http://a.com", "a.com"},
		{"whitespace after scheme", "http:// a.com/", "a.com"},
		{"unicode whitespace", " a.com\u3000", "a.com"},
		{"ascii separators", "\x1ca.com\x1f", "a.com"},
		{"separator after scheme", "https://\x1dhttp://a.com\x1e/", "a.com"},
		{"only slashes", "///", ""},
		{"empty", "", ""},
		{"ftp untouched", "ftp://a.com/", "ftp://a.com"},
		{"scheme only", "https://", "https:"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, Clean(tc.input))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com/path/",
		"http://https://a.com/ /",
		"https:// http:// a.com //",
		" \ufeffhttp://\u200bx.com/",
		"plain",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func FuzzClean(f *testing.F) {
	seeds := []string{
		"https://Example.com/path/",
		"HTTP://x.com//",
		"\u200b http://a.com/ \ufeff",
		"http://https://a.com",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		cleaned := Clean(raw)
		if again := Clean(cleaned); again != cleaned {
			t.Fatalf("Clean not idempotent for %q: %q then %q", raw, cleaned, again)
		}
		if strings.ContainsAny(cleaned, "\u200b\u200c\u200d\ufeff") {
			t.Fatalf("Clean(%q) = %q still contains zero width characters", raw, cleaned)
		}
		if strings.HasSuffix(cleaned, "/") {
			t.Fatalf("Clean(%q) = %q has a trailing slash", raw, cleaned)
		}
		if cleaned != strings.TrimFunc(cleaned, isSpace) {
			t.Fatalf("Clean(%q) = %q has surrounding whitespace", raw, cleaned)
		}
	})
}
