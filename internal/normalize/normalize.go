// Package normalize cleans raw URL strings taken from threat feeds so they can
// be compared and written as blocklist entries.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	zeroWidthChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	httpsPrefix    = regexp.MustCompile(`(?i)^https://`)
	httpPrefix     = regexp.MustCompile(`(?i)^http://`)
)

// Clean removes zero width characters, surrounding whitespace, trailing
// slashes and a leading http:// or https:// scheme from raw.
//
// Stripping the scheme can expose whitespace or slashes that an earlier step
// would have removed ("http:// a.com/"), so the steps are repeated until the
// value stops changing. Every repetition shortens the string.
func Clean(raw string) string {
	for {
		next := cleanOnce(raw)
		if next == raw {
			return next
		}
		raw = next
	}
}

func cleanOnce(raw string) string {
	out := zeroWidthChars.ReplaceAllString(raw, "")
	out = strings.TrimFunc(out, isSpace)
	out = strings.TrimRight(out, "/")
	out = httpsPrefix.ReplaceAllString(out, "")
	return httpPrefix.ReplaceAllString(out, "")
}

// isSpace also treats the ASCII separators U+001C to U+001F as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
