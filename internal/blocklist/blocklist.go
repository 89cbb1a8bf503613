// Package blocklist defines the entry set produced by extraction and its
// plain text rendering.
package blocklist

import (
	"sort"
	"strings"
)

// Entry is one blocklisted URL and the category the feed assigned to it.
type Entry struct {
	URL      string
	Category string
}

// Line renders the entry as "<url> # <category>".
func (e Entry) Line() string {
	return e.URL + " # " + e.Category
}

// Set holds unique entries. The same URL listed under two categories is kept
// as two entries.
type Set struct {
	entries map[Entry]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{entries: make(map[Entry]struct{})}
}

// Add stores the pair and reports whether it was new. Entries with an empty
// URL are ignored.
func (s *Set) Add(url, category string) bool {
	if url == "" {
		return false
	}
	e := Entry{URL: url, Category: category}
	if _, ok := s.entries[e]; ok {
		return false
	}
	s.entries[e] = struct{}{}
	return true
}

// Len returns the number of entries. A nil Set is empty.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Sorted returns the entries ordered by URL, then category.
func (s *Set) Sorted() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URL != out[j].URL {
			return out[i].URL < out[j].URL
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Render joins the sorted entry lines with newlines, without a trailing one.
func (s *Set) Render() string {
	entries := s.Sorted()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}
