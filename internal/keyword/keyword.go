// Package keyword implements the case-insensitive term matching shared by
// posting tagging, exclusion filtering and the compatibility fallback.
package keyword

import (
	"sort"
	"strings"
	"unicode"
)

// Match returns the keywords whose lowercase form occurs as a substring of the
// lowercased text, preserving input order. Blank keywords never match.
func Match(text string, keywords []string) []string {
	matched := make([]string, 0, len(keywords))
	if text == "" {
		return matched
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(lower, needle) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// ContainsAny reports whether any of the terms occurs (case-insensitive) in
// the text. Used to discard postings carrying an excluded term.
func ContainsAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// Normalize trims the terms and drops blanks and case-insensitive
// duplicates, keeping the first spelling seen.
func Normalize(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Percentage is matched/total scaled to 0–100; zero when total is zero.
func Percentage(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(matched) / float64(total) * 100
}

// CommonWords returns the distinct lowercase words present in both texts,
// sorted. Words are whitespace-separated with surrounding punctuation removed.
func CommonWords(a, b string) []string {
	left := wordSet(a)
	if len(left) == 0 {
		return []string{}
	}
	common := make([]string, 0)
	for w := range wordSet(b) {
		if _, ok := left[w]; ok {
			common = append(common, w)
		}
	}
	sort.Strings(common)
	return common
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		w := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
