package reference

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	rangeWords = regexp.MustCompile(`\s*(?:tot en met|tot-en-met|t/m|t\s*m|tm)\s*`)
	listWords  = regexp.MustCompile(`\s*(?:en|&|plus)\s*`)
	commaRuns  = regexp.MustCompile(`,+`)
)

// normalizeVerseSpec rewrites the Dutch list and range words into a canonical
// form: "-" for ranges and "," for lists.
//
//	"1 t/m 3 en 6" -> "1-3,6"
//	"1-4; 6"       -> "1-4, 6"
func normalizeVerseSpec(spec string) string {
	text := strings.ToLower(strings.TrimSpace(spec))
	text = rangeWords.ReplaceAllString(text, "-")
	text = listWords.ReplaceAllString(text, ",")
	text = strings.ReplaceAll(text, ";", ",")
	text = commaRuns.ReplaceAllString(text, ",")
	return strings.TrimSpace(text)
}

// parseVerseSpec expands a verse specification into ascending unique verses.
func parseVerseSpec(spec string) ([]int, error) {
	normalized := normalizeVerseSpec(spec)

	var tokens []string
	for _, tok := range strings.Split(normalized, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("verse specification is empty")
	}

	seen := make(map[int]struct{})
	for _, tok := range tokens {
		if strings.Contains(tok, "-") {
			start, end, err := parseRange(tok)
			if err != nil {
				return nil, err
			}
			for v := start; v <= end; v++ {
				seen[v] = struct{}{}
			}
			continue
		}
		v, ok := parseVerseNumber(tok)
		if !ok {
			return nil, fmt.Errorf("invalid verse: %q", tok)
		}
		seen[v] = struct{}{}
	}

	verses := make([]int, 0, len(seen))
	for v := range seen {
		verses = append(verses, v)
	}
	sort.Ints(verses)
	return verses, nil
}

func parseRange(tok string) (int, int, error) {
	parts := strings.Split(tok, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range: %q", tok)
	}
	start, okStart := parseVerseNumber(strings.TrimSpace(parts[0]))
	end, okEnd := parseVerseNumber(strings.TrimSpace(parts[1]))
	if !okStart || !okEnd || start > end {
		return 0, 0, fmt.Errorf("invalid range: %q", tok)
	}
	return start, end, nil
}

// parseVerseNumber accepts digits only, in 1..MaxVerseNumber.
func parseVerseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxVerseNumber {
		return 0, false
	}
	return n, true
}
