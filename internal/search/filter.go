// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package search

import (
	"strings"
	"unicode"

	"github.com/resonance-audio/resonance/internal/apierr"
)

const maxFilterLength = 1024

var comparisonOperators = []string{"!=", "<=", ">=", "=", "<", ">"}
var comparisonKeywords = []string{" TO ", " EXISTS", " IN ", " NOT "}

// ValidateFilter rejects a user-supplied filter string before it ever
// reaches the search backend (spec §4.8, security-critical):
//   - length <= 1024, non-empty after trimming
//   - no control characters other than space/tab/CR/LF
//   - balanced quotes and parentheses (respecting backslash escapes;
//     quotes suppress paren counting while open)
//   - every identifier preceding a comparison operator or keyword must be
//     in the per-index allowlist (comparison is case-insensitive)
func ValidateFilter(index IndexName, filter string) error {
	if len(filter) > maxFilterLength {
		return apierr.Of(apierr.KindValidation, "filter exceeds maximum length")
	}
	if strings.TrimSpace(filter) == "" {
		return apierr.Of(apierr.KindValidation, "filter is empty")
	}
	if err := checkControlChars(filter); err != nil {
		return err
	}
	if err := checkBalance(filter); err != nil {
		return err
	}
	return checkAllowlist(index, filter)
}

func checkControlChars(s string) error {
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			continue
		}
		if unicode.IsControl(r) {
			return apierr.Of(apierr.KindValidation, "filter contains a disallowed control character")
		}
	}
	return nil
}

func checkBalance(s string) error {
	var quoteChar rune
	inQuote := false
	parenDepth := 0
	escaped := false

	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if inQuote {
			if r == quoteChar {
				inQuote = false
			}
			continue
		}
		switch r {
		case '\'', '"':
			inQuote = true
			quoteChar = r
		case '(':
			parenDepth++
		case ')':
			parenDepth--
			if parenDepth < 0 {
				return apierr.Of(apierr.KindValidation, "unbalanced parentheses in filter")
			}
		}
	}
	if inQuote {
		return apierr.Of(apierr.KindValidation, "unbalanced quotes in filter")
	}
	if parenDepth != 0 {
		return apierr.Of(apierr.KindValidation, "unbalanced parentheses in filter")
	}
	return nil
}

// checkAllowlist tokenizes on comparison operators/keywords and checks
// that the identifier preceding each belongs to the index's allowlist.
// Logical operators and/or/not are skipped (they never precede a
// comparison directly as an identifier).
func checkAllowlist(index IndexName, filter string) error {
	allowed := filterableAllowlist[index]
	upper := strings.ToUpper(filter)

	positions := findTokenPositions(upper)
	for _, pos := range positions {
		ident := precedingIdentifier(filter, pos)
		if ident == "" {
			continue
		}
		lower := strings.ToLower(ident)
		if lower == "and" || lower == "or" || lower == "not" {
			continue
		}
		if _, ok := allowed[lower]; !ok {
			return apierr.Of(apierr.KindValidation, "disallowed filter attribute: "+ident)
		}
	}
	return nil
}

// findTokenPositions returns the start index of every comparison
// operator or keyword occurrence in the (already-uppercased) filter.
func findTokenPositions(upper string) []int {
	var positions []int
	for _, op := range comparisonOperators {
		opUpper := strings.ToUpper(op)
		start := 0
		for {
			idx := strings.Index(upper[start:], opUpper)
			if idx < 0 {
				break
			}
			positions = append(positions, start+idx)
			start += idx + len(opUpper)
		}
	}
	for _, kw := range comparisonKeywords {
		kwUpper := strings.ToUpper(kw)
		start := 0
		for {
			idx := strings.Index(upper[start:], kwUpper)
			if idx < 0 {
				break
			}
			positions = append(positions, start+idx)
			start += idx + len(kwUpper)
		}
	}
	return positions
}

// precedingIdentifier extracts the contiguous identifier-like token
// immediately before position pos in filter (skipping whitespace).
func precedingIdentifier(filter string, pos int) string {
	end := pos
	for end > 0 && filter[end-1] == ' ' {
		end--
	}
	start := end
	for start > 0 && isIdentByte(filter[start-1]) {
		start--
	}
	return filter[start:end]
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
