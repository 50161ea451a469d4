package spotify

import (
	"strings"
	"unicode"
)

// noiseTokens are dropped anywhere in a title or artist.
var noiseTokens = map[string]struct{}{
	"clean":      {},
	"deluxe":     {},
	"edition":    {},
	"edit":       {},
	"explicit":   {},
	"feat":       {},
	"featuring":  {},
	"ft":         {},
	"live":       {},
	"mix":        {},
	"mono":       {},
	"radio":      {},
	"remaster":   {},
	"remastered": {},
	"stereo":     {},
	"version":    {},
}

// suffixMarkers open a " - ..." tail that is dropped whole, as in
// "Happy - From Despicable Me 2" or "Heroes - 2017 Remaster".
var suffixMarkers = map[string]struct{}{
	"from":       {},
	"live":       {},
	"remaster":   {},
	"remastered": {},
	"single":     {},
	"acoustic":   {},
	"bonus":      {},
	"radio":      {},
	"mono":       {},
	"stereo":     {},
}

func normalizeTitleArtist(title string, artist string) (string, string) {
	return normalizeSearchInput(title), normalizeSearchInput(artist)
}

// normalizeSearchInput lowercases, removes bracketed and dash-suffix
// annotations, folds punctuation to single spaces and drops noise tokens.
func normalizeSearchInput(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	lower := strings.ToLower(input)
	lower = stripAnnotatedSuffix(stripBracketedSegments(lower))
	lower = strings.NewReplacer("'", "", "’", "", "&", " and ").Replace(lower)
	tokens := strings.Fields(cleanSeparators(lower))

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, drop := noiseTokens[token]; drop {
			continue
		}
		cleaned = append(cleaned, token)
	}

	return strings.Join(cleaned, " ")
}

// stripAnnotatedSuffix cuts at the first " - " whose tail mentions a marker.
// Digits are skipped so "2011 remaster" still counts.
func stripAnnotatedSuffix(input string) string {
	head, tail, found := strings.Cut(input, " - ")
	if !found || strings.TrimSpace(head) == "" {
		return input
	}
	for _, token := range strings.Fields(cleanSeparators(tail)) {
		if isDigits(token) {
			continue
		}
		if _, ok := suffixMarkers[token]; ok {
			return head
		}
		break
	}
	return input
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func cleanSeparators(input string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}

	return out.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func fallbackIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
