package fulltext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the minimum number of runes a token needs to be indexed.
const MinTokenLength = 2

// Tokenize splits text into folded search terms.
//
// The text is decomposed (NFKD), combining marks are removed and the result
// is case folded, so "Crème" and "CREME" yield the same term. Terms are
// separated by every rune that is neither a letter nor a digit. Terms shorter
// than MinTokenLength runes are dropped. Duplicates are kept, their count is
// the term frequency.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	// transformers keep state, build a fresh chain per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = strings.ToLower(text)
	}

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= MinTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
