// Package tokenizer normalises text for indexing and querying. It
// lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and stems the survivors with the Snowball (Porter2) stemmer.
//
// Token positions are assigned over the token stream BEFORE stop-word
// removal. Indexing and querying must share this rule: a phrase query
// matches via position deltas, and those deltas only line up if removed
// stop-words leave the same gaps on both sides.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

const (
	minTokenLength = 2
	maxTokenLength = 25
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single normalised term with its pre-removal position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into stemmed, lowercased Tokens with stop-words
// removed. Empty input yields an empty slice, never an error.
func Tokenize(text string) []Token {
	tokens, _ := Analyze(text)
	return tokens
}

// Analyze is Tokenize plus the raw token count before stop-word removal,
// which the index keeps as per-document length metadata.
func Analyze(text string) (tokens []Token, rawCount int) {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens = make([]Token, 0, len(words)/2)
	for pos, word := range words {
		if len(word) < minTokenLength || len(word) > maxTokenLength {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := Stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     stemmed,
			Position: pos,
		})
	}
	return tokens, len(words)
}

// Stem maps a word to its Snowball stem, iterated to a fixpoint so that
// Stem(Stem(w)) == Stem(w) holds for every input.
func Stem(word string) string {
	for i := 0; i < 3; i++ {
		stemmed, err := snowball.Stem(word, "english", true)
		if err != nil || stemmed == "" || stemmed == word {
			return word
		}
		word = stemmed
	}
	return word
}

// IsStopWord reports whether the lowercased word is in the fixed stop-word
// set.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}
