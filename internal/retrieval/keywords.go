package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are dropped from spoken queries before keyword matching. Besides the
// usual function words it carries phone filler like "guys" and the verbs callers
// use to ask whether a material is taken.
var stopWords = map[string]struct{}{
	"what": {}, "is": {}, "the": {}, "how": {}, "much": {}, "do": {}, "you": {},
	"take": {}, "accept": {}, "can": {}, "i": {}, "we": {}, "does": {}, "are": {},
	"for": {}, "of": {}, "a": {}, "an": {}, "and": {}, "your": {}, "my": {},
	"there": {}, "where": {}, "when": {}, "will": {}, "would": {}, "could": {},
	"have": {}, "has": {}, "had": {}, "be": {}, "been": {}, "being": {}, "at": {},
	"on": {}, "in": {}, "to": {}, "from": {}, "with": {}, "about": {}, "get": {},
	"got": {}, "guy": {}, "guys": {},
}

// minKeywordLen is the shortest token kept; anything shorter is noise in speech transcripts.
const minKeywordLen = 3

// ExtractKeywords lowercases text, replaces everything that is not a letter, digit
// or whitespace with a space, and returns the remaining tokens longer than two
// characters that are not stop words, in their original order.
func ExtractKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var keywords []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < minKeywordLen {
			continue
		}
		if IsStopWord(tok) {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// IsStopWord reports whether the lowercased word is ignored during extraction.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
