package retrieval

import (
	"regexp"
	"strings"
)

type rewriteRule struct {
	pattern *regexp.Regexp
	replace string
}

// apostrophe accepts both the ASCII and the typographic form that speech-to-text emits.
const apostrophe = `['’]?`

// normalizationRules rewrite equivalent phrasings to one canonical search key.
// No rule lengthens the text, and the one length-preserving rewrite
// (address → located) consumes a token nothing produces, so repeated
// application reaches a fixed point.
var normalizationRules = []rewriteRule{
	{regexp.MustCompile(`\b(?:don` + apostrophe + `t|do not|can` + apostrophe + `t|cannot|won` + apostrophe + `t|will not|isn` + apostrophe + `t|is not)\b`), "not"},
	{regexp.MustCompile(`\baccept\b`), "take"},
	{regexp.MustCompile(`\b(?:business hours|open hours|hours of operation)\b`), "hours"},
	{regexp.MustCompile(`\bwhere\b.*\blocated\b`), "located"},
	{regexp.MustCompile(`\b(?:location|address)\b`), "located"},
	{regexp.MustCompile(`\b(?:phone|contact)\b.*\bnumber\b`), "phone"},
	{regexp.MustCompile(`\bnumber (?:one|1)\b`), "#1"},
	{regexp.MustCompile(`\bnumber (?:two|2)\b`), "#2"},
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize lowercases text and collapses negations and known synonyms so
// equivalent phrasings produce the same string. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	out := collapseSpace(strings.ToLower(text))

	for {
		next := out
		for _, rule := range normalizationRules {
			next = rule.pattern.ReplaceAllString(next, rule.replace)
		}
		next = collapseSpace(next)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
