// Package normalize cleans raw Gurmukhi text into the canonical matching
// representation shared by index construction and query processing.
//
// Normalize is a pure, deterministic, idempotent function. The exact same
// pipeline must run at index time and query time: any divergence between
// the two silently degrades recall, so neither the index nor the search
// layer carries its own cleaning logic.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultShingleSize is the character n-gram width used for retrieval keys.
const DefaultShingleSize = 3

// halant is the Gurmukhi virama; speech-to-text output renders conjuncts
// inconsistently, so it is stripped on both sides of the match.
const halant = "੍"

// charMappings corrects character sequences the transcriber commonly
// misrecognizes. Longer patterns come first so the replacer prefers them.
var charMappings = []string{
	"ਨਾਤ੍ਯਾਂ", "ਨਾ",
	"ਜਾਤ੍ਯ", "ਜਾ",
	"ਸਂਤਮ", "ਸੰਤ",
	"ਤ੍ਯ", "ਧਿ",
	"ਪਾਂ", "ਪਾ",
	"ਚਾਂ", "ਚਾ",
	"ਮਂ", "ਮ",
	"ਰਂ", "ਰ",
}

// wordMappings corrects whole phrases the transcriber splits or mishears.
var wordMappings = []string{
	"ਸੇਖ ਮਾਰੇ", "ਸੇਵਕ",
	"ਤਾਰੀਆ ਚੁੰ", "ਤਾਰੀਐ",
	"ਸਾਤਰਾ ਮਾਰੇ", "ਸਤਿਗੁਰ",
}

// conjunctMappings rejoins conjunct consonants the transcriber splits.
var conjunctMappings = []string{
	"ਸ ਤ", "ਸਤ",
	"ਗ ੁਰ", "ਗੁਰ",
	"ਪ ਰ", "ਪਰ",
}

// stopwords are function words that carry no matching signal.
var stopwords = map[string]bool{
	"ਹੈ": true, "ਹੋ": true, "ਨੈ": true, "ਤੇ": true, "ਦੇ": true, "ਨੂੰ": true,
}

// keepSingles are single characters that are meaningful words and survive
// the short-token filter.
var keepSingles = map[string]bool{
	"ਸ": true, "ਤ": true, "ਨ": true,
}

// repeatedPatterns collapse stuttered fragments the transcriber emits when
// the speaker holds a syllable.
var repeatedPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(ਸ਼ਿ\s*){2,}`), "ਸ਼ਿ"},
	{regexp.MustCompile(`(ਚੁੰ\s*){2,}`), "ਚੁੰ"},
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	charReplacer = strings.NewReplacer(charMappings...)
	wordReplacer = strings.NewReplacer(wordMappings...)
	conjReplacer = strings.NewReplacer(conjunctMappings...)
)

// Normalize cleans raw speech-to-text output (or stored verse text) into
// the canonical matching representation. Total over all string inputs:
// never fails, returns "" for input with no usable content.
//
// The pipeline runs to a fixed point: a character mapping can emit a rune
// adjacent to identical runes, forming a fresh run that only another pass
// collapses. Without the loop, Normalize of its own output could differ
// from the output, and index and query text would disagree.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := norm.NFC.String(raw)
	for i := 0; i < 4; i++ {
		next := normalizeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func normalizeOnce(s string) string {
	s = collapseWhitespace(s)
	s = collapseRepeats(s)
	s = charReplacer.Replace(s)
	s = wordReplacer.Replace(s)
	for _, p := range repeatedPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	s = dropNoiseTokens(s)
	s = strings.ReplaceAll(s, halant, "")
	s = conjReplacer.Replace(s)
	s = dropStopwords(s)
	return strings.TrimSpace(s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// collapseRepeats reduces any run of three or more identical runes to one.
// Doubled characters are legitimate in Gurmukhi; triples are artifacts.
func collapseRepeats(s string) string {
	return collapseRunsOver(s, 2)
}

// collapseRunsOver reduces runs longer than max to a single rune.
func collapseRunsOver(s string, max int) string {
	runes := []rune(s)
	var out []rune
	i := 0
	for i < len(runes) {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if j-i > max {
			out = append(out, runes[i])
		} else {
			out = append(out, runes[i:j]...)
		}
		i = j
	}
	return string(out)
}

// dropNoiseTokens removes artifact tokens: single characters that are not
// meaningful words, and runs of bare punctuation.
func dropNoiseTokens(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		runes := []rune(w)
		if len(runes) <= 1 && !keepSingles[w] {
			continue
		}
		if len(runes) >= 3 && allPunct(runes) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func allPunct(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// dropStopwords removes function words, unless that would discard more
// than 70% of the input, in which case the input is kept as-is: a query
// that is mostly stopwords still has to match something.
func dropStopwords(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}
	content := make([]string, 0, len(words))
	for _, w := range words {
		if !stopwords[w] {
			content = append(content, w)
		}
	}
	if len(content)*10 < len(words)*3 {
		return s
	}
	return strings.Join(content, " ")
}

// Shingles extracts the set of character n-grams used as retrieval keys.
// Whitespace and non-letter runes are excluded so that word boundaries and
// punctuation do not fragment the shingle space. Text shorter than n yields
// a single shingle of the whole remainder; empty text yields an empty set.
func Shingles(s string, n int) map[string]struct{} {
	if n <= 0 {
		n = DefaultShingleSize
	}
	var letters []rune
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			letters = append(letters, r)
		}
	}
	set := make(map[string]struct{})
	if len(letters) == 0 {
		return set
	}
	if len(letters) < n {
		set[string(letters)] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(letters); i++ {
		set[string(letters[i:i+n])] = struct{}{}
	}
	return set
}
