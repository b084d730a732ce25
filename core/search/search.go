// Package search implements the fuzzy matching pipeline: candidate
// retrieval over the inverted shingle index, similarity scoring, and
// ranking. Retrieval decides which records are worth looking at; scoring
// decides how good each one is. The two stages are deliberately separate
// so either can be swapped without touching the other.
package search

import (
	"sort"
	"strings"

	"github.com/FocuswithJustin/PaathGuide/core/index"
	"github.com/FocuswithJustin/PaathGuide/core/normalize"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
)

// Match type labels reported with each result.
const (
	MatchExact        = "exact"
	MatchNGram        = "ngram"
	MatchEditDistance = "edit_distance"
	MatchWord         = "word"
)

// Defaults mirror the tuning the transcript-matching experiments settled on.
const (
	DefaultMinSimilarity = 0.3
	DefaultMaxCandidates = 500

	// Edit distance is quadratic; skip it for long strings where the
	// n-gram score is reliable anyway.
	editDistanceQueryLimit = 100
	editDistanceTextLimit  = 200

	// Word-level matches only count when the per-word similarity is high.
	wordMatchThreshold = 0.7
)

// Candidate pairs a record with its provisional shared-shingle count.
// Produced by retrieval, consumed by ranking, discarded afterwards.
type Candidate struct {
	Record verse.Record
	Shared int
}

// MatchResult is one ranked search hit.
type MatchResult struct {
	Record    verse.Record `json:"verse"`
	Score     float64      `json:"score"`
	Rank      int          `json:"rank"`
	MatchType string       `json:"match_type"`
}

// RecordSource resolves candidate IDs back to full records. The corpus
// snapshot implements this; tests use a map-backed fake.
type RecordSource interface {
	RecordByID(id int64) (verse.Record, bool)
}

// Retriever fetches a bounded candidate set for a normalized query.
type Retriever struct {
	Index  *index.Index
	Source RecordSource
}

// Retrieve returns candidates ordered by shared-shingle count. An empty
// corpus or a query with no shingle overlap yields an empty slice, not an
// error; the caller treats "no data yet" as a valid state.
func (r Retriever) Retrieve(normalizedQuery string, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	hits := r.Index.CandidatesFor(normalizedQuery, limit)
	if len(hits) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		rec, ok := r.Source.RecordByID(h.ID)
		if !ok {
			// Index and record set are published together, but a record
			// deleted between snapshots is simply skipped.
			continue
		}
		out = append(out, Candidate{Record: rec, Shared: h.Shared})
	}
	return out
}

// Scorer computes similarity between a normalized query and candidate
// records. Scoring is a total function: any pair of strings gets a score
// in [0,1].
type Scorer struct {
	ShingleSize   int
	MinSimilarity float64
}

// NewScorer returns a scorer with the default tuning.
func NewScorer() Scorer {
	return Scorer{
		ShingleSize:   normalize.DefaultShingleSize,
		MinSimilarity: DefaultMinSimilarity,
	}
}

// Score returns the similarity of the query to the record's normalized
// text, together with the strategy that produced the score. The best of
// several strategies wins: substring containment, trigram Jaccard,
// phonetically weighted edit distance, and per-word matching. Word-split
// and word-merge variants of the query absorb the transcriber's habit of
// joining or breaking words.
func (s Scorer) Score(normalizedQuery string, rec verse.Record) (float64, string) {
	text := rec.Normalized
	if normalizedQuery == "" || text == "" {
		return 0, MatchNGram
	}
	if strings.Contains(text, normalizedQuery) {
		return 1.0, MatchExact
	}

	n := s.ShingleSize
	if n <= 0 {
		n = normalize.DefaultShingleSize
	}
	textShingles := normalize.Shingles(text, n)
	textWords := strings.Fields(text)

	best := 0.0
	bestType := MatchNGram
	for _, variant := range WordVariants(normalizedQuery) {
		if sc := Jaccard(normalize.Shingles(variant, n), textShingles); sc > best {
			best, bestType = sc, MatchNGram
		}
		if len(variant) < editDistanceQueryLimit && len(text) < editDistanceTextLimit {
			if sc := WeightedEditSimilarity(variant, text); sc > best {
				best, bestType = sc, MatchEditDistance
			}
		}
		for _, qw := range strings.Fields(variant) {
			if len([]rune(qw)) <= 2 {
				continue
			}
			for _, tw := range textWords {
				sc := Jaccard(normalize.Shingles(qw, 2), normalize.Shingles(tw, 2))
				if sc > wordMatchThreshold && sc > best {
					best, bestType = sc, MatchWord
				}
			}
		}
	}
	return best, bestType
}

// Rank scores candidates, drops everything below the scorer's minimum
// similarity, and returns at most topK results ordered by descending
// score with ties broken by ascending (page, line). An empty result set
// is a valid outcome for an unmatched query.
func (s Scorer) Rank(normalizedQuery string, cands []Candidate, topK int) []MatchResult {
	if topK <= 0 || len(cands) == 0 {
		return nil
	}
	results := make([]MatchResult, 0, len(cands))
	for _, c := range cands {
		score, matchType := s.Score(normalizedQuery, c.Record)
		if score < s.MinSimilarity {
			continue
		}
		results = append(results, MatchResult{
			Record:    c.Record,
			Score:     score,
			MatchType: matchType,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.Ref().Less(results[j].Record.Ref())
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// Jaccard returns |a ∩ b| / |a ∪ b| over two shingle sets. Two empty sets
// are identical (1.0); one empty set shares nothing (0.0).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// WordVariants generates query rewrites that absorb word-boundary noise:
// the query itself, every word split into single characters, all words
// merged, and each adjacent pair merged. The split form lets the edit
// distance line up with transcripts that fused or fragmented words.
func WordVariants(s string) []string {
	variants := []string{s}
	words := strings.Fields(s)
	if len(words) == 0 {
		return variants
	}
	split := make([]string, len(words))
	for i, w := range words {
		split[i] = splitRunes(w)
	}
	variants = append(variants, strings.Join(split, " "))
	if len(words) < 2 {
		return variants
	}
	variants = append(variants, strings.Join(words, ""))
	for i := 0; i < len(words)-1; i++ {
		merged := make([]string, 0, len(words)-1)
		merged = append(merged, words[:i]...)
		merged = append(merged, words[i]+words[i+1])
		merged = append(merged, words[i+2:]...)
		variants = append(variants, strings.Join(merged, " "))
	}
	return variants
}

// splitRunes spaces out every rune of a word.
func splitRunes(w string) string {
	runes := []rune(w)
	parts := make([]string, len(runes))
	for i, r := range runes {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
