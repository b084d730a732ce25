// Package corpus holds the in-memory read model of the verse corpus: the
// canonical (page, line) ordering, the inverted shingle index, and the
// search pipeline over both. Reads are lock-free against an immutable
// snapshot; writes (bulk load, edit, delete) serialize behind a mutex,
// rebuild derived state, and publish a new snapshot atomically.
package corpus

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/index"
	"github.com/FocuswithJustin/PaathGuide/core/normalize"
	"github.com/FocuswithJustin/PaathGuide/core/search"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
)

// Config tunes the matching pipeline.
type Config struct {
	ShingleSize   int     // character n-gram width, default 3
	MinSimilarity float64 // scores below this are rejected, default 0.3
	MaxCandidates int     // retrieval bound per query, default 500
}

// withDefaults fills zero fields with the standard tuning.
func (c Config) withDefaults() Config {
	if c.ShingleSize <= 0 {
		c.ShingleSize = normalize.DefaultShingleSize
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = search.DefaultMinSimilarity
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = search.DefaultMaxCandidates
	}
	return c
}

// Stats summarizes the loaded corpus.
type Stats struct {
	TotalRecords             int `json:"total_verses"`
	TotalPages               int `json:"total_pages"`
	VersesWithTranslation    int `json:"verses_with_translations"`
	VersesWithTransliterated int `json:"verses_with_transliterations"`
	UniqueRaags              int `json:"unique_raags"`
	UniqueAuthors            int `json:"unique_authors"`
}

// snapshot is one immutable version of the corpus.
type snapshot struct {
	ordered []verse.Record        // canonical (page, line) order
	byID    map[int64]verse.Record
	pos     map[verse.Ref]int // index into ordered
}

var emptySnapshot = &snapshot{
	byID: map[int64]verse.Record{},
	pos:  map[verse.Ref]int{},
}

// Corpus is the read model. The zero value is not usable; construct with New.
type Corpus struct {
	cfg  Config
	idx  *index.Index
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// New creates an empty corpus with the given configuration.
func New(cfg Config) *Corpus {
	cfg = cfg.withDefaults()
	c := &Corpus{
		cfg: cfg,
		idx: index.New(cfg.ShingleSize),
	}
	c.snap.Store(emptySnapshot)
	return c
}

// Len returns the number of loaded records.
func (c *Corpus) Len() int {
	return len(c.snap.Load().ordered)
}

// Replace swaps in a fully new record set, typically after a bulk load.
// Records with duplicate (page, line) keys are rejected. Normalized text
// is always recomputed here so index-time normalization can never diverge
// from query-time normalization.
func (c *Corpus) Replace(records []verse.Record) error {
	next := &snapshot{
		ordered: make([]verse.Record, len(records)),
		byID:    make(map[int64]verse.Record, len(records)),
		pos:     make(map[verse.Ref]int, len(records)),
	}
	copy(next.ordered, records)
	for i := range next.ordered {
		next.ordered[i].Normalized = normalize.Normalize(next.ordered[i].Gurmukhi)
	}
	sort.SliceStable(next.ordered, func(i, j int) bool {
		return next.ordered[i].Ref().Less(next.ordered[j].Ref())
	})
	texts := make(map[int64]string, len(next.ordered))
	for i, rec := range next.ordered {
		if !rec.Ref().IsValid() {
			return errors.NewValidation("location", fmt.Sprintf("non-positive location %s", rec.Ref()))
		}
		if prev, dup := next.pos[rec.Ref()]; dup {
			return errors.NewValidation("location",
				fmt.Sprintf("duplicate location %s (records %d and %d)", rec.Ref(), next.ordered[prev].ID, rec.ID))
		}
		if _, dup := next.byID[rec.ID]; dup {
			return errors.NewValidation("id", fmt.Sprintf("duplicate record ID %d", rec.ID))
		}
		next.pos[rec.Ref()] = i
		next.byID[rec.ID] = rec
		texts[rec.ID] = rec.Normalized
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx.Rebuild(texts)
	c.snap.Store(next)
	return nil
}

// Upsert adds or replaces a single record, re-deriving its normalized
// text and shingle keys.
func (c *Corpus) Upsert(rec verse.Record) error {
	if !rec.Ref().IsValid() {
		return errors.NewValidation("location", fmt.Sprintf("non-positive location %s", rec.Ref()))
	}
	rec.Normalized = normalize.Normalize(rec.Gurmukhi)

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if i, ok := cur.pos[rec.Ref()]; ok && cur.ordered[i].ID != rec.ID {
		return errors.Wrapf(errors.ErrAlreadyExists, "location %s is held by record %d", rec.Ref(), cur.ordered[i].ID)
	}

	merged := make([]verse.Record, 0, len(cur.ordered)+1)
	for _, r := range cur.ordered {
		if r.ID != rec.ID {
			merged = append(merged, r)
		}
	}
	merged = append(merged, rec)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Ref().Less(merged[j].Ref())
	})

	next := rebuildMaps(merged)
	c.idx.Add(rec.ID, rec.Normalized)
	c.snap.Store(next)
	return nil
}

// Delete removes a record and its shingle keys. Unknown IDs return NotFound.
func (c *Corpus) Delete(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.byID[id]; !ok {
		return errors.NewNotFound("verse", fmt.Sprintf("%d", id))
	}
	remaining := make([]verse.Record, 0, len(cur.ordered)-1)
	for _, r := range cur.ordered {
		if r.ID != id {
			remaining = append(remaining, r)
		}
	}
	next := rebuildMaps(remaining)
	c.idx.Remove(id)
	c.snap.Store(next)
	return nil
}

func rebuildMaps(ordered []verse.Record) *snapshot {
	next := &snapshot{
		ordered: ordered,
		byID:    make(map[int64]verse.Record, len(ordered)),
		pos:     make(map[verse.Ref]int, len(ordered)),
	}
	for i, r := range ordered {
		next.byID[r.ID] = r
		next.pos[r.Ref()] = i
	}
	return next
}

// RecordByID resolves a record by identifier. Implements search.RecordSource.
func (c *Corpus) RecordByID(id int64) (verse.Record, bool) {
	rec, ok := c.snap.Load().byID[id]
	return rec, ok
}

// Search runs the full fuzzy pipeline: normalize, retrieve candidates,
// score, rank. An empty corpus or an unmatched query yields an empty
// result set with a nil error; only an empty raw query is rejected.
func (c *Corpus) Search(rawQuery string, limit int) ([]search.MatchResult, error) {
	return c.SearchMinScore(rawQuery, limit, 0)
}

// SearchMinScore is Search with a per-query similarity threshold.
// A non-positive minScore falls back to the configured default.
func (c *Corpus) SearchMinScore(rawQuery string, limit int, minScore float64) ([]search.MatchResult, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return nil, errors.NewValidation("query", "query must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}
	if minScore <= 0 {
		minScore = c.cfg.MinSimilarity
	}
	normalized := normalize.Normalize(rawQuery)
	if normalized == "" {
		return nil, nil
	}

	retriever := search.Retriever{Index: c.idx, Source: c}
	cands := retriever.Retrieve(normalized, c.cfg.MaxCandidates)
	scorer := search.Scorer{
		ShingleSize:   c.cfg.ShingleSize,
		MinSimilarity: minScore,
	}
	return scorer.Rank(normalized, cands, limit), nil
}

// RecordAt returns the record at the given (page, line) location.
func (c *Corpus) RecordAt(page, line int) (verse.Record, error) {
	snap := c.snap.Load()
	ref := verse.Ref{Page: page, Line: line}
	i, ok := snap.pos[ref]
	if !ok {
		return verse.Record{}, errors.NewNotFound("verse", ref.String())
	}
	return snap.ordered[i], nil
}

// ContextAround returns a contiguous window of records around the target
// in canonical order, clipped at the corpus boundaries. Radius 0 returns
// exactly the target; a negative radius is invalid input.
func (c *Corpus) ContextAround(id int64, radius int) ([]verse.Record, error) {
	if radius < 0 {
		return nil, errors.NewValidation("radius", "radius must be non-negative")
	}
	snap := c.snap.Load()
	rec, ok := snap.byID[id]
	if !ok {
		return nil, errors.NewNotFound("verse", fmt.Sprintf("%d", id))
	}
	center := snap.pos[rec.Ref()]
	lo := center - radius
	if lo < 0 {
		lo = 0
	}
	hi := center + radius + 1
	if hi > len(snap.ordered) {
		hi = len(snap.ordered)
	}
	window := make([]verse.Record, hi-lo)
	copy(window, snap.ordered[lo:hi])
	return window, nil
}

// RandomRecord returns a uniformly chosen record.
func (c *Corpus) RandomRecord() (verse.Record, error) {
	snap := c.snap.Load()
	if len(snap.ordered) == 0 {
		return verse.Record{}, errors.NewNotFound("verse", "")
	}
	return snap.ordered[rand.IntN(len(snap.ordered))], nil
}

// Page returns all records on a page in line order. An unknown page
// yields an empty slice.
func (c *Corpus) Page(page int) []verse.Record {
	snap := c.snap.Load()
	lo := sort.Search(len(snap.ordered), func(i int) bool {
		return snap.ordered[i].Page >= page
	})
	hi := sort.Search(len(snap.ordered), func(i int) bool {
		return snap.ordered[i].Page > page
	})
	out := make([]verse.Record, hi-lo)
	copy(out, snap.ordered[lo:hi])
	return out
}

// Stats summarizes the current snapshot.
func (c *Corpus) Stats() Stats {
	snap := c.snap.Load()
	pages := make(map[int]struct{})
	raags := make(map[string]struct{})
	authors := make(map[string]struct{})
	var stats Stats
	stats.TotalRecords = len(snap.ordered)
	for _, r := range snap.ordered {
		pages[r.Page] = struct{}{}
		if r.Translation != "" {
			stats.VersesWithTranslation++
		}
		if r.Transliteration != "" {
			stats.VersesWithTransliterated++
		}
		if r.Raag != "" {
			raags[r.Raag] = struct{}{}
		}
		if r.Author != "" {
			authors[r.Author] = struct{}{}
		}
	}
	stats.TotalPages = len(pages)
	stats.UniqueRaags = len(raags)
	stats.UniqueAuthors = len(authors)
	return stats
}
