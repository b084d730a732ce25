// Package index provides the in-memory inverted shingle index used for
// candidate retrieval. Lookups run lock-free against an immutable snapshot;
// writes build a modified snapshot and publish it atomically, so in-flight
// queries keep reading the version they started with.
package index

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/PaathGuide/core/normalize"
)

// Candidate pairs a record identifier with the number of shingles it
// shares with a query. It is a provisional relevance signal only; full
// similarity scoring happens in the search package.
type Candidate struct {
	ID     int64
	Shared int
}

// snapshot is one immutable version of the index. Posting slices are never
// mutated after publication; writers replace them wholesale.
type snapshot struct {
	postings map[string][]int64            // shingle -> ascending record IDs
	docs     map[int64]map[string]struct{} // record ID -> its shingle set
}

var emptySnapshot = &snapshot{
	postings: map[string][]int64{},
	docs:     map[int64]map[string]struct{}{},
}

// Index is the inverted mapping from shingle to record identifiers.
type Index struct {
	n    int
	mu   sync.Mutex // serializes writers; readers never take it
	snap atomic.Pointer[snapshot]
}

// New creates an empty index using the given shingle size.
// A non-positive size falls back to normalize.DefaultShingleSize.
func New(shingleSize int) *Index {
	if shingleSize <= 0 {
		shingleSize = normalize.DefaultShingleSize
	}
	ix := &Index{n: shingleSize}
	ix.snap.Store(emptySnapshot)
	return ix
}

// ShingleSize returns the configured n-gram width.
func (ix *Index) ShingleSize() int { return ix.n }

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.snap.Load().docs)
}

// Add indexes (or re-indexes) one record's normalized text. Replacing a
// record first removes its previous shingle keys so no dangling postings
// survive a text change.
func (ix *Index) Add(id int64, normalized string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	next := cur.clone()
	next.remove(id)
	next.add(id, normalize.Shingles(normalized, ix.n))
	ix.snap.Store(next)
}

// Remove deletes a record's shingle keys. Removing an unknown ID is a no-op.
func (ix *Index) Remove(id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	if _, ok := cur.docs[id]; !ok {
		return
	}
	next := cur.clone()
	next.remove(id)
	ix.snap.Store(next)
}

// Rebuild replaces the entire index from a bulk load in one publish step.
func (ix *Index) Rebuild(texts map[int64]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := &snapshot{
		postings: make(map[string][]int64),
		docs:     make(map[int64]map[string]struct{}, len(texts)),
	}
	for id, text := range texts {
		next.add(id, normalize.Shingles(text, ix.n))
	}
	ix.snap.Store(next)
}

// CandidatesFor returns up to max record IDs ranked by shared shingle
// count (descending, ties by ascending ID). A query sharing no shingles
// with any record yields an empty slice, never an error. Work is bounded
// by the query's shingle count times posting-list length, not corpus size.
func (ix *Index) CandidatesFor(normalizedQuery string, max int) []Candidate {
	if max <= 0 {
		return nil
	}
	snap := ix.snap.Load()
	if len(snap.docs) == 0 {
		return nil
	}

	shared := make(map[int64]int)
	for sh := range normalize.Shingles(normalizedQuery, ix.n) {
		for _, id := range snap.postings[sh] {
			shared[id]++
		}
	}
	if len(shared) == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(shared))
	for id, count := range shared {
		out = append(out, Candidate{ID: id, Shared: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shared != out[j].Shared {
			return out[i].Shared > out[j].Shared
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// clone makes a shallow copy of the snapshot maps. Posting slices are
// shared until a writer replaces them, which is safe because published
// slices are read-only.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		postings: make(map[string][]int64, len(s.postings)),
		docs:     make(map[int64]map[string]struct{}, len(s.docs)),
	}
	for sh, ids := range s.postings {
		next.postings[sh] = ids
	}
	for id, set := range s.docs {
		next.docs[id] = set
	}
	return next
}

// add inserts postings for one record. Only callable on unpublished
// snapshots under the writer lock.
func (s *snapshot) add(id int64, shingles map[string]struct{}) {
	if len(shingles) == 0 {
		return
	}
	for sh := range shingles {
		cur := s.postings[sh]
		ids := make([]int64, 0, len(cur)+1)
		inserted := false
		for _, other := range cur {
			if !inserted && id < other {
				ids = append(ids, id)
				inserted = true
			}
			if other == id {
				inserted = true
			}
			ids = append(ids, other)
		}
		if !inserted {
			ids = append(ids, id)
		}
		s.postings[sh] = ids
	}
	s.docs[id] = shingles
}

// remove deletes one record's postings. Only callable on unpublished
// snapshots under the writer lock.
func (s *snapshot) remove(id int64) {
	set, ok := s.docs[id]
	if !ok {
		return
	}
	for sh := range set {
		cur := s.postings[sh]
		ids := make([]int64, 0, len(cur))
		for _, other := range cur {
			if other != id {
				ids = append(ids, other)
			}
		}
		if len(ids) == 0 {
			delete(s.postings, sh)
		} else {
			s.postings[sh] = ids
		}
	}
	delete(s.docs, id)
}
