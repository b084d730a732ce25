// Package verse defines the corpus record types and the canonical
// (page, line) ordering used throughout PaathGuide.
package verse

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Ref locates a verse in the corpus. The (Page, Line) pair is unique and
// totally ordered; this ordering defines the canonical corpus sequence.
type Ref struct {
	Page int `json:"page_number"`
	Line int `json:"line_number"`
}

// Less reports whether r precedes other in canonical order.
func (r Ref) Less(other Ref) bool {
	if r.Page != other.Page {
		return r.Page < other.Page
	}
	return r.Line < other.Line
}

// Compare returns -1, 0 or +1 ordering r against other.
func (r Ref) Compare(other Ref) int {
	switch {
	case r.Less(other):
		return -1
	case other.Less(r):
		return 1
	default:
		return 0
	}
}

// IsValid reports whether both page and line are positive.
func (r Ref) IsValid() bool {
	return r.Page > 0 && r.Line > 0
}

func (r Ref) String() string {
	return fmt.Sprintf("(%d-%d)", r.Page, r.Line)
}

// Record is an immutable unit of corpus content: one line of scripture
// with its location and optional metadata. Records are created by the
// bulk loader or administrative edits and never mutated in place.
type Record struct {
	ID              int64     `json:"id"`
	Gurmukhi        string    `json:"gurmukhi_text"`
	Normalized      string    `json:"-"`
	Page            int       `json:"page_number"`
	Line            int       `json:"line_number"`
	Transliteration string    `json:"transliteration,omitempty"`
	Translation     string    `json:"translation,omitempty"`
	Raag            string    `json:"raag,omitempty"`
	Author          string    `json:"author,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Ref returns the record's canonical location.
func (r Record) Ref() Ref {
	return Ref{Page: r.Page, Line: r.Line}
}

// ContentHash returns the blake3 hash of the normalized text, used to
// detect duplicate verses during bulk load.
func ContentHash(normalized string) string {
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
