// Package index builds external term indexes as immutable segments: each
// term maps to the posting list of its occurrences. A Builder accumulates
// postings in memory; Build seals them into one segment blob; a Searcher
// answers term lookups against a sealed segment.
package index

import (
	"fmt"
	"sort"

	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/postings"
	"github.com/hadro-db/hadro/pkg/sstable"
)

// Builder accumulates term -> postings until sealed. Not safe for concurrent
// use; one indexing pass owns one Builder.
type Builder struct {
	terms map[string][]postings.Posting
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{terms: make(map[string][]postings.Posting)}
}

// Add records one occurrence of term at position within source.
func (b *Builder) Add(term, source string, position uint32) {
	b.terms[term] = append(b.terms[term], postings.Posting{Source: source, Position: position})
}

// NumTerms returns the number of distinct terms accumulated so far.
func (b *Builder) NumTerms() int { return len(b.terms) }

// Build seals the accumulated postings into one segment blob. Posting lists
// are sorted by (source, position) before encoding so the output is
// deterministic regardless of Add order.
func (b *Builder) Build(meta sstable.Metadata) ([]byte, error) {
	entries := make(map[keys.Key][]byte, len(b.terms))
	for term, list := range b.terms {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Source != list[j].Source {
				return list[i].Source < list[j].Source
			}
			return list[i].Position < list[j].Position
		})
		payload, err := postings.Encode(list)
		if err != nil {
			return nil, fmt.Errorf("index: encode postings for %q: %w", term, err)
		}
		entries[keys.String(term)] = payload
	}
	return sstable.Create(entries, meta, 0)
}

// Searcher answers term lookups against one sealed index segment.
type Searcher struct {
	reader *sstable.Reader
}

// NewSearcher validates blob and wraps it for term lookups.
func NewSearcher(blob []byte) (*Searcher, error) {
	r, err := sstable.Open(blob)
	if err != nil {
		return nil, err
	}
	return &Searcher{reader: r}, nil
}

// OpenSearcher memory-maps an index segment file.
func OpenSearcher(path string) (*Searcher, error) {
	r, err := sstable.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return &Searcher{reader: r}, nil
}

// Lookup returns the posting list for term, or found=false if the segment
// does not contain it.
func (s *Searcher) Lookup(term string) ([]postings.Posting, bool, error) {
	payload, found := s.reader.LookupEq(keys.String(term))
	if !found {
		return nil, false, nil
	}
	list, err := postings.Decode(payload)
	if err != nil {
		return nil, false, fmt.Errorf("index: postings for %q: %w", term, err)
	}
	return list, true, nil
}

// LookupIn performs batched term lookup; terms absent from the segment are
// omitted from the result.
func (s *Searcher) LookupIn(terms []string) (map[string][]postings.Posting, error) {
	ks := make([]keys.Key, len(terms))
	for i, t := range terms {
		ks[i] = keys.String(t)
	}

	raw := s.reader.LookupIn(ks)
	out := make(map[string][]postings.Posting, len(raw))
	for k, payload := range raw {
		list, err := postings.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("index: postings for %q: %w", k.Str(), err)
		}
		out[k.Str()] = list
	}
	return out, nil
}

// TermResult is one term with its postings, returned by range lookups in
// ascending term order.
type TermResult struct {
	Term     string
	Postings []postings.Posting
}

// LookupRange returns every term on the cmp side of the boundary term with
// its postings, ascending.
func (s *Searcher) LookupRange(boundary string, cmp sstable.Comparator) ([]TermResult, error) {
	entries := s.reader.LookupRange(keys.String(boundary), cmp)
	out := make([]TermResult, 0, len(entries))
	for _, e := range entries {
		list, err := postings.Decode(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("index: postings for %q: %w", e.Key.Str(), err)
		}
		out = append(out, TermResult{Term: e.Key.Str(), Postings: list})
	}
	return out, nil
}

// NumTerms returns the number of terms in the sealed segment.
func (s *Searcher) NumTerms() int { return s.reader.EntryCount() }
