package catalogue

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/mezmur-app/mezmur-sync/internal/textnorm"
)

// Search returns hymns whose search text contains every whitespace-separated
// term of query, in catalogue order. The query is folded the same way as the
// indexed text, so homophone spellings match each other. A limit of zero or
// less returns all matches.
func (x *Index) Search(query string, limit int) []IndexedHymn {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return []IndexedHymn{}
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(terms).
		SetPrefilter(true).
		Build()
	if err != nil {
		return x.scanContains(terms, limit)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]IndexedHymn, 0)
	seen := make([]bool, len(terms))
	for _, h := range x.all.slots {
		if h == nil {
			continue
		}
		for i := range seen {
			seen[i] = false
		}
		found := 0
		for _, m := range ac.FindAllOverlapping([]byte(h.SearchText)) {
			if m.PatternID < len(seen) && !seen[m.PatternID] {
				seen[m.PatternID] = true
				found++
			}
		}
		if found == len(terms) {
			out = append(out, *h)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// scanContains is the plain substring path used when the automaton cannot be
// built.
func (x *Index) scanContains(terms []string, limit int) []IndexedHymn {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]IndexedHymn, 0)
	for _, h := range x.all.slots {
		if h == nil {
			continue
		}
		match := true
		for _, t := range terms {
			if !strings.Contains(h.SearchText, t) {
				match = false
				break
			}
		}
		if match {
			out = append(out, *h)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// queryTerms folds query and splits it into distinct terms.
func queryTerms(query string) []string {
	fields := strings.Fields(textnorm.Fold(query))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
