// Package search ranks entry names against a short, typed query.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

type Index interface {
	Add(id string, text string) error
	Query(q string) ([]string, error)
}

type doc struct {
	id, text string
}

type fuzzy struct {
	docs []doc
}

// New returns an in-memory fuzzy index. A document matches when the query's
// characters appear in its text in order; an exact case-insensitive match
// always ranks first.
func New() Index { return &fuzzy{} }

func (f *fuzzy) Add(id, text string) error {
	f.docs = append(f.docs, doc{id: id, text: strings.ToLower(text)})
	return nil
}

func (f *fuzzy) Query(q string) ([]string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	type hit struct {
		id    string
		text  string
		score int
	}
	var hits []hit
	for _, d := range f.docs {
		if s, ok := Match(q, d.text); ok {
			hits = append(hits, hit{d.id, d.text, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].text < hits[j].text
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

const exactBonus = 1 << 20

// Match reports whether q is a subsequence of text and scores the match.
// Consecutive runs and a match at the start of text score higher; an exact
// match beats everything. Both arguments are compared as given.
func Match(q, text string) (int, bool) {
	if q == "" {
		return 0, true
	}
	if q == text {
		return exactBonus, true
	}
	score, run := 0, 0
	ti := 0
	for _, qr := range q {
		found := false
		for ti < len(text) {
			tr, size := utf8.DecodeRuneInString(text[ti:])
			start := ti
			ti += size
			if tr == qr {
				run++
				score += run
				if start == 0 {
					score += 3
				}
				found = true
				break
			}
			run = 0
		}
		if !found {
			return 0, false
		}
	}
	if strings.HasPrefix(text, q) {
		score += len(q)
	}
	return score, true
}
