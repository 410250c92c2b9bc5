package sync

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yamnikov-oleg/rooster/internal/vault"
)

// ConflictReport records an entry present on both sides with different
// content. Kept is the variant in the merged store, Discarded the one that
// lost. Both are copies owned by the report.
type ConflictReport struct {
	Name      string
	Kept      vault.Entry
	Discarded vault.Entry
}

// Wipe zeroes the passwords held by the report.
func (c *ConflictReport) Wipe() {
	c.Kept.Wipe()
	c.Discarded.Wipe()
}

// Merged is the outcome of Merge.
type Merged struct {
	Store     *vault.Store
	Conflicts []ConflictReport
	// Added lists names taken from remote that local did not have.
	Added []string
	// Updated lists names where the remote variant replaced different local content.
	Updated []string
}

// Merge reconciles two stores into a new one. Neither input is modified.
//
// An entry on only one side is kept. An entry on both sides resolves to the
// variant with the later UpdatedAt; equal timestamps fall back to comparing
// content so the result does not depend on argument order. Differing content
// always yields a ConflictReport. Deletions are not tracked, so an entry
// deleted on one side but still present on the other comes back.
func Merge(local, remote *vault.Store) (*Merged, error) {
	l := byKey(local)
	r := byKey(remote)

	out := &Merged{}
	merged := make([]vault.Entry, 0, max(len(l), len(r)))
	for k, le := range l {
		re, ok := r[k]
		if !ok {
			merged = append(merged, le)
			continue
		}
		delete(r, k)

		kept, lost := le, re
		remoteWins := prefer(re, le)
		if remoteWins {
			kept, lost = re, le
		}
		merged = append(merged, kept)
		if kept.SameContent(lost) {
			lost.Wipe()
			continue
		}
		if remoteWins {
			out.Updated = append(out.Updated, kept.App)
		}
		out.Conflicts = append(out.Conflicts, ConflictReport{
			Name:      kept.App,
			Kept:      kept.Clone(),
			Discarded: lost,
		})
	}
	for _, re := range r {
		merged = append(merged, re)
		out.Added = append(out.Added, re.App)
	}

	store, err := vault.NewStoreFrom(merged)
	for i := range merged {
		merged[i].Wipe()
	}
	if err != nil {
		out.wipeConflicts()
		return nil, fmt.Errorf("build merged store: %w", err)
	}
	out.Store = store

	sort.Strings(out.Added)
	sort.Strings(out.Updated)
	sort.Slice(out.Conflicts, func(i, j int) bool {
		return vault.Key(out.Conflicts[i].Name) < vault.Key(out.Conflicts[j].Name)
	})
	return out, nil
}

func (m *Merged) wipeConflicts() {
	for i := range m.Conflicts {
		m.Conflicts[i].Wipe()
	}
}

func byKey(s *vault.Store) map[string]vault.Entry {
	m := make(map[string]vault.Entry, s.Len())
	for e := range s.All() {
		m[vault.Key(e.App)] = e
	}
	return m
}

// prefer reports whether a beats b. The order is total over entry content
// so ties between different variants break the same way from either side.
func prefer(a, b vault.Entry) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if a.App != b.App {
		return a.App > b.App
	}
	if a.Username != b.Username {
		return a.Username > b.Username
	}
	if c := bytes.Compare(a.Password, b.Password); c != 0 {
		return c > 0
	}
	return a.CreatedAt.After(b.CreatedAt)
}
