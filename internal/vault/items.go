package vault

import (
	"bytes"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
	"github.com/yamnikov-oleg/rooster/internal/search"
)

// Entry is one stored credential. App is unique within a Store, compared
// case-insensitively.
type Entry struct {
	App       string
	Username  string
	Password  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of e. Password is not shared.
func (e Entry) Clone() Entry {
	e.Password = bytes.Clone(e.Password)
	return e
}

// SameContent reports whether e and o hold the same credential, ignoring
// timestamps.
func (e Entry) SameContent(o Entry) bool {
	return e.App == o.App && e.Username == o.Username && bytes.Equal(e.Password, o.Password)
}

// Equal reports full equality including timestamps.
func (e Entry) Equal(o Entry) bool {
	return e.SameContent(o) && e.CreatedAt.Equal(o.CreatedAt) && e.UpdatedAt.Equal(o.UpdatedAt)
}

// Wipe zeroes the password bytes.
func (e *Entry) Wipe() {
	cr.Zero(e.Password)
	e.Password = nil
}

// Changes lists the fields Update replaces. Nil fields are left untouched.
type Changes struct {
	Username *string
	Password []byte
}

// Key normalizes an application name for lookup.
func Key(app string) string {
	return strings.ToLower(strings.TrimSpace(app))
}

// Store is the decrypted, in-memory entry collection. It is not safe for
// concurrent use; a Vault session owns exactly one.
type Store struct {
	entries map[string]*Entry
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: map[string]*Entry{}, now: defaultNow}
}

// NewStoreFrom builds a store from existing entries, keeping their
// timestamps. Duplicate names fail with ErrDuplicateEntry.
func NewStoreFrom(entries []Entry) (*Store, error) {
	s := NewStore()
	for _, e := range entries {
		if err := s.restore(e.Clone()); err != nil {
			s.Wipe()
			return nil, err
		}
	}
	return s, nil
}

var newIndex = search.New

func defaultNow() time.Time { return time.Now().UTC() }

// SetClock replaces the time source used to stamp mutations.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = defaultNow
	}
	s.now = now
}

func (s *Store) restore(e Entry) error {
	e.App = strings.TrimSpace(e.App)
	if err := validate(e.App); err != nil {
		return err
	}
	k := Key(e.App)
	if _, ok := s.entries[k]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.App)
	}
	s.entries[k] = &e
	return nil
}

func validate(app string) error {
	if Key(app) == "" {
		return fmt.Errorf("%w: application name is required", ErrInvalidEntry)
	}
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// Get returns a copy of the entry named app.
func (s *Store) Get(app string) (Entry, error) {
	e, ok := s.entries[Key(app)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, app)
	}
	return e.Clone(), nil
}

// Put inserts e. If an entry with the same name exists, Put fails with
// ErrDuplicateEntry unless overwrite is set, in which case the existing
// entry is replaced and keeps its creation time.
func (s *Store) Put(e Entry, overwrite bool) error {
	if err := validate(e.App); err != nil {
		return err
	}
	k := Key(e.App)
	now := s.now()
	created := now
	old, exists := s.entries[k]
	if exists && !overwrite {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.App)
	}
	e = e.Clone()
	if exists {
		created = old.CreatedAt
		old.Wipe()
	}
	e.App = strings.TrimSpace(e.App)
	e.CreatedAt = created
	e.UpdatedAt = now
	s.entries[k] = &e
	return nil
}

// Update applies changes to the entry named app.
func (s *Store) Update(app string, c Changes) error {
	e, ok := s.entries[Key(app)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, app)
	}
	if c.Username != nil {
		e.Username = *c.Username
	}
	if c.Password != nil {
		cr.Zero(e.Password)
		e.Password = bytes.Clone(c.Password)
	}
	e.UpdatedAt = s.now()
	return nil
}

// Rename moves the entry named from to the name to. Changing only the case
// of a name is allowed.
func (s *Store) Rename(from, to string) error {
	if err := validate(to); err != nil {
		return err
	}
	fk, tk := Key(from), Key(to)
	e, ok := s.entries[fk]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, from)
	}
	if _, taken := s.entries[tk]; taken && tk != fk {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, to)
	}
	delete(s.entries, fk)
	e.App = strings.TrimSpace(to)
	e.UpdatedAt = s.now()
	s.entries[tk] = e
	return nil
}

// Delete removes the entry named app and wipes its password.
func (s *Store) Delete(app string) error {
	k := Key(app)
	e, ok := s.entries[k]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, app)
	}
	e.Wipe()
	delete(s.entries, k)
	return nil
}

// All yields copies of every entry ordered by normalized name. Each call
// starts a fresh pass; entries added or removed between passes are seen by
// the next one.
func (s *Store) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, k := range s.keys() {
			e, ok := s.entries[k]
			if !ok {
				continue
			}
			if !yield(e.Clone()) {
				return
			}
		}
	}
}

// Names returns the display names in list order.
func (s *Store) Names() []string {
	keys := s.keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.entries[k].App)
	}
	return out
}

func (s *Store) keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Search returns the entries whose name fuzzily matches query, best match
// first.
func (s *Store) Search(query string) ([]Entry, error) {
	idx := newIndex()
	for k, e := range s.entries {
		if err := idx.Add(k, e.App); err != nil {
			return nil, fmt.Errorf("index %q: %w", e.App, err)
		}
	}
	ids, err := idx.Query(query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// Clone returns an independent deep copy.
func (s *Store) Clone() *Store {
	c := &Store{entries: make(map[string]*Entry, len(s.entries)), now: s.now}
	for k, e := range s.entries {
		cp := e.Clone()
		c.entries[k] = &cp
	}
	return c
}

// Equal reports whether both stores hold the same entries.
func (s *Store) Equal(o *Store) bool {
	if s.Len() != o.Len() {
		return false
	}
	for k, e := range s.entries {
		oe, ok := o.entries[k]
		if !ok || !e.Equal(*oe) {
			return false
		}
	}
	return true
}

// Wipe zeroes every password and empties the store.
func (s *Store) Wipe() {
	for k, e := range s.entries {
		e.Wipe()
		delete(s.entries, k)
	}
}
