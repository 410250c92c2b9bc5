package vault

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/yamnikov-oleg/rooster/internal/search"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*Store, *fakeClock) {
	c := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore()
	s.SetClock(c.now)
	return s, c
}

func TestPutDuplicate(t *testing.T) {
	s, _ := newClockedStore()
	if err := s.Put(Entry{App: "GitHub", Password: []byte("a")}, false); err != nil {
		t.Fatal(err)
	}
	err := s.Put(Entry{App: " github ", Password: []byte("b")}, false)
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
	e, _ := s.Get("github")
	if string(e.Password) != "a" {
		t.Fatal("duplicate put replaced the entry")
	}
}

func TestPutOverwriteKeepsCreatedAt(t *testing.T) {
	s, c := newClockedStore()
	if err := s.Put(Entry{App: "x", Password: []byte("1")}, false); err != nil {
		t.Fatal(err)
	}
	created := c.t
	c.advance(time.Hour)
	if err := s.Put(Entry{App: "X", Password: []byte("2")}, true); err != nil {
		t.Fatal(err)
	}
	e, err := s.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	if !e.CreatedAt.Equal(created) || !e.UpdatedAt.Equal(c.t) {
		t.Fatalf("timestamps = %v / %v", e.CreatedAt, e.UpdatedAt)
	}
	if e.App != "X" || string(e.Password) != "2" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestPutRequiresName(t *testing.T) {
	s := NewStore()
	if err := s.Put(Entry{App: "   "}, false); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("err = %v, want ErrInvalidEntry", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	_ = s.Put(Entry{App: "a", Password: []byte("secret")}, false)
	e, _ := s.Get("a")
	e.Password[0] = 'X'
	again, _ := s.Get("a")
	if string(again.Password) != "secret" {
		t.Fatal("Get leaked internal password slice")
	}
}

func TestUpdate(t *testing.T) {
	s, c := newClockedStore()
	_ = s.Put(Entry{App: "a", Username: "old", Password: []byte("p")}, false)
	c.advance(time.Minute)
	user := "new"
	if err := s.Update("A", Changes{Username: &user}); err != nil {
		t.Fatal(err)
	}
	e, _ := s.Get("a")
	if e.Username != "new" || string(e.Password) != "p" || !e.UpdatedAt.Equal(c.t) {
		t.Fatalf("entry = %+v", e)
	}
	if err := s.Update("missing", Changes{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	s := NewStore()
	_ = s.Put(Entry{App: "a", Password: []byte("1")}, false)
	_ = s.Put(Entry{App: "b", Password: []byte("2")}, false)

	if err := s.Rename("a", "B"); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("rename onto existing: err = %v", err)
	}
	if err := s.Rename("a", "A"); err != nil {
		t.Fatalf("case-only rename: %v", err)
	}
	if err := s.Rename("A", "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatal("old name still present")
	}
	if e, err := s.Get("c"); err != nil || string(e.Password) != "1" {
		t.Fatalf("renamed entry: %+v %v", e, err)
	}
	if err := s.Rename("zzz", "y"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore()
	_ = s.Put(Entry{App: "a", Password: []byte("1")}, false)
	if err := s.Delete("A"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatal("entry not removed")
	}
	if err := s.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAllOrderedAndRestartable(t *testing.T) {
	s := NewStore()
	for _, app := range []string{"delta", "Alpha", "charlie", "bravo"} {
		_ = s.Put(Entry{App: app, Password: []byte(app)}, false)
	}
	collect := func() []string {
		var names []string
		for e := range s.All() {
			names = append(names, e.App)
		}
		return names
	}
	want := []string{"Alpha", "bravo", "charlie", "delta"}
	if got := collect(); !slices.Equal(got, want) {
		t.Fatalf("first pass = %v, want %v", got, want)
	}
	if got := collect(); !slices.Equal(got, want) {
		t.Fatalf("second pass = %v, want %v", got, want)
	}
	if got := s.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names = %v", got)
	}

	n := 0
	for range s.All() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("early break yielded %d", n)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewStore()
	_ = s.Put(Entry{App: "a", Password: []byte("1")}, false)
	c := s.Clone()
	if !s.Equal(c) {
		t.Fatal("clone differs")
	}
	_ = c.Update("a", Changes{Password: []byte("2")})
	if s.Equal(c) {
		t.Fatal("clone shares state")
	}
	c.Wipe()
	if e, _ := s.Get("a"); string(e.Password) != "1" {
		t.Fatal("wiping the clone touched the original")
	}
}

func TestNewStoreFromRejectsDuplicates(t *testing.T) {
	_, err := NewStoreFrom([]Entry{{App: "x"}, {App: "X"}})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	s, _ := newClockedStore()
	_ = s.Put(Entry{App: "a", Username: "u", Password: []byte{0, 1, 2, 255}}, false)
	b, err := encodeStore(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeStore(b)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(got) {
		t.Fatal("payload round trip changed entries")
	}
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	for name, in := range map[string]string{
		"not json":  "{",
		"duplicate": `{"entries":[{"app":"a"},{"app":"A"}]}`,
		"no name":   `{"entries":[{"app":""}]}`,
	} {
		if _, err := decodeStore([]byte(in)); !errors.Is(err, ErrCorruptData) {
			t.Errorf("%s: err = %v, want ErrCorruptData", name, err)
		}
	}
}

func TestRestoreTrimsNames(t *testing.T) {
	s, err := decodeStore([]byte(`{"entries":[{"app":"  Mail  ","username":"u"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if names := s.Names(); !slices.Equal(names, []string{"Mail"}) {
		t.Fatalf("names = %q", names)
	}
	if _, err := s.Get("mail"); err != nil {
		t.Fatalf("get: %v", err)
	}

	if _, err := decodeStore([]byte(`{"entries":[{"app":"Mail"},{"app":" mail "}]}`)); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("padded duplicate err = %v, want ErrCorruptData", err)
	}
	if _, err := NewStoreFrom([]Entry{{App: "   "}}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("blank name err = %v, want ErrInvalidEntry", err)
	}
}

type failingIndex struct{ addErr, queryErr error }

func (f failingIndex) Add(string, string) error       { return f.addErr }
func (f failingIndex) Query(string) ([]string, error) { return nil, f.queryErr }

func TestSearchPropagatesIndexErrors(t *testing.T) {
	orig := newIndex
	t.Cleanup(func() { newIndex = orig })

	s, _ := newClockedStore()
	_ = s.Put(Entry{App: "github"}, false)

	boom := errors.New("index unavailable")
	for name, idx := range map[string]failingIndex{
		"add":   {addErr: boom},
		"query": {queryErr: boom},
	} {
		newIndex = func() search.Index { return idx }
		got, err := s.Search("git")
		if !errors.Is(err, boom) || got != nil {
			t.Errorf("%s: search = %v, %v; want %v", name, got, err, boom)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]Kind{
		nil:                     KindNone,
		ErrNotFound:             KindNotFound,
		ErrDuplicateEntry:       KindDuplicateEntry,
		ErrIntegrityFailure:     KindIntegrityFailure,
		ErrWeakParameters:       KindWeakParameters,
		errors.New("something"): KindOther,
		ErrUnsupportedVersion:   KindUnsupportedVersion,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Errorf("KindOf(%v) = %v, want %v", err, got, want)
		}
	}
}
