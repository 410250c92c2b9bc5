// Package audit keeps a tamper-evident, append-only record of what a
// process did to a vault. Each event's hash covers the previous event's
// hash, so editing or dropping any event breaks every hash after it.
//
// Events name actions and entry or file names only. Secrets never go in.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by the vault engine and the sync client.
const (
	VaultCreated    = "vault.created"
	VaultOpened     = "vault.opened"
	PasswordChanged = "vault.password_changed"
	VaultExported   = "vault.exported"
	SyncStarted     = "sync.started"
	SyncConflict    = "sync.conflict"
	SyncFinished    = "sync.finished"
	SyncFailed      = "sync.failed"
)

var ErrChainBroken = errors.New("audit chain broken")

type Event struct {
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	Subject string    `json:"subject,omitempty"`
	Hash    string    `json:"hash"`
}

// Log is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	lastHash []byte
	events   []Event
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Log)

// WithLogger mirrors every appended event to l at debug level.
func WithLogger(l zerolog.Logger) Option { return func(a *Log) { a.log = l } }

// WithClock replaces the time source used to stamp events.
func WithClock(now func() time.Time) Option { return func(a *Log) { a.now = now } }

func New(opts ...Option) *Log {
	a := &Log{
		now: func() time.Time { return time.Now().UTC() },
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Append records action on subject and returns the chained event. A nil
// Log discards the event, so callers need not check for one.
func (a *Log) Append(action, subject string) Event {
	if a == nil {
		return Event{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	e := Event{
		Seq:     uint64(len(a.events)) + 1,
		At:      a.now(),
		Action:  action,
		Subject: subject,
	}
	sum := chain(a.lastHash, e)
	a.lastHash = sum
	e.Hash = hex.EncodeToString(sum)
	a.events = append(a.events, e)

	a.log.Debug().
		Uint64("seq", e.Seq).
		Str("action", action).
		Str("subject", subject).
		Str("hash", e.Hash[:12]).
		Msg("audit")
	return e
}

// Verify recomputes the chain and reports the first event that no longer
// matches.
func (a *Log) Verify() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Verify(a.events)
}

// Verify checks a chain of events read back from elsewhere.
func Verify(events []Event) error {
	var prev []byte
	for i, e := range events {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("%w: event %d has seq %d", ErrChainBroken, i+1, e.Seq)
		}
		sum := chain(prev, e)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("%w: event %d (%s)", ErrChainBroken, e.Seq, e.Action)
		}
		prev = sum
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (a *Log) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

// chain hashes prev ‖ seq ‖ unix nanos ‖ len-prefixed action ‖ len-prefixed subject.
func chain(prev []byte, e Event) []byte {
	h := sha256.New()
	h.Write(prev)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], e.Seq)
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(e.At.UnixNano()))
	h.Write(n[:])
	for _, s := range []string{e.Action, e.Subject} {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	return h.Sum(nil)
}
