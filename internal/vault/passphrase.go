package vault

import (
	"bytes"
	"context"
)

// PassphraseSource yields the master passphrase on demand. The caller owns
// the returned slice and wipes it after the derivation that needed it.
type PassphraseSource interface {
	Passphrase(ctx context.Context) ([]byte, error)
}

// PassphraseFunc adapts a function to PassphraseSource.
type PassphraseFunc func(ctx context.Context) ([]byte, error)

func (f PassphraseFunc) Passphrase(ctx context.Context) ([]byte, error) { return f(ctx) }

// StaticPassphrase returns a source that hands out a fresh copy of p on
// every call.
func StaticPassphrase(p []byte) PassphraseSource {
	p = bytes.Clone(p)
	return PassphraseFunc(func(context.Context) ([]byte, error) {
		return bytes.Clone(p), nil
	})
}
