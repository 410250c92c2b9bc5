package vault

import (
	"bytes"
	"errors"
	"testing"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

func sampleEnvelope() *Envelope {
	p := cr.DefaultParams(cr.Argon2id)
	for i := range p.Salt {
		p.Salt[i] = byte(i)
	}
	e := &Envelope{Version: FormatVersion, KDF: p, Ciphertext: bytes.Repeat([]byte{0xAB}, 48)}
	e.IV[0], e.Tag[0] = 1, 2
	return e
}

func TestEnvelopeLayout(t *testing.T) {
	e := sampleEnvelope()
	b, err := e.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != headerSize+48 {
		t.Fatalf("len = %d, want %d", len(b), headerSize+48)
	}
	// version, alg, then big-endian time cost 3.
	if b[0] != 1 || b[1] != byte(cr.Argon2id) || !bytes.Equal(b[2:6], []byte{0, 0, 0, 3}) {
		t.Fatalf("unexpected header prefix % x", b[:6])
	}
	got, err := ParseEnvelope(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.KDF != e.KDF || got.IV != e.IV || got.Tag != e.Tag || !bytes.Equal(got.Ciphertext, e.Ciphertext) {
		t.Fatal("parsed envelope differs")
	}
}

func TestParseEnvelopeUnknownAlgorithm(t *testing.T) {
	b, _ := sampleEnvelope().MarshalBinary()
	b[1] = 99
	_, err := ParseEnvelope(b)
	if !errors.Is(err, ErrUnsupportedVersion) || !errors.Is(err, cr.ErrUnsupportedAlgorithm) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseEnvelopeBadLength(t *testing.T) {
	e := sampleEnvelope()
	e.Ciphertext = e.Ciphertext[:47]
	b, _ := e.MarshalBinary()
	if _, err := ParseEnvelope(b); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("non-block ciphertext: err = %v", err)
	}
	e.Ciphertext = nil
	b, _ = e.MarshalBinary()
	if _, err := ParseEnvelope(b); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("empty ciphertext: err = %v", err)
	}
}

func FuzzParseEnvelope(f *testing.F) {
	good, _ := sampleEnvelope().MarshalBinary()
	f.Add(good)
	f.Add(good[:headerSize])
	f.Add([]byte{1})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, b []byte) {
		e, err := ParseEnvelope(b)
		if err != nil {
			switch KindOf(err) {
			case KindCorruptData, KindUnsupportedVersion:
			default:
				t.Fatalf("unexpected error kind %v: %v", KindOf(err), err)
			}
			return
		}
		out, err := e.MarshalBinary()
		if err != nil {
			t.Fatalf("re-marshal: %v", err)
		}
		if !bytes.Equal(out, b) {
			t.Fatal("parse/marshal is not the identity on accepted input")
		}
	})
}
