package vault

import (
	"encoding/binary"
	"fmt"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

// FormatVersion is the only envelope version this package reads and writes.
const FormatVersion = uint8(1)

// Layout (big-endian):
//
//	version      uint8
//	kdf_alg      uint8
//	kdf_cost     uint32
//	kdf_block    uint32
//	kdf_par      uint32
//	salt         [32]byte
//	iv           [16]byte
//	mac_tag      [32]byte
//	ct_len       uint32
//	ciphertext   [ct_len]byte
const headerSize = 1 + 1 + 4 + 4 + 4 + cr.SaltSize + cr.IVSize + cr.TagSize + 4

// maxCiphertext bounds the length prefix so a corrupt file cannot make us
// allocate unbounded memory.
const maxCiphertext = 1 << 30

// Envelope is the persisted form of a vault.
type Envelope struct {
	Version    uint8
	KDF        cr.Params
	IV         [cr.IVSize]byte
	Tag        [cr.TagSize]byte
	Ciphertext []byte
}

// MarshalBinary serializes e. The output depends only on e's fields.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	if len(e.Ciphertext) > maxCiphertext {
		return nil, fmt.Errorf("%w: ciphertext too large", ErrCorruptData)
	}
	out := make([]byte, 0, headerSize+len(e.Ciphertext))
	out = append(out, e.Version, uint8(e.KDF.Algorithm))
	out = binary.BigEndian.AppendUint32(out, e.KDF.Cost)
	out = binary.BigEndian.AppendUint32(out, e.KDF.BlockSize)
	out = binary.BigEndian.AppendUint32(out, e.KDF.Parallelism)
	out = append(out, e.KDF.Salt[:]...)
	out = append(out, e.IV[:]...)
	out = append(out, e.Tag[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.Ciphertext)))
	out = append(out, e.Ciphertext...)
	return out, nil
}

// ParseEnvelope decodes a vault file. It never fills in defaults: an unknown
// version is ErrUnsupportedVersion, anything short, long or inconsistent is
// ErrCorruptData.
func ParseEnvelope(b []byte) (*Envelope, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty vault file", ErrCorruptData)
	}
	if b[0] != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrCorruptData, len(b))
	}

	e := &Envelope{Version: b[0]}
	r := b[1:]
	e.KDF.Algorithm = cr.Algorithm(r[0])
	r = r[1:]
	e.KDF.Cost, r = binary.BigEndian.Uint32(r), r[4:]
	e.KDF.BlockSize, r = binary.BigEndian.Uint32(r), r[4:]
	e.KDF.Parallelism, r = binary.BigEndian.Uint32(r), r[4:]
	r = r[copy(e.KDF.Salt[:], r):]
	r = r[copy(e.IV[:], r):]
	r = r[copy(e.Tag[:], r):]
	n := binary.BigEndian.Uint32(r)
	r = r[4:]

	if n == 0 || n > maxCiphertext {
		return nil, fmt.Errorf("%w: invalid ciphertext length %d", ErrCorruptData, n)
	}
	if uint64(len(r)) != uint64(n) {
		return nil, fmt.Errorf("%w: ciphertext length %d, have %d bytes", ErrCorruptData, n, len(r))
	}
	if n%uint32(cr.IVSize) != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrCorruptData)
	}
	e.Ciphertext = append([]byte(nil), r...)

	if !e.KDF.Algorithm.Known() {
		return nil, fmt.Errorf("%w: %w: id %d", ErrUnsupportedVersion, cr.ErrUnsupportedAlgorithm, uint8(e.KDF.Algorithm))
	}
	return e, nil
}
