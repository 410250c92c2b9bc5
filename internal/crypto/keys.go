package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

const (
	// CipherKeySize is the AES-256 key length.
	CipherKeySize = 32
	// MACKeySize is the HMAC-SHA256 key length.
	MACKeySize = 32
	// KeySize is the amount of key material a derivation produces.
	KeySize = CipherKeySize + MACKeySize
)

var errKeysDestroyed = errors.New("crypto: keys destroyed")

// Keys holds the cipher key and the MAC key derived from one passphrase.
// The material lives in a memguard buffer (mlocked, guarded pages) and is
// wiped by Destroy.
type Keys struct {
	buf *memguard.LockedBuffer
}

// newKeys moves material into locked memory. The source slice is wiped.
func newKeys(material []byte) (*Keys, error) {
	if len(material) != KeySize {
		Zero(material)
		return nil, fmt.Errorf("%w: key material must be %d bytes", ErrDerivationFailure, KeySize)
	}
	return &Keys{buf: memguard.NewBufferFromBytes(material)}, nil
}

func (k *Keys) cipherKey() []byte { return k.buf.Bytes()[:CipherKeySize] }
func (k *Keys) macKey() []byte    { return k.buf.Bytes()[CipherKeySize:KeySize] }

// Alive reports whether the keys can still be used.
func (k *Keys) Alive() bool {
	return k != nil && k.buf != nil && k.buf.IsAlive()
}

// Equal compares two key sets in constant time.
func (k *Keys) Equal(other *Keys) bool {
	if !k.Alive() || !other.Alive() {
		return false
	}
	return subtle.ConstantTimeCompare(k.buf.Bytes(), other.buf.Bytes()) == 1
}

// Destroy wipes the key material. It is safe to call more than once.
func (k *Keys) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}
