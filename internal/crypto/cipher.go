package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	IVSize  = aes.BlockSize // 16 bytes
	TagSize = sha256.Size   // 32 bytes
)

var (
	ErrIntegrityFailure = errors.New("crypto: message authentication failed")
	ErrCorruptData      = errors.New("crypto: corrupt data")
)

// Seal applies encrypt-then-MAC: AES-256-CBC with PKCS#7 padding under a
// fresh random IV, then HMAC-SHA256 over iv||ciphertext with the independent
// MAC key.
func Seal(keys *Keys, plaintext []byte) (iv, ciphertext, tag []byte, err error) {
	if !keys.Alive() {
		return nil, nil, nil, errKeysDestroyed
	}

	block, err := aes.NewCipher(keys.cipherKey())
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := pad(plaintext)
	defer Zero(padded)

	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	tag = computeMAC(keys.macKey(), iv, ciphertext)
	return iv, ciphertext, tag, nil
}

// Open verifies the tag before touching the block cipher. A tag mismatch is
// ErrIntegrityFailure and no decryption is attempted; bad padding behind a
// valid tag is ErrCorruptData.
func Open(keys *Keys, iv, ciphertext, tag []byte) ([]byte, error) {
	if !keys.Alive() {
		return nil, errKeysDestroyed
	}
	if len(iv) != IVSize || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: bad iv or tag length", ErrCorruptData)
	}

	expected := computeMAC(keys.macKey(), iv, ciphertext)
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, ErrIntegrityFailure
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrCorruptData)
	}

	block, err := aes.NewCipher(keys.cipherKey())
	if err != nil {
		return nil, err
	}

	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)

	out, err := unpad(pt)
	if err != nil {
		Zero(pt)
		return nil, err
	}
	return out, nil
}

func computeMAC(macKey, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCorruptData)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrCorruptData)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrCorruptData)
		}
	}
	return b[:len(b)-n], nil
}
