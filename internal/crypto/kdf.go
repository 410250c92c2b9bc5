package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// SaltSize is the length of the per-vault random salt.
const SaltSize = 32

// Algorithm identifies a key derivation function in the vault file.
type Algorithm uint8

const (
	Scrypt       Algorithm = 1
	Argon2id     Algorithm = 2
	PBKDF2SHA256 Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case Scrypt:
		return "scrypt"
	case Argon2id:
		return "argon2id"
	case PBKDF2SHA256:
		return "pbkdf2-sha256"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Known reports whether a is an algorithm this package implements.
func (a Algorithm) Known() bool {
	_, ok := limits[a]
	return ok
}

// ParseAlgorithm maps a configuration name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "scrypt":
		return Scrypt, nil
	case "argon2id":
		return Argon2id, nil
	case "pbkdf2-sha256", "pbkdf2":
		return PBKDF2SHA256, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

var (
	ErrWeakParameters       = errors.New("crypto: kdf parameters below minimum")
	ErrDerivationFailure    = errors.New("crypto: key derivation failed")
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported kdf algorithm")
	ErrEmptyPassphrase      = errors.New("crypto: empty passphrase")
)

// Params are the persisted key derivation parameters. The meaning of Cost,
// BlockSize and Parallelism depends on the algorithm:
//
//	scrypt:        Cost = log2(N), BlockSize = r, Parallelism = p
//	argon2id:      Cost = time, BlockSize = memory in KiB, Parallelism = threads
//	pbkdf2-sha256: Cost = iterations, BlockSize and Parallelism unused (0)
type Params struct {
	Algorithm   Algorithm
	Cost        uint32
	BlockSize   uint32
	Parallelism uint32
	Salt        [SaltSize]byte
}

type bounds struct {
	minCost, maxCost   uint32
	minBlock, maxBlock uint32
	minPar, maxPar     uint32
}

var limits = map[Algorithm]bounds{
	Scrypt:       {minCost: 14, maxCost: 20, minBlock: 8, maxBlock: 32, minPar: 1, maxPar: 16},
	Argon2id:     {minCost: 1, maxCost: 16, minBlock: 19 * 1024, maxBlock: 2 * 1024 * 1024, minPar: 1, maxPar: 16},
	PBKDF2SHA256: {minCost: 210_000, maxCost: 10_000_000},
}

// DefaultParams returns the cost parameters used for new vaults. The salt
// is left zero; callers fill it with NewSalt.
func DefaultParams(alg Algorithm) Params {
	switch alg {
	case Argon2id:
		return Params{Algorithm: Argon2id, Cost: 3, BlockSize: 64 * 1024, Parallelism: 1}
	case PBKDF2SHA256:
		return Params{Algorithm: PBKDF2SHA256, Cost: 600_000}
	default:
		return Params{Algorithm: Scrypt, Cost: 15, BlockSize: 8, Parallelism: 1}
	}
}

// MinimumParams returns the weakest parameters Derive accepts for alg.
func MinimumParams(alg Algorithm) Params {
	b := limits[alg]
	return Params{Algorithm: alg, Cost: b.minCost, BlockSize: b.minBlock, Parallelism: b.minPar}
}

// NewSalt fills p.Salt with fresh random bytes.
func NewSalt(p Params) (Params, error) {
	if _, err := rand.Read(p.Salt[:]); err != nil {
		return p, fmt.Errorf("generate salt: %w", err)
	}
	return p, nil
}

// Validate checks p against the hard-coded limits. Values below the minimum
// are ErrWeakParameters; values above the maximum are ErrCorruptData since no
// writer produces them. In-range parameters needing more than MaxMemory are
// ErrDerivationFailure.
func (p Params) Validate() error {
	b, ok := limits[p.Algorithm]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnsupportedAlgorithm, uint8(p.Algorithm))
	}
	if p.Cost < b.minCost || p.BlockSize < b.minBlock || p.Parallelism < b.minPar {
		return fmt.Errorf("%w: %s cost=%d block=%d parallelism=%d",
			ErrWeakParameters, p.Algorithm, p.Cost, p.BlockSize, p.Parallelism)
	}
	if p.Cost > b.maxCost || p.BlockSize > b.maxBlock || p.Parallelism > b.maxPar {
		return fmt.Errorf("%w: %s parameters out of range", ErrCorruptData, p.Algorithm)
	}
	if m := p.Memory(); m > MaxMemory {
		return fmt.Errorf("%w: %s needs %d MiB, limit is %d MiB",
			ErrDerivationFailure, p.Algorithm, m>>20, uint64(MaxMemory)>>20)
	}
	return nil
}

// MaxMemory caps the working memory of a single derivation. A failed
// allocation of that size aborts the runtime instead of returning an error,
// so oversized parameters are refused up front.
const MaxMemory = 1 << 30

// Memory returns the bytes of working memory deriving with p allocates.
func (p Params) Memory() uint64 {
	switch p.Algorithm {
	case Scrypt:
		r := uint64(p.BlockSize)
		return 128*r*(uint64(1)<<p.Cost) + 128*r*uint64(p.Parallelism)
	case Argon2id:
		return uint64(p.BlockSize) * 1024
	default:
		return 0
	}
}

// Weaker reports whether p costs less than target on any axis. Vaults
// written with another algorithm are always weaker.
func (p Params) Weaker(target Params) bool {
	if p.Algorithm != target.Algorithm {
		return true
	}
	return p.Cost < target.Cost || p.BlockSize < target.BlockSize || p.Parallelism < target.Parallelism
}

// SameKDF reports whether p and o derive the same key from the same passphrase.
func (p Params) SameKDF(o Params) bool {
	return p == o
}

// Derive runs the KDF described by p over passphrase and returns the split
// cipher/MAC keys. The derivation runs on its own goroutine; when ctx is
// cancelled Derive returns immediately and the abandoned result is wiped.
func Derive(ctx context.Context, passphrase []byte, p Params) (*Keys, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The goroutine owns its own copy so the caller may wipe passphrase
	// as soon as Derive returns.
	pw := append([]byte(nil), passphrase...)

	type result struct {
		key []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer Zero(pw)
		key, err := derive(pw, p)
		done <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-done
			Zero(r.key)
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return newKeys(r.key)
	}
}

func derive(pw []byte, p Params) (key []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = fmt.Errorf("%w: %v", ErrDerivationFailure, r)
		}
	}()

	switch p.Algorithm {
	case Scrypt:
		key, err = scrypt.Key(pw, p.Salt[:], 1<<p.Cost, int(p.BlockSize), int(p.Parallelism), KeySize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDerivationFailure, err)
		}
	case Argon2id:
		key = argon2.IDKey(pw, p.Salt[:], p.Cost, p.BlockSize, uint8(p.Parallelism), KeySize)
	case PBKDF2SHA256:
		key = pbkdf2.Key(pw, p.Salt[:], int(p.Cost), KeySize, sha256.New)
	default:
		return nil, fmt.Errorf("%w: id %d", ErrUnsupportedAlgorithm, uint8(p.Algorithm))
	}
	return key, nil
}
