// Package passgen generates random passwords.
package passgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

const (
	lower   = "abcdefghijklmnopqrstuvwxyz"
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	symbols = "!@#$%^&*()-_=+[]{}<>?,.;:~"

	DefaultLength = 32
	MinLength     = 4
	MaxLength     = 1024
)

var ErrInvalidLength = errors.New("passgen: invalid length")

type Options struct {
	Length int
	// Alnum restricts the alphabet to a-z, A-Z and 0-9.
	Alnum bool
}

// Generate returns a password drawn uniformly from the selected alphabet,
// containing at least one character of every class in it. The caller owns
// (and should wipe) the result.
func Generate(opts Options) ([]byte, error) {
	n := opts.Length
	if n == 0 {
		n = DefaultLength
	}
	if n < MinLength || n > MaxLength {
		return nil, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidLength, n, MinLength, MaxLength)
	}
	classes := []string{lower, upper, digits}
	if !opts.Alnum {
		classes = append(classes, symbols)
	}
	alphabet := strings.Join(classes, "")

	out := make([]byte, n)
	for {
		for i := range out {
			c, err := pick(alphabet)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		if hasEvery(out, classes) {
			return out, nil
		}
	}
}

// pick returns a uniformly random byte of alphabet using rejection sampling.
func pick(alphabet string) (byte, error) {
	limit := 256 - 256%len(alphabet)
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("passgen: read random: %w", err)
		}
		if int(b[0]) < limit {
			return alphabet[int(b[0])%len(alphabet)], nil
		}
	}
}

func hasEvery(pw []byte, classes []string) bool {
	for _, class := range classes {
		if !strings.ContainsAny(string(pw), class) {
			return false
		}
	}
	return true
}
