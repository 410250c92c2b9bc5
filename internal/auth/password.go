// Package auth checks master passphrases before they protect a vault.
package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

var ErrWeakPassphrase = errors.New("auth: passphrase too weak")

type Policy struct {
	// MinScore is the lowest zxcvbn score (0-4) accepted.
	MinScore int
	MinRunes int
}

var DefaultPolicy = Policy{
	MinScore: 3,
	MinRunes: 8,
}

// Strength describes a passphrase as zxcvbn sees it.
type Strength struct {
	Score     int
	Entropy   float64
	CrackTime string
}

// Evaluate scores passphrase. userInputs are words an attacker would try
// first (the vault file name, the user name) and lower the score when used.
func Evaluate(passphrase []byte, userInputs ...string) Strength {
	m := zxcvbn.PasswordStrength(string(passphrase), userInputs)
	return Strength{Score: m.Score, Entropy: m.Entropy, CrackTime: m.CrackTimeDisplay}
}

// ValidatePassphrase rejects passphrases that are too short or score below
// p.MinScore.
func ValidatePassphrase(p Policy, passphrase []byte, userInputs ...string) error {
	if n := utf8.RuneCount(passphrase); n < p.MinRunes {
		return fmt.Errorf("%w: %d characters, need at least %d", ErrWeakPassphrase, n, p.MinRunes)
	}
	if p.MinScore <= 0 {
		return nil
	}
	s := Evaluate(passphrase, userInputs...)
	if s.Score < p.MinScore {
		return fmt.Errorf("%w: score %d/4, need %d (cracked in %s)", ErrWeakPassphrase, s.Score, p.MinScore, s.CrackTime)
	}
	return nil
}
