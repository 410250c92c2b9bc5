package vault

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

// DefaultUnlockAttempts is how many passphrases OpenWithRetry asks for
// before giving up.
const DefaultUnlockAttempts = 3

// OpenWithRetry asks src for a passphrase and opens the vault, retrying
// only when the passphrase was rejected. Attempts are spaced at least the
// configured retry interval apart.
func (v *Vault) OpenWithRetry(ctx context.Context, src PassphraseSource, attempts int) error {
	if attempts <= 0 {
		attempts = DefaultUnlockAttempts
	}
	limiter := rate.NewLimiter(rate.Every(v.retryInterval), 1)

	var err error
	for i := 1; i <= attempts; i++ {
		if werr := limiter.Wait(ctx); werr != nil {
			return werr
		}
		pw, perr := src.Passphrase(ctx)
		if perr != nil {
			return fmt.Errorf("read passphrase: %w", perr)
		}
		err = v.Open(ctx, pw)
		cr.Zero(pw)
		if err == nil || !errors.Is(err, ErrIntegrityFailure) {
			return err
		}
		v.log.Warn().Int("attempt", i).Int("of", attempts).Msg("incorrect master password")
	}
	return err
}
