package crypto

import (
	"fmt"
	"strings"
)

// Named argon2id cost profiles for machines with plenty of memory and for
// constrained ones. Both sit well above MinimumParams(Argon2id).
func DesktopArgon2id() Params {
	return Params{Algorithm: Argon2id, Cost: 3, BlockSize: 1024 * 1024, Parallelism: 4}
}

func MobileArgon2id() Params {
	return Params{Algorithm: Argon2id, Cost: 3, BlockSize: 128 * 1024, Parallelism: 4}
}

// Preset resolves a configured algorithm name and optional profile into
// parameters. An empty profile selects DefaultParams.
func Preset(algorithm, profile string) (Params, error) {
	alg, err := ParseAlgorithm(strings.ToLower(strings.TrimSpace(algorithm)))
	if err != nil {
		return Params{}, err
	}
	switch strings.ToLower(profile) {
	case "", "default":
		return DefaultParams(alg), nil
	case "desktop":
		if alg == Argon2id {
			return DesktopArgon2id(), nil
		}
	case "mobile":
		if alg == Argon2id {
			return MobileArgon2id(), nil
		}
	}
	return Params{}, fmt.Errorf("%w: no %q profile for %s", ErrUnsupportedAlgorithm, profile, alg)
}
