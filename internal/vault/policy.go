package vault

import cr "github.com/yamnikov-oleg/rooster/internal/crypto"

// Policy holds the key derivation target for vaults this process writes.
type Policy struct {
	KDF cr.Params
}

func DefaultPolicy() Policy {
	return Policy{KDF: cr.DefaultParams(cr.Scrypt)}
}
