package crypto

import "github.com/awnumar/memguard"

// Zero overwrites a byte slice in memory with zeros.
func Zero(b []byte) {
	memguard.WipeBytes(b)
}
