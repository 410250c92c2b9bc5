package vault

import (
	"errors"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

var (
	ErrWeakParameters    = cr.ErrWeakParameters
	ErrDerivationFailure = cr.ErrDerivationFailure
	ErrIntegrityFailure  = cr.ErrIntegrityFailure
	ErrCorruptData       = cr.ErrCorruptData

	ErrUnsupportedVersion = errors.New("vault: unsupported format version")
	ErrDuplicateEntry     = errors.New("vault: entry already exists")
	ErrNotFound           = errors.New("vault: entry not found")
	ErrIOFailure          = errors.New("vault: storage i/o failure")

	ErrClosed          = errors.New("vault: not open")
	ErrVaultExists     = errors.New("vault: file already exists")
	ErrEmptyPassphrase = errors.New("vault: empty passphrase")
	ErrInvalidEntry    = errors.New("vault: invalid entry")
)

// Kind classifies an error into the vault's error taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindWeakParameters
	KindDerivationFailure
	KindIntegrityFailure
	KindCorruptData
	KindUnsupportedVersion
	KindDuplicateEntry
	KindNotFound
	KindIOFailure
	KindOther
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindWeakParameters:     "weak parameters",
	KindDerivationFailure:  "derivation failure",
	KindIntegrityFailure:   "integrity failure",
	KindCorruptData:        "corrupt data",
	KindUnsupportedVersion: "unsupported version",
	KindDuplicateEntry:     "duplicate entry",
	KindNotFound:           "not found",
	KindIOFailure:          "i/o failure",
	KindOther:              "other",
}

func (k Kind) String() string { return kindNames[k] }

// KindOf reports which taxonomy kind err belongs to.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrWeakParameters):
		return KindWeakParameters
	case errors.Is(err, ErrDerivationFailure):
		return KindDerivationFailure
	case errors.Is(err, ErrIntegrityFailure):
		return KindIntegrityFailure
	case errors.Is(err, ErrUnsupportedVersion):
		return KindUnsupportedVersion
	case errors.Is(err, ErrCorruptData):
		return KindCorruptData
	case errors.Is(err, ErrDuplicateEntry):
		return KindDuplicateEntry
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIOFailure):
		return KindIOFailure
	default:
		return KindOther
	}
}
