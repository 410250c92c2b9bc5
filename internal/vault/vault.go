package vault

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/yamnikov-oleg/rooster/internal/audit"
	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
)

var ErrAlreadyOpen = errors.New("vault: already open")

// Vault is one session over a vault file. It starts closed; Create or Open
// moves it to open, Close moves it back and wipes all secret material. A
// Vault assumes exclusive access to its file while open and is not safe for
// concurrent use.
type Vault struct {
	path          string
	fs            fileSystem
	policy        Policy
	log           zerolog.Logger
	audit         *audit.Log
	retryInterval time.Duration

	open  bool
	kdf   cr.Params
	keys  *cr.Keys
	store *Store
}

type Option func(*Vault)

func WithLogger(l zerolog.Logger) Option { return func(v *Vault) { v.log = l } }

// WithAudit records create, open, export and master password changes in a.
func WithAudit(a *audit.Log) Option { return func(v *Vault) { v.audit = a } }

// WithPolicy sets the KDF parameters used by Create and ChangePassword.
func WithPolicy(p Policy) Option { return func(v *Vault) { v.policy = p } }

// WithRetryInterval sets the minimum spacing between passphrase attempts
// in OpenWithRetry.
func WithRetryInterval(d time.Duration) Option { return func(v *Vault) { v.retryInterval = d } }

func withFS(fs fileSystem) Option { return func(v *Vault) { v.fs = fs } }

// New returns a closed session for the vault at path.
func New(path string, opts ...Option) *Vault {
	v := &Vault{
		path:          path,
		fs:            osFS{},
		policy:        DefaultPolicy(),
		log:           zerolog.Nop(),
		retryInterval: time.Second,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Vault) Path() string { return v.path }
func (v *Vault) IsOpen() bool { return v.open }

// KDF returns the key derivation parameters of the open vault.
func (v *Vault) KDF() cr.Params { return v.kdf }

// NeedsRehash reports whether the open vault was written with parameters
// weaker than the policy target.
func (v *Vault) NeedsRehash() bool {
	return v.open && v.kdf.Weaker(v.policy.KDF)
}

// Create writes a new, empty vault protected by passphrase and leaves the
// session open. An existing file is never overwritten.
func (v *Vault) Create(ctx context.Context, passphrase []byte) error {
	if v.open {
		return ErrAlreadyOpen
	}
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}
	exists, err := vaultExists(v.fs, v.path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrVaultExists, v.path)
	}

	params, err := cr.NewSalt(v.policy.KDF)
	if err != nil {
		return err
	}
	keys, err := cr.Derive(ctx, passphrase, params)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	store := NewStore()

	data, err := sealStore(keys, params, store)
	if err == nil {
		err = writeVaultFile(v.fs, v.path, data)
	}
	if err != nil {
		keys.Destroy()
		return err
	}

	v.activate(params, keys, store)
	v.log.Info().Str("path", v.path).Str("kdf", params.Algorithm.String()).Msg("vault created")
	v.audit.Append(audit.VaultCreated, v.path)
	return nil
}

// Open reads, authenticates and decrypts the vault. On any failure the
// session stays closed. A wrong passphrase and a tampered file both fail
// with ErrIntegrityFailure.
func (v *Vault) Open(ctx context.Context, passphrase []byte) error {
	if v.open {
		return ErrAlreadyOpen
	}
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}
	data, err := readVaultFile(v.fs, v.path)
	if err != nil {
		return err
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", v.path, err)
	}
	keys, err := cr.Derive(ctx, passphrase, env.KDF)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	store, err := openEnvelope(keys, env)
	if err != nil {
		keys.Destroy()
		return fmt.Errorf("open %s: %w", v.path, err)
	}

	v.activate(env.KDF, keys, store)
	v.log.Info().
		Str("path", v.path).
		Int("entries", store.Len()).
		Str("kdf", env.KDF.Algorithm.String()).
		Msg("vault opened")
	v.audit.Append(audit.VaultOpened, v.path)
	return nil
}

func (v *Vault) activate(params cr.Params, keys *cr.Keys, store *Store) {
	v.kdf = params
	v.keys = keys
	v.store = store
	v.open = true
}

// Save encrypts the current entries under the session keys and atomically
// replaces the vault file. A failed save leaves the previous file intact.
func (v *Vault) Save(ctx context.Context) error {
	if !v.open {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := sealStore(v.keys, v.kdf, v.store)
	if err != nil {
		return err
	}
	if err := writeVaultFile(v.fs, v.path, data); err != nil {
		v.log.Error().Err(err).Str("path", v.path).Msg("vault save failed")
		return err
	}
	v.log.Debug().Str("path", v.path).Int("entries", v.store.Len()).Msg("vault saved")
	return nil
}

// ChangePassword derives a fresh key pair under a new salt (and the policy's
// current parameters), re-encrypts the entries and writes the vault. The old
// keys are destroyed only once the new file is in place; if the write fails
// the session keeps working with the old passphrase.
func (v *Vault) ChangePassword(ctx context.Context, newPassphrase []byte) error {
	if !v.open {
		return ErrClosed
	}
	if len(newPassphrase) == 0 {
		return ErrEmptyPassphrase
	}
	params, err := cr.NewSalt(v.policy.KDF)
	if err != nil {
		return err
	}
	keys, err := cr.Derive(ctx, newPassphrase, params)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	data, err := sealStore(keys, params, v.store)
	if err == nil {
		err = writeVaultFile(v.fs, v.path, data)
	}
	if err != nil {
		keys.Destroy()
		return err
	}

	old := v.keys
	v.keys, v.kdf = keys, params
	old.Destroy()
	v.log.Info().Str("path", v.path).Str("kdf", params.Algorithm.String()).Msg("master password changed")
	v.audit.Append(audit.PasswordChanged, v.path)
	return nil
}

// Close wipes the keys and entries. It is safe to call on a closed vault.
func (v *Vault) Close() error {
	if !v.open {
		return nil
	}
	v.keys.Destroy()
	v.store.Wipe()
	v.keys, v.store = nil, nil
	v.kdf = cr.Params{}
	v.open = false
	v.log.Debug().Str("path", v.path).Msg("vault closed")
	return nil
}

func (v *Vault) Get(app string) (Entry, error) {
	if !v.open {
		return Entry{}, ErrClosed
	}
	return v.store.Get(app)
}

func (v *Vault) Put(e Entry, overwrite bool) error {
	if !v.open {
		return ErrClosed
	}
	return v.store.Put(e, overwrite)
}

func (v *Vault) Update(app string, c Changes) error {
	if !v.open {
		return ErrClosed
	}
	return v.store.Update(app, c)
}

func (v *Vault) Rename(from, to string) error {
	if !v.open {
		return ErrClosed
	}
	return v.store.Rename(from, to)
}

func (v *Vault) Delete(app string) error {
	if !v.open {
		return ErrClosed
	}
	return v.store.Delete(app)
}

// Entries yields the entries ordered by name. It yields nothing when closed.
func (v *Vault) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if !v.open {
			return
		}
		v.store.All()(yield)
	}
}

func (v *Vault) Len() int {
	if !v.open {
		return 0
	}
	return v.store.Len()
}

func (v *Vault) Search(query string) ([]Entry, error) {
	if !v.open {
		return nil, ErrClosed
	}
	return v.store.Search(query)
}

// Snapshot returns a deep copy of the entries for merging.
func (v *Vault) Snapshot() (*Store, error) {
	if !v.open {
		return nil, ErrClosed
	}
	return v.store.Clone(), nil
}

// Replace installs s as the session's entries. The vault takes ownership of
// s and wipes the previous store. Call Save to persist.
func (v *Vault) Replace(s *Store) error {
	if !v.open {
		return ErrClosed
	}
	if s == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidEntry)
	}
	old := v.store
	s.SetClock(old.now)
	v.store = s
	old.Wipe()
	return nil
}

// Seal returns the current entries as a serialized envelope, for upload.
func (v *Vault) Seal() ([]byte, error) {
	if !v.open {
		return nil, ErrClosed
	}
	return sealStore(v.keys, v.kdf, v.store)
}

// DecryptBlob opens an envelope fetched from elsewhere (a sync remote).
// When the blob uses the session's KDF parameters the session keys are
// reused; otherwise the passphrase is requested from src and the key is
// derived with the blob's own parameters.
func (v *Vault) DecryptBlob(ctx context.Context, blob []byte, src PassphraseSource) (*Store, error) {
	if !v.open {
		return nil, ErrClosed
	}
	env, err := ParseEnvelope(blob)
	if err != nil {
		return nil, err
	}
	if env.KDF.SameKDF(v.kdf) {
		return openEnvelope(v.keys, env)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: remote vault uses different key parameters", ErrIntegrityFailure)
	}

	pw, err := src.Passphrase(ctx)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	keys, err := cr.Derive(ctx, pw, env.KDF)
	cr.Zero(pw)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer keys.Destroy()
	return openEnvelope(keys, env)
}

func sealStore(keys *cr.Keys, params cr.Params, s *Store) ([]byte, error) {
	pt, err := encodeStore(s)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(pt)

	iv, ct, tag, err := cr.Seal(keys, pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt vault: %w", err)
	}
	env := Envelope{Version: FormatVersion, KDF: params, Ciphertext: ct}
	copy(env.IV[:], iv)
	copy(env.Tag[:], tag)
	return env.MarshalBinary()
}

func openEnvelope(keys *cr.Keys, env *Envelope) (*Store, error) {
	pt, err := cr.Open(keys, env.IV[:], env.Ciphertext, env.Tag[:])
	if err != nil {
		return nil, err
	}
	defer cr.Zero(pt)
	return decodeStore(pt)
}
