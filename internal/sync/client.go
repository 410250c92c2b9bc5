// Package sync reconciles the open vault with a remote copy.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yamnikov-oleg/rooster/internal/audit"
	"github.com/yamnikov-oleg/rooster/internal/storage"
	"github.com/yamnikov-oleg/rooster/internal/vault"
)

type Client interface {
	// Pull fetches the remote vault, merges it into the open vault and saves.
	Pull(ctx context.Context) (Result, error)
	// Push uploads the open vault as it is now.
	Push(ctx context.Context) error
	// Sync runs Pull followed by Push.
	Sync(ctx context.Context) (Result, error)
}

// Result summarizes one pull. The caller should Wipe the conflicts once
// they have been shown.
type Result struct {
	RunID     string
	Added     []string
	Updated   []string
	Conflicts []ConflictReport
}

func (r *Result) Wipe() {
	for i := range r.Conflicts {
		r.Conflicts[i].Wipe()
	}
}

type Option func(*client)

func WithLogger(l zerolog.Logger) Option { return func(c *client) { c.log = l } }

// WithAudit records run boundaries and every conflict name in a.
func WithAudit(a *audit.Log) Option { return func(c *client) { c.audit = a } }

// WithPassphraseSource is consulted when the remote vault was written with
// different key derivation parameters than the local one.
func WithPassphraseSource(src vault.PassphraseSource) Option {
	return func(c *client) { c.src = src }
}

type client struct {
	v      *vault.Vault
	remote storage.Provider
	src    vault.PassphraseSource
	log    zerolog.Logger
	audit  *audit.Log
}

// New returns a client syncing the open vault v with remote.
func New(v *vault.Vault, remote storage.Provider, opts ...Option) Client {
	c := &client{v: v, remote: remote, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *client) Pull(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	c.audit.Append(audit.SyncStarted, runID)
	res, err := c.pull(ctx, runID)
	c.finish(runID, err)
	return res, err
}

func (c *client) finish(runID string, err error) {
	if err != nil {
		c.audit.Append(audit.SyncFailed, runID)
		return
	}
	c.audit.Append(audit.SyncFinished, runID)
}

func (c *client) pull(ctx context.Context, runID string) (Result, error) {
	res := Result{RunID: runID}
	log := c.log.With().Str("run", runID).Logger()

	blob, err := c.remote.Fetch(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info().Msg("remote vault not found, nothing to merge")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("fetch remote: %w", err)
	}

	remote, err := c.v.DecryptBlob(ctx, blob, c.src)
	if err != nil {
		return res, fmt.Errorf("open remote: %w", err)
	}
	defer remote.Wipe()

	local, err := c.v.Snapshot()
	if err != nil {
		return res, err
	}
	defer local.Wipe()

	m, err := Merge(local, remote)
	if err != nil {
		return res, err
	}
	res.Added, res.Updated, res.Conflicts = m.Added, m.Updated, m.Conflicts

	if m.Store.Equal(local) {
		m.Store.Wipe()
		log.Info().Msg("local vault already up to date")
		return res, nil
	}
	if err := c.v.Replace(m.Store); err != nil {
		m.Store.Wipe()
		res.Wipe()
		return Result{RunID: runID}, err
	}
	if err := c.v.Save(ctx); err != nil {
		res.Wipe()
		return Result{RunID: runID}, err
	}
	for _, cf := range res.Conflicts {
		c.audit.Append(audit.SyncConflict, cf.Name)
	}
	log.Info().
		Int("added", len(res.Added)).
		Int("updated", len(res.Updated)).
		Int("conflicts", len(res.Conflicts)).
		Msg("merged remote vault")
	return res, nil
}

func (c *client) Push(ctx context.Context) error {
	blob, err := c.v.Seal()
	if err != nil {
		return err
	}
	if err := c.remote.Upload(ctx, blob); err != nil {
		return fmt.Errorf("upload remote: %w", err)
	}
	c.log.Debug().Int("bytes", len(blob)).Msg("uploaded vault")
	return nil
}

func (c *client) Sync(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	c.log.Info().Str("run", runID).Msg("sync started")
	c.audit.Append(audit.SyncStarted, runID)
	res, err := c.pull(ctx, runID)
	if err == nil {
		if err = c.Push(ctx); err != nil {
			res.Wipe()
			res = Result{RunID: runID}
		}
	}
	c.finish(runID, err)
	if err != nil {
		return res, err
	}
	c.log.Info().Str("run", runID).Msg("sync finished")
	return res, nil
}
