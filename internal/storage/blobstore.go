// Package storage moves sealed vault envelopes to and from a sync remote.
// Providers only ever see ciphertext.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("remote vault not found")

// Provider stores a single opaque vault blob.
type Provider interface {
	// Fetch returns the stored blob, or ErrNotFound if nothing was uploaded yet.
	Fetch(ctx context.Context) ([]byte, error)
	// Upload replaces the stored blob.
	Upload(ctx context.Context, data []byte) error
	Close(ctx context.Context) error
}

const DefaultName = "vault.rooster"

// Config selects and configures a Provider.
type Config struct {
	Kind            string `json:"kind"`
	Name            string `json:"name,omitempty"`
	Dir             string `json:"dir,omitempty"`
	MongoURI        string `json:"mongo_uri,omitempty"`
	MongoDatabase   string `json:"mongo_database,omitempty"`
	MongoCollection string `json:"mongo_collection,omitempty"`
	BoltPath        string `json:"bolt_path,omitempty"`
	SQLitePath      string `json:"sqlite_path,omitempty"`
}

// New opens the provider described by cfg.
func New(ctx context.Context, cfg Config) (Provider, error) {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	switch cfg.Kind {
	case "dir":
		return NewDirProvider(cfg.Dir, name)
	case "mongo":
		db, coll := cfg.MongoDatabase, cfg.MongoCollection
		if db == "" {
			db = "rooster"
		}
		if coll == "" {
			coll = "vaults"
		}
		return NewMongoProvider(ctx, cfg.MongoURI, db, coll, name)
	case "bolt":
		return NewBoltProvider(cfg.BoltPath, name)
	case "sqlite":
		return NewSQLiteProvider(ctx, cfg.SQLitePath, name)
	case "":
		return nil, errors.New("storage: no remote configured")
	default:
		return nil, fmt.Errorf("storage: unknown remote kind %q", cfg.Kind)
	}
}
