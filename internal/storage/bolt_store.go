package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var vaultBucket = []byte("vaults")

// BoltProvider keeps blobs in a bbolt database file, one key per vault name.
type BoltProvider struct {
	db   *bolt.DB
	name []byte
}

func NewBoltProvider(path, name string) (*BoltProvider, error) {
	if path == "" {
		return nil, errors.New("storage: bolt path is empty")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(vaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltProvider{db: db, name: []byte(name)}, nil
}

func (b *BoltProvider) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(vaultBucket).Get(b.name)
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (b *BoltProvider) Upload(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(vaultBucket).Put(b.name, data)
	})
}

func (b *BoltProvider) Close(context.Context) error { return b.db.Close() }
