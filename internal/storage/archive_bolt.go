package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

const boltRootBucket = "repos"

// BoltArchive stores evicted commit contents inside a BoltDB file.
type BoltArchive struct {
	db   *bolt.DB
	once sync.Once
}

// NewBoltArchive opens (or creates) a BoltDB archive at the provided path.
func NewBoltArchive(path string) (*BoltArchive, error) {
	if path == "" {
		return nil, errors.New("archive path is required")
	}

	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(cleaned, 0o600, nil)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltRootBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltArchive{db: db}, nil
}

// Store writes content data under repoID/commitID.
func (a *BoltArchive) Store(ctx context.Context, repoID, commitID string, data []byte) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		root := tx.Bucket([]byte(boltRootBucket))
		if root == nil {
			return errors.New("archive root bucket missing")
		}

		repoBucket, err := root.CreateBucketIfNotExists([]byte(repoID))
		if err != nil {
			return err
		}
		return repoBucket.Put([]byte(commitID), data)
	})
}

// Fetch retrieves content data for repoID/commitID.
func (a *BoltArchive) Fetch(ctx context.Context, repoID, commitID string) ([]byte, error) {
	var result []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		root := tx.Bucket([]byte(boltRootBucket))
		if root == nil {
			return &NotFoundError{Resource: "archive", Key: commitID}
		}
		repoBucket := root.Bucket([]byte(repoID))
		if repoBucket == nil {
			return &NotFoundError{Resource: "archive", Key: commitID}
		}
		data := repoBucket.Get([]byte(commitID))
		if data == nil {
			return &NotFoundError{Resource: "archive", Key: commitID}
		}
		result = append([]byte{}, data...)
		return nil
	})
	return result, err
}

// Remove deletes content data (best-effort).
func (a *BoltArchive) Remove(ctx context.Context, repoID, commitID string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		root := tx.Bucket([]byte(boltRootBucket))
		if root == nil {
			return nil
		}
		repoBucket := root.Bucket([]byte(repoID))
		if repoBucket == nil {
			return nil
		}
		return repoBucket.Delete([]byte(commitID))
	})
}

// Close shuts down the Bolt DB.
func (a *BoltArchive) Close() error {
	a.once.Do(func() {
		_ = a.db.Close()
	})
	return nil
}
