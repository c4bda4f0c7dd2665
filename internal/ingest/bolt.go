package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var documentsBucket = []byte("documents")

// BoltStore keeps documents in a single-file bbolt database so a local agent
// can re-use ingested docs across runs.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Store(ctx context.Context, doc *ProcessedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Put([]byte(doc.Metadata.Title), data)
	})
}

func (b *BoltStore) Get(ctx context.Context, title string) (*ProcessedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *ProcessedDocument
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(documentsBucket).Get([]byte(title))
		if data == nil {
			return ErrNotFound
		}
		doc = &ProcessedDocument{}
		return json.Unmarshal(data, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List walks keys in byte order, which is already sorted by title.
func (b *BoltStore) List(ctx context.Context) ([]DocumentMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []DocumentMetadata
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).ForEach(func(_, v []byte) error {
			var doc ProcessedDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, doc.Metadata)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

func (b *BoltStore) Delete(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Delete([]byte(title))
	})
}

// Ping reports whether the database is still open.
func (b *BoltStore) Ping(_ context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(documentsBucket) == nil {
			return fmt.Errorf("documents bucket missing")
		}
		return nil
	})
}
