package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists documents in the documents table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over a migrated database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Store(ctx context.Context, doc *ProcessedDocument) error {
	chunks, err := json.Marshal(doc.Chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (title, checksum, doc_type, version, content, chunks, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (title) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			doc_type = EXCLUDED.doc_type,
			version = EXCLUDED.version,
			content = EXCLUDED.content,
			chunks = EXCLUDED.chunks,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, doc.Metadata.Title, doc.Checksum, string(doc.Metadata.DocType), doc.Metadata.Version,
		doc.Content, chunks, meta, doc.Metadata.CreatedAt, doc.Metadata.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store document %s: %w", doc.Metadata.Title, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, title string) (*ProcessedDocument, error) {
	var (
		doc          ProcessedDocument
		chunks, meta []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT checksum, content, chunks, metadata FROM documents WHERE title = $1
	`, title).Scan(&doc.Checksum, &doc.Content, &chunks, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", title, err)
	}
	if err := json.Unmarshal(chunks, &doc.Chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &doc, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]DocumentMetadata, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT metadata FROM documents ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DocumentMetadata
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var meta DocumentMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, title string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE title = $1`, title)
	return err
}

// Ping checks the connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
