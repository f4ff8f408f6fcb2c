package store

import (
	"context"
	"fmt"
)

func (p *PostgresStore) PutBlob(ctx context.Context, key string, data []byte, contentType string) error {
	query := `INSERT INTO blobs (key, content_type, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data,
			created_at = now()`
	if data == nil {
		data = []byte{}
	}
	if _, err := p.pool.Exec(ctx, query, key, contentType, data); err != nil {
		return fmt.Errorf("storing blob %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) DeleteBlob(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM blobs WHERE key = $1", key); err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) PutBlob(ctx context.Context, key string, data []byte, contentType string) error {
	query := `INSERT INTO blobs (key, content_type, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			created_at = excluded.created_at`
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, key, contentType, data, nowNano()); err != nil {
		return fmt.Errorf("storing blob %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteBlob(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}
