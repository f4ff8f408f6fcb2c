package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"secondbrain/search"
	"secondbrain/types"
)

// undefinedFunction is the SQLSTATE for a call to a missing function.
const undefinedFunction = "42883"

type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, dimensions int, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{
		pool:       pool,
		dimensions: dimensions,
		logger:     logger.With("component", "store", "driver", "postgres"),
	}, nil
}

func (p *PostgresStore) InsertDocument(ctx context.Context, doc *types.Document) error {
	prepare(doc)

	var embedding any
	if len(doc.Embedding) > 0 {
		embedding = pgvector.NewVector(doc.Embedding)
	}

	query := `INSERT INTO files (id, user_id, name, size, type, content, embedding, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := p.pool.Exec(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Name,
		doc.Size,
		doc.MimeType,
		doc.Content,
		embedding,
		doc.StorageKey,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]types.Document, error) {
	query := `SELECT id, user_id, name, size, type, content, embedding IS NOT NULL, storage_key, created_at
		FROM files
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := p.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(
			&doc.ID,
			&doc.OwnerID,
			&doc.Name,
			&doc.Size,
			&doc.MimeType,
			&doc.Content,
			&doc.Embedded,
			&doc.StorageKey,
			&doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) ListEmbedded(ctx context.Context, ownerID string) ([]types.Document, error) {
	query := `SELECT id, name, content, embedding
		FROM files
		WHERE user_id = $1 AND embedding IS NOT NULL
		ORDER BY created_at DESC`
	rows, err := p.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing embedded documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc := types.Document{OwnerID: ownerID, Embedded: true}
		var vec pgvector.Vector
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Content, &vec); err != nil {
			return nil, fmt.Errorf("scanning embedded document: %w", err)
		}
		doc.Embedding = vec.Slice()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MatchDocuments calls find_similar_documents. A database without the
// function reports search.ErrPrimitiveUnavailable.
func (p *PostgresStore) MatchDocuments(ctx context.Context, vec []float32, ownerID string, threshold float64, limit int) ([]types.Match, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `SELECT id, name, content, similarity FROM find_similar_documents($1, $2, $3, $4)`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vec), ownerID, threshold, limit)
	if err != nil {
		return nil, classifyMatchErr(err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var m types.Match
		if err := rows.Scan(&m.ID, &m.Name, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyMatchErr(err)
	}
	return matches, nil
}

func classifyMatchErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedFunction {
		return fmt.Errorf("%w: %s", search.ErrPrimitiveUnavailable, pgErr.Message)
	}
	return fmt.Errorf("matching documents: %w", err)
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, ownerID string, id uuid.UUID) (string, error) {
	var key string
	err := p.pool.QueryRow(ctx,
		"DELETE FROM files WHERE id = $1 AND user_id = $2 RETURNING storage_key",
		id, ownerID,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("deleting document: %w", err)
	}
	return key, nil
}

func (p *PostgresStore) DeleteByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, "DELETE FROM files WHERE user_id = $1 RETURNING storage_key", ownerID)
	if err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	return keys, nil
}

// createTables builds the schema. The similarity function scans the owner's
// rows exactly; an approximate index could drop matches the local scan
// would find.
func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS files (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		type TEXT NOT NULL DEFAULT '',
		content TEXT,
		embedding vector(%d),
		storage_key TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		content_type TEXT NOT NULL DEFAULT '',
		data BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE OR REPLACE FUNCTION find_similar_documents(
		query_embedding vector(%d),
		user_id TEXT,
		similarity_threshold FLOAT,
		match_count INT
	)
	RETURNS TABLE (id UUID, name TEXT, content TEXT, similarity FLOAT)
	LANGUAGE sql STABLE
	AS $$
		SELECT f.id, f.name, f.content, 1 - (f.embedding <=> query_embedding) AS similarity
		FROM files f
		WHERE f.user_id = find_similar_documents.user_id
			AND f.embedding IS NOT NULL
			AND 1 - (f.embedding <=> query_embedding) > similarity_threshold
		ORDER BY f.embedding <=> query_embedding
		LIMIT match_count;
	$$;
	`, p.dimensions, p.dimensions)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	if err := p.createTables(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	p.logger.Info("schema ready", "dimensions", p.dimensions)
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
