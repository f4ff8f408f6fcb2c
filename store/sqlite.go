package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"secondbrain/search"
	"secondbrain/types"
)

// SQLiteStore keeps metadata and blobs in one local SQLite file. It has no
// similarity function, so searches over it always use the local scan.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: avoids "database is locked" and keeps :memory: alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store", "driver", "sqlite"),
	}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		type TEXT NOT NULL DEFAULT '',
		content TEXT,
		embedding BLOB,
		storage_key TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id, created_at);

	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		content_type TEXT NOT NULL DEFAULT '',
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	s.logger.Info("schema ready")
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertDocument(ctx context.Context, doc *types.Document) error {
	prepare(doc)

	var embedding any
	if len(doc.Embedding) > 0 {
		embedding = encodeFloat32s(doc.Embedding)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, user_id, name, size, type, content, embedding, storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(),
		doc.OwnerID,
		doc.Name,
		doc.Size,
		doc.MimeType,
		nullString(doc.Content),
		embedding,
		doc.StorageKey,
		doc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, ownerID string) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, size, type, content, embedding IS NOT NULL, storage_key, created_at
		FROM files
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var (
			doc     types.Document
			id      string
			content sql.NullString
			created int64
		)
		if err := rows.Scan(&id, &doc.OwnerID, &doc.Name, &doc.Size, &doc.MimeType,
			&content, &doc.Embedded, &doc.StorageKey, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if doc.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing document id %q: %w", id, err)
		}
		doc.Content = stringPtr(content)
		doc.CreatedAt = time.Unix(0, created).UTC()
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) ListEmbedded(ctx context.Context, ownerID string) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, content, embedding
		FROM files
		WHERE user_id = ? AND embedding IS NOT NULL
		ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing embedded documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var (
			id      string
			content sql.NullString
			blob    []byte
		)
		doc := types.Document{OwnerID: ownerID, Embedded: true}
		if err := rows.Scan(&id, &doc.Name, &content, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedded document: %w", err)
		}
		if doc.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing document id %q: %w", id, err)
		}
		if doc.Embedding, err = decodeFloat32s(blob); err != nil {
			s.logger.Warn("skipping document with corrupt embedding", "id", id, "error", err)
			continue
		}
		doc.Content = stringPtr(content)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MatchDocuments always reports search.ErrPrimitiveUnavailable.
func (s *SQLiteStore) MatchDocuments(context.Context, []float32, string, float64, int) ([]types.Match, error) {
	return nil, search.ErrPrimitiveUnavailable
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, ownerID string, id uuid.UUID) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM files WHERE id = ? AND user_id = ? RETURNING storage_key",
		id.String(), ownerID,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("deleting document: %w", err)
	}
	return key, nil
}

func (s *SQLiteStore) DeleteByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "DELETE FROM files WHERE user_id = ? RETURNING storage_key", ownerID)
	if err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nowNano() int64 {
	return time.Now().UnixNano()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
