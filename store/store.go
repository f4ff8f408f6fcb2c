package store

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondbrain/types"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore holds file metadata rows. Every call is scoped to one owner.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *types.Document) error
	ListDocuments(ctx context.Context, ownerID string) ([]types.Document, error)
	ListEmbedded(ctx context.Context, ownerID string) ([]types.Document, error)
	MatchDocuments(ctx context.Context, vec []float32, ownerID string, threshold float64, limit int) ([]types.Match, error)
	// DeleteDocument removes one row and returns its blob key.
	DeleteDocument(ctx context.Context, ownerID string, id uuid.UUID) (string, error)
	// DeleteByOwner removes every row of the owner and returns their blob keys.
	DeleteByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// BlobStore keeps raw file bytes by key.
type BlobStore interface {
	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
	// DeleteBlob succeeds when the key does not exist.
	DeleteBlob(ctx context.Context, key string) error
}

// Storer is a complete backend: metadata, blobs and lifecycle.
type Storer interface {
	DocumentStore
	BlobStore
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// BlobKey builds the storage key of an uploaded file: the owner as prefix,
// then the upload time in milliseconds and the base name of the file.
func BlobKey(ownerID, fileName string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	return ownerID + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + name
}

// prepare fills the generated fields of a new row.
func prepare(doc *types.Document) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
}
