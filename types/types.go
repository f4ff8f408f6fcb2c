package types

import (
	"time"

	"github.com/google/uuid"
)

// Document is one stored file row. Content is nil for files without
// extractable text; Embedding is nil when no vector was computed.
// Listings do not load vectors and set Embedded instead.
type Document struct {
	ID         uuid.UUID
	OwnerID    string
	Name       string
	Size       int64
	MimeType   string
	Content    *string
	Embedding  []float32
	Embedded   bool
	StorageKey string
	CreatedAt  time.Time
}

// HasEmbedding reports whether a vector is attached to the document.
func (d Document) HasEmbedding() bool {
	return d.Embedded || len(d.Embedding) > 0
}

// Match is a stored document found close to a query vector.
type Match struct {
	ID         uuid.UUID
	Name       string
	Content    *string
	Similarity float64
}

// Conflict is one entry of a ConflictReport.
type Conflict struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Similarity     int       `json:"similarity"`
	ContentPreview string    `json:"content_preview"`
}

// ConflictReport is the result of checking a text against an owner's documents.
// Embedding is kept for the commit step and never sent to clients.
type ConflictReport struct {
	HasConflicts bool       `json:"hasConflicts"`
	Conflicts    []Conflict `json:"conflicts"`
	Embedding    []float32  `json:"-"`
	Error        string     `json:"error,omitempty"`
	Degraded     bool       `json:"degraded,omitempty"`
	SearchPath   string     `json:"search_path,omitempty"`
}

// FileInfo is the listing shape of a Document.
type FileInfo struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	MimeType     string    `json:"type"`
	Preview      string    `json:"preview,omitempty"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
}
