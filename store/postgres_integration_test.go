//go:build integration

package store

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/google/uuid"

	"secondbrain/search"
	"secondbrain/types"
)

// newPostgresStore connects to PG_TEST_DSN. The database needs the vector
// extension available and should be dedicated to tests.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN is not set, skipping postgres integration test")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, 3, nil)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func TestPostgres_FindSimilarDocumentsAgreesWithFallback(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	owner := uuid.NewString()
	other := uuid.NewString()
	t.Cleanup(func() {
		s.DeleteByOwner(ctx, owner)
		s.DeleteByOwner(ctx, other)
	})

	for _, sim := range []float64{0.40, 0.90, 0.97} {
		doc := types.Document{OwnerID: owner, Name: "doc", Content: textPtr("text"), Embedding: unit(sim), StorageKey: owner + "/k"}
		if err := s.InsertDocument(ctx, &doc); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}
	foreign := types.Document{OwnerID: other, Name: "foreign", Embedding: unit(0.99), StorageKey: other + "/k"}
	if err := s.InsertDocument(ctx, &foreign); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	q := []float32{1, 0, 0}
	primary, err := s.MatchDocuments(ctx, q, owner, 0.85, 5)
	if err != nil {
		t.Fatalf("MatchDocuments: %v", err)
	}
	if len(primary) != 2 {
		t.Fatalf("got %d matches, want 2", len(primary))
	}
	if math.Abs(primary[0].Similarity-0.97) > 1e-4 || math.Abs(primary[1].Similarity-0.90) > 1e-4 {
		t.Errorf("similarities = [%.4f %.4f], want [0.97 0.90]", primary[0].Similarity, primary[1].Similarity)
	}

	fallback := search.NewSearcher(fallbackOnly{s}, 0, nil).Query(ctx, search.Query{
		Vector: q, OwnerID: owner, Threshold: 0.85, Limit: 5,
	})
	if fallback.Path != search.PathFallback {
		t.Fatalf("Path = %s, want fallback", fallback.Path)
	}
	if len(fallback.Matches) != len(primary) {
		t.Fatalf("fallback returned %d matches, primary %d", len(fallback.Matches), len(primary))
	}
	for i := range primary {
		if fallback.Matches[i].ID != primary[i].ID {
			t.Errorf("match %d: fallback %s, primary %s", i, fallback.Matches[i].ID, primary[i].ID)
		}
	}
}

func TestPostgres_ListAndDelete(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	owner := uuid.NewString()

	doc := types.Document{OwnerID: owner, Name: "a.bin", Size: 4, MimeType: "application/octet-stream", StorageKey: owner + "/1_a.bin"}
	if err := s.InsertDocument(ctx, &doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := s.PutBlob(ctx, doc.StorageKey, []byte{1, 2, 3, 4}, doc.MimeType); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	docs, err := s.ListDocuments(ctx, owner)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].HasEmbedding() || docs[0].Content != nil {
		t.Fatalf("got %+v", docs)
	}

	key, err := s.DeleteDocument(ctx, owner, doc.ID)
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if key != doc.StorageKey {
		t.Errorf("key = %q, want %q", key, doc.StorageKey)
	}
	if err := s.DeleteBlob(ctx, key); err != nil {
		t.Errorf("DeleteBlob: %v", err)
	}
	if _, err := s.DeleteDocument(ctx, owner, doc.ID); err != ErrNotFound {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

// fallbackOnly hides the SQL function so the searcher scans locally.
type fallbackOnly struct {
	*PostgresStore
}

func (fallbackOnly) MatchDocuments(context.Context, []float32, string, float64, int) ([]types.Match, error) {
	return nil, search.ErrPrimitiveUnavailable
}
