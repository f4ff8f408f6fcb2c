// Package search finds an owner's stored documents that are close to a
// query vector.
//
// A query first goes to the store's server-side primitive. When that is
// missing, fails or returns rows that do not validate, the searcher scans
// the owner's embedded documents locally with cosine similarity. Both paths
// keep only similarities strictly above the threshold, order them by
// descending similarity and cut the list at the limit, so they agree on the
// same data.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"secondbrain/types"
	"secondbrain/vecmath"
)

// DefaultLimit is used when a query asks for fewer than one match.
const DefaultLimit = 5

// ErrPrimitiveUnavailable is returned by stores that have no server-side
// nearest-neighbour function.
var ErrPrimitiveUnavailable = errors.New("similarity search primitive unavailable")

// Matcher runs the server-side primitive.
type Matcher interface {
	MatchDocuments(ctx context.Context, vec []float32, ownerID string, threshold float64, limit int) ([]types.Match, error)
}

// EmbeddedLister returns every document of an owner that has an embedding.
type EmbeddedLister interface {
	ListEmbedded(ctx context.Context, ownerID string) ([]types.Document, error)
}

// Store is what a Searcher needs from the metadata store.
type Store interface {
	Matcher
	EmbeddedLister
}

// PrimitiveError wraps a failed or malformed primary search. It never
// leaves the package as a failure of Query; it only selects the fallback.
type PrimitiveError struct {
	Err error
}

func (e *PrimitiveError) Error() string {
	return "search primitive: " + e.Err.Error()
}

func (e *PrimitiveError) Unwrap() error {
	return e.Err
}

// Path tells which route produced a Result.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathNone     Path = "none"
)

type Query struct {
	Vector    []float32
	OwnerID   string
	Threshold float64
	Limit     int
}

// Result of a Query. Err holds the error that was swallowed on the way:
// the primitive failure when Path is fallback, or both failures when
// Path is none.
type Result struct {
	Matches []types.Match
	Path    Path
	Err     error
}

// Degraded reports whether the primary path could not be used.
func (r Result) Degraded() bool {
	return r.Err != nil
}

type Searcher struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewSearcher returns a Searcher over store. timeout bounds each store call;
// zero means no bound beyond ctx.
func NewSearcher(store Store, timeout time.Duration, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "search"),
	}
}

// Query returns the owner's documents whose similarity to q.Vector is above
// q.Threshold. It never returns an error: an unusable store yields an empty
// result with Path none.
func (s *Searcher) Query(ctx context.Context, q Query) Result {
	if len(q.Vector) == 0 {
		return Result{Path: PathNone}
	}
	q.Threshold = min(max(q.Threshold, 0), 1)
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}

	matches, err := s.primary(ctx, q)
	if err == nil {
		s.logger.Debug("primary search done", "owner", q.OwnerID, "matches", len(matches))
		return Result{Matches: matches, Path: PathPrimary}
	}
	if errors.Is(err, ErrPrimitiveUnavailable) {
		s.logger.Debug("search primitive unavailable, scanning locally", "owner", q.OwnerID)
	} else {
		s.logger.Warn("primary search failed, scanning locally", "owner", q.OwnerID, "error", err)
	}

	matches, ferr := s.fallback(ctx, q)
	if ferr != nil {
		s.logger.Error("fallback search failed", "owner", q.OwnerID, "error", ferr)
		return Result{Path: PathNone, Err: errors.Join(err, ferr)}
	}
	s.logger.Debug("fallback search done", "owner", q.OwnerID, "matches", len(matches))
	return Result{Matches: matches, Path: PathFallback, Err: err}
}

func (s *Searcher) primary(ctx context.Context, q Query) ([]types.Match, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.store.MatchDocuments(ctx, q.Vector, q.OwnerID, q.Threshold, q.Limit)
	if err != nil {
		return nil, &PrimitiveError{Err: err}
	}

	matches := make([]types.Match, 0, len(rows))
	for i, m := range rows {
		if err := checkMatch(m); err != nil {
			return nil, &PrimitiveError{Err: fmt.Errorf("row %d: %w", i, err)}
		}
		m.Similarity = min(max(m.Similarity, -1), 1)
		if m.Similarity > q.Threshold {
			matches = append(matches, m)
		}
	}
	return rank(matches, q.Limit), nil
}

// similarityTolerance absorbs float error in 1 - cosine distance.
const similarityTolerance = 1e-6

func checkMatch(m types.Match) error {
	if m.ID == uuid.Nil {
		return errors.New("missing document id")
	}
	if math.IsNaN(m.Similarity) || math.IsInf(m.Similarity, 0) {
		return fmt.Errorf("similarity %v is not finite", m.Similarity)
	}
	if m.Similarity < -1-similarityTolerance || m.Similarity > 1+similarityTolerance {
		return fmt.Errorf("similarity %v out of range", m.Similarity)
	}
	return nil
}

func (s *Searcher) fallback(ctx context.Context, q Query) ([]types.Match, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	docs, err := s.store.ListEmbedded(ctx, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("listing embedded documents: %w", err)
	}

	qNorm := vecmath.Norm(q.Vector)
	var matches []types.Match
	for _, d := range docs {
		if !d.HasEmbedding() {
			continue
		}
		sim := vecmath.CosineWithNorm(q.Vector, qNorm, d.Embedding)
		if sim > q.Threshold {
			matches = append(matches, types.Match{
				ID:         d.ID,
				Name:       d.Name,
				Content:    d.Content,
				Similarity: sim,
			})
		}
	}
	return rank(matches, q.Limit), nil
}

// rank orders matches by descending similarity, keeping input order on
// ties, and cuts the list at limit.
func rank(matches []types.Match, limit int) []types.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (s *Searcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
