// Package conflict checks a text against an owner's stored documents before
// it is uploaded and reports the near-duplicates it finds.
//
// Checking is advisory. DetectConflicts never returns an error: a failed
// embedding or search produces a report with Error set and no conflicts, and
// the caller carries on with the upload.
package conflict

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"secondbrain/model"
	"secondbrain/search"
	"secondbrain/types"
)

const (
	DefaultThreshold = 0.85
	DefaultLimit     = 5

	previewRunes       = 100
	previewPlaceholder = "No preview available"
)

// Searcher is the part of search.Searcher the detector uses.
type Searcher interface {
	Query(ctx context.Context, q search.Query) search.Result
}

// DocumentLister lists an owner's files for diagnostics.
type DocumentLister interface {
	ListDocuments(ctx context.Context, ownerID string) ([]types.Document, error)
}

type Options struct {
	Threshold float64
	Limit     int
}

func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Limit: DefaultLimit}
}

type Detector struct {
	embedder model.EmbedderInterface
	searcher Searcher
	docs     DocumentLister
	opts     Options
	logger   *slog.Logger
}

func NewDetector(embedder model.EmbedderInterface, searcher Searcher, docs DocumentLister, opts Options, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Threshold = clampThreshold(opts.Threshold)
	return &Detector{
		embedder: embedder,
		searcher: searcher,
		docs:     docs,
		opts:     opts,
		logger:   logger.With("component", "conflict"),
	}
}

// WithThreshold returns a copy of d that flags similarities above t.
func (d *Detector) WithThreshold(t float64) *Detector {
	c := *d
	c.opts.Threshold = clampThreshold(t)
	return &c
}

func (d *Detector) Threshold() float64 {
	return d.opts.Threshold
}

// DetectConflicts embeds text and looks for the owner's documents that are
// above the threshold. The embedding is returned in the report whenever it
// was computed, so the upload can store it without a second provider call.
func (d *Detector) DetectConflicts(ctx context.Context, text, candidateName, ownerID string) types.ConflictReport {
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		d.logEmbedFailure(err, candidateName, ownerID)
		return degraded(nil, err)
	}
	if len(vec) == 0 {
		return types.ConflictReport{Conflicts: []types.Conflict{}}
	}

	report := d.reportFor(ctx, vec, ownerID)
	if report.HasConflicts {
		d.logger.Info("conflicts found", "owner", ownerID, "name", candidateName, "count", len(report.Conflicts))
	}
	return report
}

func (d *Detector) reportFor(ctx context.Context, vec []float32, ownerID string) types.ConflictReport {
	res := d.searcher.Query(ctx, search.Query{
		Vector:    vec,
		OwnerID:   ownerID,
		Threshold: d.opts.Threshold,
		Limit:     d.opts.Limit,
	})
	if res.Path == search.PathNone && res.Err != nil {
		return degraded(vec, res.Err)
	}

	conflicts := make([]types.Conflict, 0, len(res.Matches))
	for _, m := range res.Matches {
		conflicts = append(conflicts, types.Conflict{
			ID:             m.ID,
			Name:           m.Name,
			Similarity:     Percent(m.Similarity),
			ContentPreview: Preview(m.Content),
		})
	}
	return types.ConflictReport{
		HasConflicts: len(conflicts) > 0,
		Conflicts:    conflicts,
		Embedding:    vec,
		Degraded:     res.Path == search.PathFallback,
		SearchPath:   string(res.Path),
	}
}

func (d *Detector) logEmbedFailure(err error, name, ownerID string) {
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		d.logger.Error("conflict check skipped, embedding not configured", "setting", cfgErr.Setting, "error", err)
		return
	}
	d.logger.Warn("conflict check degraded", "owner", ownerID, "name", name, "error", err)
}

func degraded(vec []float32, err error) types.ConflictReport {
	return types.ConflictReport{
		Conflicts: []types.Conflict{},
		Embedding: vec,
		Error:     err.Error(),
		Degraded:  true,
	}
}

// Percent converts a similarity to a whole percentage in [0, 100].
func Percent(similarity float64) int {
	p := int(math.Round(similarity * 100))
	return min(max(p, 0), 100)
}

// Preview returns the first 100 characters of content, with "..." when
// there is more, or a placeholder when there is no text.
func Preview(content *string) string {
	if content == nil || strings.TrimSpace(*content) == "" {
		return previewPlaceholder
	}
	s := *content
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewRunes]) + "..."
}

func clampThreshold(t float64) float64 {
	if math.IsNaN(t) {
		return DefaultThreshold
	}
	return min(max(t, 0), 1)
}
