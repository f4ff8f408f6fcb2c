package conflict

import (
	"context"
	"math"
	"strings"

	"secondbrain/search"
)

// SampleText is embedded when a diagnostics run gets no text.
const SampleText = "The weather today is sunny and warm. Perfect for a walk in the park."

// DiagnosticThreshold is low on purpose so that loosely related documents show up.
const DiagnosticThreshold = 0.5

type FileCheck struct {
	Name         string `json:"name"`
	HasEmbedding bool   `json:"has_embedding"`
}

type SimilarDoc struct {
	Name string `json:"name"`
	// Similarity is a percentage with one decimal.
	Similarity float64 `json:"similarity"`
}

// Diagnostics is the result of a diagnostics run. Each stage records its own
// error and the run stops at the first stage that cannot continue.
type Diagnostics struct {
	OwnerID    string       `json:"owner_id"`
	Files      []FileCheck  `json:"files"`
	FilesError string       `json:"files_error,omitempty"`
	SampleText string       `json:"sample_text"`
	Dimensions int          `json:"dimensions"`
	EmbedError string       `json:"embed_error,omitempty"`
	Threshold  float64      `json:"threshold"`
	Similar    []SimilarDoc `json:"similar"`
	SearchPath string       `json:"search_path,omitempty"`
	SearchNote string       `json:"search_note,omitempty"`

	HasConflicts  bool   `json:"has_conflicts"`
	ConflictCount int    `json:"conflict_count"`
	ConflictError string `json:"conflict_error,omitempty"`
}

// Diagnose walks the whole pipeline for one owner: it lists the stored files,
// embeds text, searches at threshold and runs a full conflict check with the
// detector's own threshold. Blank text uses SampleText; a threshold outside
// (0, 1] uses DiagnosticThreshold.
func (d *Detector) Diagnose(ctx context.Context, ownerID, text string, threshold float64) Diagnostics {
	if strings.TrimSpace(text) == "" {
		text = SampleText
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		threshold = DiagnosticThreshold
	}
	diag := Diagnostics{
		OwnerID:    ownerID,
		Files:      []FileCheck{},
		SampleText: text,
		Threshold:  threshold,
		Similar:    []SimilarDoc{},
	}

	if d.docs != nil {
		docs, err := d.docs.ListDocuments(ctx, ownerID)
		if err != nil {
			diag.FilesError = err.Error()
		}
		for _, doc := range docs {
			diag.Files = append(diag.Files, FileCheck{Name: doc.Name, HasEmbedding: doc.HasEmbedding()})
		}
	}

	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		diag.EmbedError = err.Error()
		d.logger.Warn("diagnostics: embedding failed", "owner", ownerID, "error", err)
		return diag
	}
	diag.Dimensions = len(vec)

	res := d.searcher.Query(ctx, search.Query{
		Vector:    vec,
		OwnerID:   ownerID,
		Threshold: threshold,
		Limit:     d.opts.Limit,
	})
	diag.SearchPath = string(res.Path)
	if res.Err != nil {
		diag.SearchNote = res.Err.Error()
	}
	for _, m := range res.Matches {
		diag.Similar = append(diag.Similar, SimilarDoc{
			Name:       m.Name,
			Similarity: math.Round(m.Similarity*1000) / 10,
		})
	}

	report := d.reportFor(ctx, vec, ownerID)
	diag.HasConflicts = report.HasConflicts
	diag.ConflictCount = len(report.Conflicts)
	diag.ConflictError = report.Error

	d.logger.Info("diagnostics done", "owner", ownerID, "files", len(diag.Files), "similar", len(diag.Similar), "conflicts", diag.ConflictCount)
	return diag
}
