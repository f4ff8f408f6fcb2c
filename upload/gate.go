// Package upload sequences an upload: analyze the text for conflicts, wait for
// the user when there are any, then commit the bytes and the metadata row.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"secondbrain/store"
	"secondbrain/types"
)

var (
	// ErrConcurrentUpload rejects a start while another upload is in flight
	// or waiting for a decision.
	ErrConcurrentUpload = errors.New("another upload is in progress")
	ErrNoPendingUpload  = errors.New("no upload is waiting for a decision")
	// ErrPartialCommit means the blob was stored but the metadata row was
	// not, leaving an orphaned blob.
	ErrPartialCommit = errors.New("file stored but its record was not saved")
)

type State string

const (
	StateIdle             State = "idle"
	StateAnalyzing        State = "analyzing"
	StateAwaitingDecision State = "awaiting_decision"
	StateCommitting       State = "committing"
)

// Checker produces the conflict report of a text.
type Checker interface {
	DetectConflicts(ctx context.Context, text, candidateName, ownerID string) types.ConflictReport
}

type DocumentWriter interface {
	InsertDocument(ctx context.Context, doc *types.Document) error
}

type BlobWriter interface {
	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
}

// File is an uploaded file held in memory.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// PendingUpload is what a gate keeps while the user decides.
type PendingUpload struct {
	File      File
	Text      *string
	Embedding []float32
}

// Outcome of Start or Proceed. Document is set once the file is committed;
// Warning carries the message of a conflict check that could not run.
type Outcome struct {
	State     State                 `json:"state"`
	Committed bool                  `json:"committed"`
	Document  *types.Document       `json:"-"`
	Report    *types.ConflictReport `json:"report,omitempty"`
	Warning   string                `json:"warning,omitempty"`
}

// Gate runs one upload at a time for one owner session.
type Gate struct {
	ownerID string
	checker Checker
	docs    DocumentWriter
	blobs   BlobWriter
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	touched time.Time
	pending *PendingUpload
	report  *types.ConflictReport
}

func NewGate(ownerID string, checker Checker, docs DocumentWriter, blobs BlobWriter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		ownerID: ownerID,
		checker: checker,
		docs:    docs,
		blobs:   blobs,
		now:     time.Now,
		logger:  logger.With("component", "upload", "owner", ownerID),
		state:   StateIdle,
		touched: time.Now(),
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Report returns a copy of the report of the upload waiting for a
// decision, or nil.
func (g *Gate) Report() *types.ConflictReport {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.report == nil {
		return nil
	}
	r := *g.report
	r.Conflicts = append([]types.Conflict(nil), g.report.Conflicts...)
	r.Embedding = nil
	return &r
}

// Start begins an upload. Files with text are checked for conflicts first:
// a clean or failed check commits right away, conflicts leave the gate
// waiting for Proceed or Cancel. Files without text are committed with no
// embedding.
func (g *Gate) Start(ctx context.Context, f File) (Outcome, error) {
	g.mu.Lock()
	if g.state != StateIdle {
		state := g.state
		g.mu.Unlock()
		g.logger.Warn("upload rejected", "name", f.Name, "state", state)
		return Outcome{}, ErrConcurrentUpload
	}
	g.state = StateAnalyzing
	g.touched = g.now()
	g.mu.Unlock()

	text, err := Extract(f)
	if err != nil {
		g.logger.Warn("text extraction failed, storing without analysis", "name", f.Name, "error", err)
	}
	if strings.TrimSpace(text) == "" {
		g.setState(StateCommitting)
		return g.commit(ctx, PendingUpload{File: f}, nil)
	}

	report := g.checker.DetectConflicts(ctx, text, f.Name, g.ownerID)
	p := PendingUpload{File: f, Text: &text, Embedding: report.Embedding}

	if report.HasConflicts {
		g.mu.Lock()
		g.pending = &p
		g.report = &report
		g.state = StateAwaitingDecision
		g.touched = g.now()
		g.mu.Unlock()
		g.logger.Info("upload waiting for decision", "name", f.Name, "conflicts", len(report.Conflicts))
		return Outcome{State: StateAwaitingDecision, Report: &report}, nil
	}

	g.setState(StateCommitting)
	return g.commit(ctx, p, &report)
}

// Proceed commits the waiting upload with the embedding computed when it
// was analyzed. The gate leaves AwaitingDecision before the lock is released,
// so a second Proceed or a Cancel racing with it gets ErrNoPendingUpload.
func (g *Gate) Proceed(ctx context.Context) (Outcome, error) {
	g.mu.Lock()
	if g.state != StateAwaitingDecision || g.pending == nil {
		g.mu.Unlock()
		return Outcome{}, ErrNoPendingUpload
	}
	p, report := *g.pending, g.report
	g.pending, g.report = nil, nil
	g.state = StateCommitting
	g.touched = g.now()
	g.mu.Unlock()

	g.logger.Info("upload accepted despite conflicts", "name", p.File.Name)
	return g.commit(ctx, p, report)
}

// Cancel drops the waiting upload without writing anything.
func (g *Gate) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateAwaitingDecision {
		return ErrNoPendingUpload
	}
	g.logger.Info("upload cancelled", "name", g.pending.File.Name)
	g.pending, g.report, g.state = nil, nil, StateIdle
	g.touched = g.now()
	return nil
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.touched = g.now()
	g.mu.Unlock()
}

// expire drops a gate that has been Idle or AwaitingDecision since before
// cutoff, discarding its pending upload. Gates in Analyzing or Committing
// never expire.
func (g *Gate) expire(cutoff time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateIdle && g.state != StateAwaitingDecision {
		return false
	}
	if !g.touched.Before(cutoff) {
		return false
	}
	if g.pending != nil {
		g.logger.Info("pending upload expired", "name", g.pending.File.Name)
	}
	g.pending, g.report, g.state = nil, nil, StateIdle
	return true
}

// commit writes the blob and then the metadata row. The caller has already
// moved the gate to Committing; it is Idle again when commit returns,
// whatever the result.
func (g *Gate) commit(ctx context.Context, p PendingUpload, report *types.ConflictReport) (Outcome, error) {
	defer g.setState(StateIdle)

	f := p.File
	key := store.BlobKey(g.ownerID, f.Name, g.now())
	if err := g.blobs.PutBlob(ctx, key, f.Data, f.MimeType); err != nil {
		g.logger.Error("storing file failed", "name", f.Name, "key", key, "error", err)
		return Outcome{}, fmt.Errorf("storing file: %w", err)
	}

	doc := &types.Document{
		OwnerID:    g.ownerID,
		Name:       f.Name,
		Size:       int64(len(f.Data)),
		MimeType:   f.MimeType,
		Content:    p.Text,
		Embedding:  p.Embedding,
		StorageKey: key,
	}
	if err := g.docs.InsertDocument(ctx, doc); err != nil {
		g.logger.Error("orphaned blob: metadata write failed, repair candidate", "name", f.Name, "key", key, "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrPartialCommit, err)
	}

	out := Outcome{State: StateIdle, Committed: true, Document: doc, Report: report}
	if report != nil && report.Error != "" {
		out.Warning = "conflict check unavailable: " + report.Error
	}
	g.logger.Info("file committed", "id", doc.ID, "name", f.Name, "size", doc.Size, "embedded", doc.HasEmbedding())
	return out, nil
}
