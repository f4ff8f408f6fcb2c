package conflict

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/google/uuid"

	"secondbrain/model"
	"secondbrain/search"
	"secondbrain/store"
	"secondbrain/types"
)

// fakeEmbedder counts calls and delegates to embedFn.
type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embedFn(ctx, text)
}

// bagOfWords is a deterministic stand-in for the provider: equal texts get
// equal vectors and shared words raise the similarity.
func bagOfWords(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec := make([]float32, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

type fakeSearcher struct {
	queryFn func(ctx context.Context, q search.Query) search.Result
	last    search.Query
	calls   int
}

func (f *fakeSearcher) Query(ctx context.Context, q search.Query) search.Result {
	f.calls++
	f.last = q
	return f.queryFn(ctx, q)
}

func textPtr(s string) *string { return &s }

func TestDetectConflicts_EmptyTextSkipsEverything(t *testing.T) {
	emb := &fakeEmbedder{embedFn: bagOfWords}
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		t.Fatal("search called for empty text")
		return search.Result{}
	}}
	d := NewDetector(emb, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "", "empty.txt", "alice")

	if report.HasConflicts {
		t.Error("HasConflicts = true for empty text")
	}
	if report.Conflicts == nil || len(report.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want empty non-nil slice", report.Conflicts)
	}
	if report.Error != "" {
		t.Errorf("Error = %q, want none", report.Error)
	}
	if srch.calls != 0 {
		t.Errorf("search called %d times", srch.calls)
	}
}

func TestDetectConflicts_MapsMatches(t *testing.T) {
	long := strings.Repeat("a", 150)
	id1, id2 := uuid.New(), uuid.New()
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		return search.Result{Path: search.PathPrimary, Matches: []types.Match{
			{ID: id1, Name: "first.txt", Content: textPtr(long), Similarity: 0.9749},
			{ID: id2, Name: "scan.pdf", Content: nil, Similarity: 0.906},
		}}
	}}
	emb := &fakeEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	}}
	d := NewDetector(emb, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "some text", "new.txt", "alice")

	if !report.HasConflicts || len(report.Conflicts) != 2 {
		t.Fatalf("got %+v, want two conflicts", report)
	}
	c := report.Conflicts[0]
	if c.ID != id1 || c.Name != "first.txt" || c.Similarity != 97 {
		t.Errorf("conflict 0 = %+v", c)
	}
	if c.ContentPreview != strings.Repeat("a", 100)+"..." {
		t.Errorf("preview = %q", c.ContentPreview)
	}
	if report.Conflicts[1].Similarity != 91 {
		t.Errorf("similarity = %d, want 91", report.Conflicts[1].Similarity)
	}
	if report.Conflicts[1].ContentPreview != "No preview available" {
		t.Errorf("preview = %q, want placeholder", report.Conflicts[1].ContentPreview)
	}
	if len(report.Embedding) != 3 {
		t.Errorf("Embedding = %v, want the computed vector", report.Embedding)
	}
	if srch.last.Threshold != DefaultThreshold || srch.last.Limit != DefaultLimit || srch.last.OwnerID != "alice" {
		t.Errorf("query = %+v", srch.last)
	}
}

func TestDetectConflicts_NoMatchesKeepsEmbedding(t *testing.T) {
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		return search.Result{Path: search.PathPrimary}
	}}
	d := NewDetector(&fakeEmbedder{embedFn: bagOfWords}, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "fresh content", "new.txt", "alice")

	if report.HasConflicts || len(report.Conflicts) != 0 {
		t.Errorf("got %+v, want no conflicts", report)
	}
	if len(report.Embedding) == 0 {
		t.Error("embedding dropped from a clean report")
	}
}

func TestDetectConflicts_ProviderFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, &model.ProviderError{StatusCode: 429, Body: "rate limited"}
	}}
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		t.Fatal("search called after embedding failed")
		return search.Result{}
	}}
	d := NewDetector(emb, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "text", "a.txt", "alice")

	if report.HasConflicts || len(report.Conflicts) != 0 {
		t.Errorf("got %+v, want no conflicts", report)
	}
	if !strings.Contains(report.Error, "429") {
		t.Errorf("Error = %q, want the provider status", report.Error)
	}
}

func TestDetectConflicts_SearchFailureDegrades(t *testing.T) {
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		return search.Result{Path: search.PathNone, Err: errors.New("store unreachable")}
	}}
	d := NewDetector(&fakeEmbedder{embedFn: bagOfWords}, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "text", "a.txt", "alice")

	if report.HasConflicts {
		t.Error("HasConflicts = true after a failed search")
	}
	if report.Error != "store unreachable" {
		t.Errorf("Error = %q", report.Error)
	}
	if len(report.Embedding) == 0 {
		t.Error("embedding dropped from a degraded report")
	}
}

func TestDetectConflicts_FallbackMarked(t *testing.T) {
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		return search.Result{Path: search.PathFallback, Err: search.ErrPrimitiveUnavailable, Matches: []types.Match{
			{ID: uuid.New(), Name: "x", Similarity: 0.99},
		}}
	}}
	d := NewDetector(&fakeEmbedder{embedFn: bagOfWords}, srch, nil, DefaultOptions(), nil)

	report := d.DetectConflicts(context.Background(), "text", "a.txt", "alice")

	if !report.HasConflicts {
		t.Error("fallback matches were dropped")
	}
	if !report.Degraded || report.SearchPath != "fallback" {
		t.Errorf("Degraded = %v, SearchPath = %q", report.Degraded, report.SearchPath)
	}
	if report.Error != "" {
		t.Errorf("Error = %q, want none for a working fallback", report.Error)
	}
}

func TestWithThreshold(t *testing.T) {
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		return search.Result{Path: search.PathPrimary}
	}}
	d := NewDetector(&fakeEmbedder{embedFn: bagOfWords}, srch, nil, DefaultOptions(), nil)

	d.WithThreshold(0.3).DetectConflicts(context.Background(), "text", "a.txt", "alice")
	if srch.last.Threshold != 0.3 {
		t.Errorf("threshold = %v, want 0.3", srch.last.Threshold)
	}
	if d.Threshold() != DefaultThreshold {
		t.Errorf("original detector threshold changed to %v", d.Threshold())
	}
	if got := d.WithThreshold(4).Threshold(); got != 1 {
		t.Errorf("WithThreshold(4) = %v, want 1", got)
	}
}

func TestPercent(t *testing.T) {
	cases := map[float64]int{
		0.97:   97,
		0.906:  91,
		0.8549: 85,
		1:      100,
		1.0004: 100,
		-0.2:   0,
		0:      0,
	}
	for in, want := range cases {
		if got := Percent(in); got != want {
			t.Errorf("Percent(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	exact := strings.Repeat("é", 100)
	cases := []struct {
		name string
		in   *string
		want string
	}{
		{"nil", nil, "No preview available"},
		{"blank", textPtr("  \n"), "No preview available"},
		{"short", textPtr("hello"), "hello"},
		{"exactly 100 runes", &exact, exact},
		{"long multibyte", textPtr(strings.Repeat("ж", 120)), strings.Repeat("ж", 100) + "..."},
	}
	for _, tc := range cases {
		if got := Preview(tc.in); got != tc.want {
			t.Errorf("%s: Preview = %q, want %q", tc.name, got, tc.want)
		}
	}
}

// TestDetectConflicts_IdenticalTextEndToEnd stores a document and checks the
// same text again through the real searcher and SQLite store.
func TestDetectConflicts_IdenticalTextEndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	text := "Quarterly planning notes: hire two engineers and ship the billing rewrite."
	vec, _ := bagOfWords(ctx, text)
	stored := types.Document{OwnerID: "alice", Name: "plan.txt", Content: &text, Embedding: vec, StorageKey: "alice/1_plan.txt"}
	if err := st.InsertDocument(ctx, &stored); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	other, _ := bagOfWords(ctx, "recipe for banana bread with walnuts")
	if err := st.InsertDocument(ctx, &types.Document{OwnerID: "alice", Name: "bread.txt", Embedding: other, StorageKey: "alice/2_bread.txt"}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	d := NewDetector(&fakeEmbedder{embedFn: bagOfWords}, search.NewSearcher(st, 0, nil), st, DefaultOptions(), nil)
	report := d.DetectConflicts(ctx, text, "plan-copy.txt", "alice")

	if !report.HasConflicts || len(report.Conflicts) != 1 {
		t.Fatalf("got %+v, want exactly one conflict", report)
	}
	c := report.Conflicts[0]
	if c.ID != stored.ID {
		t.Errorf("conflict id = %s, want %s", c.ID, stored.ID)
	}
	if c.Similarity < 99 {
		t.Errorf("similarity = %d, want >= 99", c.Similarity)
	}

	if r := d.DetectConflicts(ctx, text, "plan-copy.txt", "bob"); r.HasConflicts {
		t.Error("another owner's documents were reported")
	}
}

func TestDiagnose(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	vec, _ := bagOfWords(ctx, SampleText)
	if err := st.InsertDocument(ctx, &types.Document{OwnerID: "alice", Name: "weather.txt", Content: textPtr(SampleText), Embedding: vec, StorageKey: "k1"}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if err := st.InsertDocument(ctx, &types.Document{OwnerID: "alice", Name: "photo.png", StorageKey: "k2"}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	emb := &fakeEmbedder{embedFn: bagOfWords}
	d := NewDetector(emb, search.NewSearcher(st, 0, nil), st, DefaultOptions(), nil)
	diag := d.Diagnose(ctx, "alice", "", 0)

	if diag.SampleText != SampleText || diag.Threshold != DiagnosticThreshold {
		t.Errorf("defaults not applied: %q %v", diag.SampleText, diag.Threshold)
	}
	if len(diag.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(diag.Files))
	}
	embedded := 0
	for _, f := range diag.Files {
		if f.HasEmbedding {
			embedded++
		}
	}
	if embedded != 1 {
		t.Errorf("%d files with embedding, want 1", embedded)
	}
	if diag.Dimensions != 64 {
		t.Errorf("Dimensions = %d, want 64", diag.Dimensions)
	}
	if len(diag.Similar) != 1 || diag.Similar[0].Similarity != 100 {
		t.Errorf("Similar = %+v", diag.Similar)
	}
	if diag.SearchPath != "fallback" {
		t.Errorf("SearchPath = %q, want fallback", diag.SearchPath)
	}
	if !diag.HasConflicts || diag.ConflictCount != 1 {
		t.Errorf("conflicts = %v/%d, want true/1", diag.HasConflicts, diag.ConflictCount)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.calls)
	}
}

func TestDiagnose_EmbedFailureStops(t *testing.T) {
	emb := &fakeEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, &model.ProviderError{StatusCode: 401, Body: "bad key"}
	}}
	srch := &fakeSearcher{queryFn: func(context.Context, search.Query) search.Result {
		t.Fatal("search called after embedding failed")
		return search.Result{}
	}}
	d := NewDetector(emb, srch, nil, DefaultOptions(), nil)

	diag := d.Diagnose(context.Background(), "alice", "hello", 0.7)
	if diag.EmbedError == "" {
		t.Error("EmbedError is empty")
	}
	if diag.Threshold != 0.7 {
		t.Errorf("Threshold = %v, want 0.7", diag.Threshold)
	}
}
