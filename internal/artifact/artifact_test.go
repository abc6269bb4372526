package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/store"
)

// fakeStore records calls and fails with err when set.
type fakeStore struct {
	calls []string
	err   error
}

func (f *fakeStore) SaveEvent(_ context.Context, eventID string) error {
	f.calls = append(f.calls, "event:"+eventID)
	return f.err
}

func (f *fakeStore) SaveSnapshot(_ context.Context, eventID, filename, _ string) error {
	f.calls = append(f.calls, "snapshot:"+eventID+"/"+filename)
	return f.err
}

func (f *fakeStore) SaveDocument(_ context.Context, doc model.DocumentArtifact) error {
	f.calls = append(f.calls, "document:"+doc.EventID+"/"+doc.Filename)
	return f.err
}

func (f *fakeStore) SaveAnalysis(_ context.Context, res model.AnalysisResult, _ *model.PromptRun) error {
	f.calls = append(f.calls, "analysis:"+res.EventID)
	return f.err
}

type fakePutter struct {
	objects map[string]string
}

func (p *fakePutter) PutText(_ context.Context, key, text string) error {
	if p.objects == nil {
		p.objects = map[string]string{}
	}
	p.objects[key] = text
	return nil
}

func testLayout(t *testing.T) layout.Layout {
	root := t.TempDir()
	return layout.Layout{
		EventsDir:       filepath.Join(root, "events"),
		RawDir:          filepath.Join(root, "raw"),
		RedactedDir:     filepath.Join(root, "redacted"),
		GeneralDir:      filepath.Join(root, "general"),
		AnalysisDir:     filepath.Join(root, "analysis"),
		SensitiveFolder: "citlive_dokumenty",
		GeneralFolder:   "vseobecne_dokumenty",
	}
}

func TestTiered_PrimaryErrorPropagates(t *testing.T) {
	primary := &fakeStore{err: errors.New("disk full")}
	secondary := &fakeStore{}
	rec := progress.NewRecorder()

	err := NewTiered(rec, primary, secondary).SaveSnapshot(context.Background(), "E1", "a.pdf", "raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, secondary.calls)
	assert.Empty(t, rec.Messages())
}

func TestTiered_SecondaryErrorSwallowed(t *testing.T) {
	primary := &fakeStore{}
	failing := &fakeStore{err: errors.New("db locked")}
	ok := &fakeStore{}
	rec := progress.NewRecorder()

	doc := model.DocumentArtifact{EventID: "E1", Filename: "a.pdf"}
	require.NoError(t, NewTiered(rec, primary, failing, ok).SaveDocument(context.Background(), doc))

	assert.Equal(t, []string{"document:E1/a.pdf"}, primary.calls)
	assert.Equal(t, []string{"document:E1/a.pdf"}, ok.calls)

	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "a.pdf", errs[0].File)
	assert.Contains(t, errs[0].Text, "persistence failed (save document E1/a.pdf)")
	assert.Contains(t, errs[0].Text, "db locked")
}

func TestTiered_NilSinkAndPrimary(t *testing.T) {
	secondary := &fakeStore{err: errors.New("x")}
	tiered := NewTiered(nil, nil, secondary)
	require.NoError(t, tiered.SaveEvent(context.Background(), "E1"))
	assert.Equal(t, []string{"event:E1"}, secondary.calls)
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&PersistenceError{Op: "save analysis", EventID: "E1", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence failed (save analysis E1): boom", err.Error())

	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestFiles_SnapshotAndAnalysis(t *testing.T) {
	l := testLayout(t)
	f := NewFiles(l)
	ctx := context.Background()

	require.NoError(t, f.SaveEvent(ctx, "E1"))
	require.NoError(t, f.SaveSnapshot(ctx, "E1", "Protokol.PDF", "raw text"))
	got, err := os.ReadFile(filepath.Join(l.RawDir, "E1", "Protokol.txt"))
	require.NoError(t, err)
	assert.Equal(t, "raw text", string(got))

	require.NoError(t, f.SaveDocument(ctx, model.DocumentArtifact{EventID: "E1", Filename: "a.pdf"}))

	require.NoError(t, f.SaveAnalysis(ctx, model.AnalysisResult{EventID: "E1", SummaryText: "first"}, nil))
	require.NoError(t, f.SaveAnalysis(ctx, model.AnalysisResult{EventID: "E1", SummaryText: "second"}, nil))
	got, err = os.ReadFile(l.AnalysisPath("E1"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestIndex_WritesRows(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	idx := NewIndex(st)
	require.NoError(t, idx.SaveEvent(ctx, "E1"))
	require.NoError(t, idx.SaveEvent(ctx, "E1"))
	require.NoError(t, idx.SaveSnapshot(ctx, "E1", "a.pdf", "ignored"))
	require.NoError(t, idx.SaveDocument(ctx, model.DocumentArtifact{EventID: "E1", Filename: "a.pdf", Category: model.CategoryGeneral, OCRText: "x"}))
	require.NoError(t, idx.SaveAnalysis(ctx, model.AnalysisResult{EventID: "E1", RunID: "r1", Model: "m", SummaryText: "s"}, nil))

	c, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Counts{Events: 1, Documents: 1, Analyses: 1}, *c)
}

func TestArchive_Keys(t *testing.T) {
	p := &fakePutter{}
	a := NewArchive(p)
	ctx := context.Background()
	redacted := "[PERSON]"

	require.NoError(t, a.SaveEvent(ctx, "E1"))
	require.NoError(t, a.SaveSnapshot(ctx, "E1", "a.pdf", "Jan"))
	require.NoError(t, a.SaveDocument(ctx, model.DocumentArtifact{EventID: "E1", Filename: "a.pdf", Category: model.CategorySensitive, OCRText: "Jan", AnonymizedText: &redacted}))
	require.NoError(t, a.SaveDocument(ctx, model.DocumentArtifact{EventID: "E1", Filename: "b.pdf", Category: model.CategoryGeneral, OCRText: "general"}))
	require.NoError(t, a.SaveAnalysis(ctx, model.AnalysisResult{EventID: "E1", SummaryText: "sum"}, nil))

	assert.Equal(t, map[string]string{
		"E1/raw/a.txt":               "Jan",
		"E1/redacted/a.txt":          "[PERSON]",
		"E1/general/b.txt":           "general",
		"E1/analysis/E1_analyza.txt": "sum",
	}, p.objects)
}
