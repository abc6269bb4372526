package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
)

func testLayout(t *testing.T) layout.Layout {
	t.Helper()
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

func put(t *testing.T, dir, name, text string) {
	t.Helper()
	require.NoError(t, layout.WriteText(filepath.Join(dir, name), text))
}

func TestAggregate_OrderAndDelimiters(t *testing.T) {
	l := testLayout(t)
	put(t, l.OutputDir("E1", model.CategorySensitive), "b.txt", "redacted b")
	put(t, l.OutputDir("E1", model.CategorySensitive), "a.txt", "redacted a")
	put(t, l.OutputDir("E1", model.CategoryGeneral), "c.txt", "general c")
	put(t, l.OutputDir("E1", model.CategoryGeneral), "ignored.pdf", "x")

	got, err := New(l).Aggregate("E1")
	require.NoError(t, err)

	want := "=== BEGIN DOCUMENT [sensitive] a.txt ===\nredacted a\n=== END DOCUMENT [sensitive] a.txt ===\n\n" +
		"=== BEGIN DOCUMENT [sensitive] b.txt ===\nredacted b\n=== END DOCUMENT [sensitive] b.txt ===\n\n" +
		"=== BEGIN DOCUMENT [general] c.txt ===\ngeneral c\n=== END DOCUMENT [general] c.txt ==="
	assert.Equal(t, want, got)
}

func TestAggregate_Empty(t *testing.T) {
	l := testLayout(t)
	got, err := New(l).Aggregate("missing")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, os.MkdirAll(l.OutputDir("E2", model.CategorySensitive), 0o755))
	got, err = New(l).Aggregate("E2")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestAggregate_GeneralOnly(t *testing.T) {
	l := testLayout(t)
	put(t, l.OutputDir("E1", model.CategoryGeneral), "x.txt", "only")

	docs, err := New(l).Documents("E1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.CategoryGeneral, docs[0].Category)
	assert.Equal(t, "only", docs[0].Text)
}

func TestDocument_PrefersRedacted(t *testing.T) {
	l := testLayout(t)
	put(t, l.OutputDir("E1", model.CategorySensitive), "a.txt", "redacted")
	put(t, l.OutputDir("E1", model.CategoryGeneral), "a.txt", "general")
	put(t, l.OutputDir("E1", model.CategoryGeneral), "b.txt", "general b")

	agg := New(l)
	doc, err := agg.Document("E1", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.CategorySensitive, doc.Category)
	assert.Equal(t, "redacted", doc.Text)

	doc, err = agg.Document("E1", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "general b", doc.Text)

	_, err = agg.Document("E1", "zzz.txt")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = agg.Document("E1", "../E2/a.txt")
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	raw := "Meno: Jan Novak\nAdresa: Hlavna 1\nSkoda na vozidle\n"
	redacted := "Meno: [PERSON_NAME]\nAdresa: [STREET_ADDRESS]\nSkoda na vozidle\n"

	segs := Diff(raw, redacted)
	require.Len(t, segs, 1)
	assert.Equal(t, "replace", segs[0].Op)
	assert.Len(t, segs[0].Raw, 2)
	assert.Equal(t, "Meno: [PERSON_NAME]\n", segs[0].Redacted[0])

	assert.Empty(t, Diff("same\n", "same\n"))
}

func TestDiff_SeparateSegments(t *testing.T) {
	raw := "a\nkeep\nb\nkeep2\n"
	redacted := "A\nkeep\nB\nkeep2\n"
	assert.Len(t, Diff(raw, redacted), 2)
}

func TestCompare(t *testing.T) {
	l := testLayout(t)
	put(t, l.RawEventDir("E1"), "a.txt", "Jan Novak\nok\n")
	put(t, l.OutputDir("E1", model.CategorySensitive), "a.txt", "[PERSON_NAME]\nok\n")

	agg := New(l)
	cmp, err := agg.Compare("E1", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", cmp.Filename)
	assert.Equal(t, 1, cmp.Changes)

	put(t, l.RawEventDir("E1"), "b.txt", "raw only")
	_, err = agg.Compare("E1", "b.txt")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
