package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/artifact"
	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/internal/cost"
	"github.com/sells-group/claims-cli/internal/generate"
	genmocks "github.com/sells-group/claims-cli/internal/generate/mocks"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/prompt"
	"github.com/sells-group/claims-cli/internal/store"
)

const testModel = "claude-sonnet-4-5-20250929"

type fixture struct {
	layout   layout.Layout
	store    *store.SQLStore
	registry *prompt.Registry
	gen      *genmocks.MockGenerator
	rec      *progress.Recorder
	runner   *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	l := layout.Layout{
		EventsDir:       filepath.Join(root, "events"),
		RawDir:          filepath.Join(root, "raw"),
		RedactedDir:     filepath.Join(root, "redacted"),
		GeneralDir:      filepath.Join(root, "general"),
		AnalysisDir:     filepath.Join(root, "analysis"),
		SensitiveFolder: "citlive_dokumenty",
		GeneralFolder:   "vseobecne_dokumenty",
	}
	st, err := store.NewSQLite(filepath.Join(root, "claims.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	reg := prompt.NewRegistry(st, prompt.Default{Prompt: "Summarize.", Model: testModel})
	gen := genmocks.NewMockGenerator(t)
	rec := progress.NewRecorder()
	arts := artifact.NewTiered(rec, artifact.NewFiles(l), artifact.NewIndex(st))
	calc := cost.NewCalculator(config.PricingConfig{Models: map[string]config.ModelPricing{
		testModel: {Input: 3, Output: 15},
	}})

	return &fixture{
		layout:   l,
		store:    st,
		registry: reg,
		gen:      gen,
		rec:      rec,
		runner:   NewRunner(l, reg, gen, arts, calc, rec),
	}
}

func (f *fixture) put(t *testing.T, cat model.Category, eventID, name, text string) {
	t.Helper()
	require.NoError(t, layout.WriteText(filepath.Join(f.layout.OutputDir(eventID, cat), name), text))
}

func TestAnalyzeEvent_FileMatchesStoredSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, model.CategorySensitive, "E1", "a.txt", "Meno: [PERSON_NAME]")
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "Technicka sprava")

	summary := "Súhrn: škoda na vozidle, poistník [PERSON_NAME]."
	f.gen.On("Generate", mock.Anything, testModel, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Summarize.\n\nDocuments to analyze:\n---\n=== BEGIN DOCUMENT [sensitive] a.txt ===")
	})).Return(&generate.Generation{Text: summary, Model: testModel, InputTokens: 1000, OutputTokens: 200}, nil)

	out, err := f.runner.AnalyzeEvent(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Documents)
	assert.NotEmpty(t, out.RunID)
	assert.InDelta(t, 0.006, out.CostUSD, 1e-9)
	assert.Nil(t, out.PromptID)

	data, err := os.ReadFile(f.layout.AnalysisPath("E1"))
	require.NoError(t, err)

	stored, err := f.store.LatestAnalysis(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, string(data), stored.SummaryText)
	assert.Equal(t, out.RunID, stored.RunID)

	runs, err := f.store.ListPromptRuns(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAnalyzeEvent_RecordsPromptRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "text")

	tpl, err := f.registry.Create(ctx, prompt.Input{Name: "fraud", Model: "gpt-4o", Content: "Find fraud.", Activate: true})
	require.NoError(t, err)

	f.gen.On("Generate", mock.Anything, "gpt-4o", mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Find fraud.\n\n")
	})).Return(&generate.Generation{Text: "none found", InputTokens: 10, OutputTokens: 5}, nil)

	out, err := f.runner.AnalyzeEvent(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, out.PromptID)
	assert.Equal(t, tpl.ID, *out.PromptID)
	assert.Equal(t, "gpt-4o", out.Model)
	assert.Zero(t, out.CostUSD)

	runs, err := f.store.ListPromptRuns(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].RunID)
	assert.Equal(t, tpl.ID, runs[0].PromptID)
	require.NotNil(t, runs[0].TokensOut)
	assert.EqualValues(t, 5, *runs[0].TokensOut)
}

func TestAnalyzeEvent_EmptyCorpusSkipsGeneration(t *testing.T) {
	f := newFixture(t)

	out, err := f.runner.AnalyzeEvent(context.Background(), "E1")
	require.NoError(t, err)
	assert.Nil(t, out)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)

	lines := f.rec.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "nothing to analyze")

	_, err = os.Stat(f.layout.AnalysisPath("E1"))
	assert.True(t, os.IsNotExist(err))
}

func TestAnalyzeEvent_GenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "text")
	f.gen.On("Generate", mock.Anything, testModel, mock.Anything).Return(nil, errors.New("status 529 overloaded"))

	out, err := f.runner.AnalyzeEvent(context.Background(), "E1")
	assert.Nil(t, out)
	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "E1", aerr.EventID)
	require.Len(t, f.rec.Errors(), 1)

	_, err = f.store.LatestAnalysis(context.Background(), "E1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalyzeEvent_IndexFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "text")
	f.gen.On("Generate", mock.Anything, testModel, mock.Anything).Return(&generate.Generation{Text: "summary"}, nil)
	require.NoError(t, f.store.Close())

	out, err := f.runner.AnalyzeEvent(context.Background(), "E1")
	require.NoError(t, err)
	require.NotNil(t, out)

	data, err := os.ReadFile(f.layout.AnalysisPath("E1"))
	require.NoError(t, err)
	assert.Equal(t, "summary", string(data))

	errs := f.rec.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "persistence failed")
}

func TestAnalyzeDocument_OverridePrompt(t *testing.T) {
	f := newFixture(t)
	f.put(t, model.CategorySensitive, "E1", "a.txt", "redacted a")
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "general b")

	want := BuildPrompt("Only this one.", "=== BEGIN DOCUMENT [sensitive] a.txt ===\nredacted a\n=== END DOCUMENT [sensitive] a.txt ===")
	f.gen.On("Generate", mock.Anything, testModel, want).Return(&generate.Generation{Text: "single"}, nil)

	out, err := f.runner.AnalyzeDocument(context.Background(), "E1", "a.pdf", "Only this one.")
	require.NoError(t, err)
	assert.Equal(t, "single", out.Text)
	assert.Empty(t, out.RunID)

	_, err = os.Stat(f.layout.AnalysisPath("E1"))
	assert.True(t, os.IsNotExist(err))
}

func TestPreview_DoesNotPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, model.CategoryGeneral, "E1", "b.txt", "general b")
	f.gen.On("Generate", mock.Anything, testModel, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Custom.\n\n")
	})).Return(&generate.Generation{Text: "preview"}, nil)

	out, err := f.runner.Preview(ctx, "E1", "Custom.")
	require.NoError(t, err)
	assert.Equal(t, "preview", out.Text)

	_, err = f.store.LatestAnalysis(ctx, "E1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "P\n\nDocuments to analyze:\n---\nC", BuildPrompt("P", "C"))
}
