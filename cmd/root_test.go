package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/internal/cost"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/sweep"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"process", "analyze", "run", "batch", "serve", "prompts", "documents", "compare", "status", "export", "migrate", "check"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "claims-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"events-dir", "db", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Cleanup(func() { flagEventsDir, flagDatabase, flagLogLevel = "", "", "" })

	c := &config.Config{
		Paths: config.PathsConfig{EventsDir: "poistne_udalosti"},
		Store: config.StoreConfig{DatabaseURL: "claims.db"},
		Log:   config.LogConfig{Level: "info"},
	}
	applyFlagOverrides(c)
	assert.Equal(t, "poistne_udalosti", c.Paths.EventsDir)
	assert.Equal(t, "claims.db", c.Store.DatabaseURL)

	flagEventsDir, flagDatabase, flagLogLevel = "/data/events", "/data/claims.db", "debug"
	applyFlagOverrides(c)
	assert.Equal(t, "/data/events", c.Paths.EventsDir)
	assert.Equal(t, "/data/claims.db", c.Store.DatabaseURL)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestPromptsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range promptsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "create", "update", "activate", "delete", "import", "export", "seed"} {
		assert.True(t, names[name], "prompts should have subcommand %q", name)
	}
}

func TestPromptsCreateCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "version", "model", "content", "file", "activate"} {
		assert.NotNil(t, promptsCreateCmd.Flags().Lookup(name), "prompts create should have --%s flag", name)
	}
	assert.Nil(t, promptsUpdateCmd.Flags().Lookup("activate"), "update never changes the active flag")
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	require.NotNil(t, batchCmd.Flags().Lookup("process-only"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestParsePromptID(t *testing.T) {
	id, err := parsePromptID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := parsePromptID(bad)
		assert.Error(t, err, bad)
	}
}

func TestEventRoot(t *testing.T) {
	l := layoutFromConfig(config.PathsConfig{EventsDir: "poistne_udalosti"})
	assert.Equal(t, "poistne_udalosti/PU_1", eventRoot(l, "PU_1"))
	assert.Equal(t, "/data/claims/PU_1", eventRoot(l, "/data/claims/PU_1"))
	assert.Equal(t, "other/PU_2", eventRoot(l, "other/PU_2"))
}

func TestProcessBatch_BoundsConcurrencyAndCountsFailures(t *testing.T) {
	var inFlight, peak atomic.Int32
	fn := func(_ context.Context, event string) (*pipeline.Report, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if event == "bad" {
			return nil, errors.New("invalid event folder")
		}
		return &pipeline.Report{
			EventID: event,
			State:   model.EventStateComplete,
			Analysis: &analysis.Outcome{
				EventID:      event,
				Model:        "m",
				InputTokens:  1_000_000,
				OutputTokens: 1_000_000,
			},
		}, nil
	}
	costs := cost.NewCalculator(config.PricingConfig{Models: map[string]config.ModelPricing{"m": {Input: 1, Output: 2}}})

	res := processBatch(context.Background(), []string{"a", "bad", "b", "c", "d"}, 2, fn, costs)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Reports, 4)
	assert.Equal(t, "a", res.Reports[0].EventID)
	assert.Equal(t, "d", res.Reports[3].EventID)
	assert.Equal(t, 4, res.Usage.Calls)
	assert.InDelta(t, 12.0, res.Usage.USD, 1e-9)
}

func TestFormatReports(t *testing.T) {
	var buf bytes.Buffer
	formatReports(&buf, []*pipeline.Report{{
		EventID:   "PU_1",
		State:     model.EventStateAggregated,
		Sensitive: &sweep.Stats{Matched: 3, Succeeded: 2, Failed: 1},
	}})
	out := buf.String()
	assert.Contains(t, out, "PU_1")
	assert.Contains(t, out, "aggregated")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "-")
}

func TestDiagnose(t *testing.T) {
	c := &config.Config{
		GCP:        config.GCPConfig{ProjectID: "p"},
		OCR:        config.OCRConfig{Provider: "documentai"},
		DocumentAI: config.DocumentAIConfig{ProcessorID: "proc"},
		DLP:        config.DLPConfig{DeidentifyTemplate: "projects/p/deidentifyTemplates/t"},
		Generation: config.GenerationConfig{Provider: "anthropic"},
		Anthropic:  config.AnthropicConfig{Key: "k"},
	}
	var buf bytes.Buffer
	assert.Equal(t, 0, formatChecks(&buf, diagnose(c)))

	c.DLP.DeidentifyTemplate = "deidentifyTemplates/t"
	c.Anthropic.Key = ""
	buf.Reset()
	assert.Equal(t, 2, formatChecks(&buf, diagnose(c)))
	assert.Contains(t, buf.String(), "MISSING  dlp.deidentify_template")
	assert.Contains(t, buf.String(), "MISSING  anthropic.key")

	c.OCR.Provider = "local"
	c.DocumentAI.ProcessorID = ""
	for _, ch := range diagnose(c) {
		if ch.Name == "document_ai.processor_id" {
			assert.True(t, ch.OK)
		}
	}
}
