package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/archive"
	"github.com/sells-group/claims-cli/internal/artifact"
	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/internal/cost"
	"github.com/sells-group/claims-cli/internal/db"
	"github.com/sells-group/claims-cli/internal/generate"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/ocr"
	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/prompt"
	"github.com/sells-group/claims-cli/internal/redact"
	"github.com/sells-group/claims-cli/internal/resilience"
	"github.com/sells-group/claims-cli/internal/store"
	"github.com/sells-group/claims-cli/pkg/dlp"
	"github.com/sells-group/claims-cli/pkg/docai"
	"github.com/sells-group/claims-cli/pkg/gcpauth"
)

// gcpTimeout bounds every Document AI and DLP request.
const gcpTimeout = 2 * time.Minute

// initStore opens the configured database. Callers migrate and close it.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claims.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "mysql":
		return store.NewMySQL(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func layoutFromConfig(p config.PathsConfig) layout.Layout {
	return layout.Layout{
		EventsDir:       p.EventsDir,
		RawDir:          p.RawDir,
		RedactedDir:     p.RedactedDir,
		GeneralDir:      p.GeneralDir,
		AnalysisDir:     p.AnalysisDir,
		SensitiveFolder: p.SensitiveFolder,
		GeneralFolder:   p.GeneralFolder,
	}
}

// claimsEnv holds the initialized store, clients and shared resilience
// state needed by the process/analyze/run/batch/serve commands.
type claimsEnv struct {
	Layout    layout.Layout
	Store     store.Store
	Prompts   *prompt.Registry
	Extractor ocr.Extractor      // nil unless processing is enabled
	Redactor  redact.Redactor    // nil unless processing is enabled
	Generator generate.Generator // nil unless analysis is enabled
	Costs     *cost.Calculator
	Policy    resilience.Policy
	Breakers  *resilience.Breakers
	Mirror    *archive.Mirror // may be nil
}

// Close releases resources held by the environment.
func (e *claimsEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the configuration for mode and builds what that mode
// needs. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*claimsEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &claimsEnv{
		Layout: layoutFromConfig(cfg.Paths),
		Store:  st,
		Prompts: prompt.NewRegistry(st, prompt.Default{
			Prompt: cfg.Analysis.DefaultPrompt,
			Model:  cfg.Analysis.DefaultModel,
		}),
		Costs: cost.NewCalculator(cfg.Pricing),
		Policy: resilience.NewPolicy(
			cfg.Pipeline.RetryMaxAttempts,
			cfg.Pipeline.RetryInitialBackoffMs,
			cfg.Pipeline.RetryMaxBackoffMs,
		),
		Breakers: resilience.NewBreakers(
			cfg.Pipeline.CircuitFailureThreshold,
			time.Duration(cfg.Pipeline.CircuitResetTimeoutSecs)*time.Second,
		),
	}

	processes := mode != "analyze"
	analyzes := mode != "process"

	if processes {
		if err := env.initProcessing(ctx); err != nil {
			env.Close()
			return nil, err
		}
	}
	if analyzes {
		gen, err := generate.New(cfg)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "init generator")
		}
		env.Generator = gen
	}

	if cfg.Archive.Endpoint != "" {
		m, err := archive.Dial(ctx, cfg.Archive)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Mirror = m
		zap.L().Info("artifact archive enabled",
			zap.String("endpoint", cfg.Archive.Endpoint),
			zap.String("bucket", cfg.Archive.Bucket),
		)
	} else {
		zap.L().Debug("CLAIMS_ARCHIVE_ENDPOINT not set, archive mirror disabled")
	}

	return env, nil
}

// initProcessing builds the OCR extractor and the DLP redactor. Both share
// one authorized Google client.
func (e *claimsEnv) initProcessing(ctx context.Context) error {
	hc, err := gcpauth.NewHTTPClient(ctx, cfg.GCP.CredentialsFile, gcpTimeout)
	if err != nil {
		return err
	}

	var dai docai.Client
	if cfg.OCR.Provider == "documentai" || cfg.OCR.Provider == "" {
		dai = docai.NewClient(cfg.GCP.ProjectID, cfg.DocumentAI.Location, cfg.DocumentAI.ProcessorID,
			gcpOptions(cfg.DocumentAI.BaseURL, hc, docai.WithBaseURL, docai.WithHTTPClient)...)
	}
	ext, err := ocr.NewExtractor(cfg.OCR, dai)
	if err != nil {
		return eris.Wrap(err, "init extractor")
	}
	e.Extractor = ext

	dlpClient := dlp.NewClient(cfg.GCP.ProjectID, cfg.DLP.Location,
		gcpOptions(cfg.DLP.BaseURL, hc, dlp.WithBaseURL, dlp.WithHTTPClient)...)
	e.Redactor = redact.NewDLP(dlpClient, cfg.DLP.RequestsPerSecond)

	zap.L().Info("processing clients ready",
		zap.String("ocr_provider", cfg.OCR.Provider),
		zap.String("project", cfg.GCP.ProjectID),
	)
	return nil
}

// gcpOptions assembles the client options shared by the Document AI and DLP
// clients.
func gcpOptions[O any](baseURL string, hc *http.Client, withBase func(string) O, withHTTP func(*http.Client) O) []O {
	opts := []O{withHTTP(hc)}
	if baseURL != "" {
		opts = append(opts, withBase(baseURL))
	}
	return opts
}

// artifacts composes the per-run artifact store: files are authoritative,
// the index and the optional mirror are secondary.
func (e *claimsEnv) artifacts(sink progress.Sink) artifact.Store {
	secondaries := []artifact.Store{artifact.NewIndex(e.Store)}
	if e.Mirror != nil {
		secondaries = append(secondaries, artifact.NewArchive(e.Mirror))
	}
	return artifact.NewTiered(sink, artifact.NewFiles(e.Layout), secondaries...)
}

func (e *claimsEnv) newProcessor(sink progress.Sink) *pipeline.Processor {
	return pipeline.NewProcessor(
		e.Layout,
		e.Extractor,
		e.Redactor,
		pipeline.Templates{
			Deidentify: cfg.DLP.DeidentifyTemplate,
			Inspect:    cfg.DLP.InspectTemplate,
		},
		e.artifacts(sink),
		sink,
		pipeline.WithPolicy(e.Policy),
		pipeline.WithBreakers(e.Breakers),
		pipeline.WithMimeType(cfg.DocumentAI.MimeType),
	)
}

func (e *claimsEnv) newAnalyzer(sink progress.Sink) *analysis.Runner {
	return analysis.NewRunner(e.Layout, e.Prompts, e.Generator, e.artifacts(sink), e.Costs, sink)
}

// stdoutMu serializes progress lines of concurrently processed events.
var stdoutMu sync.Mutex

// cliSink prints progress lines to stdout.
func cliSink() progress.Sink {
	return progress.Func(func(m progress.Message) {
		stdoutMu.Lock()
		defer stdoutMu.Unlock()
		fmt.Fprintln(os.Stdout, m.String())
	})
}
