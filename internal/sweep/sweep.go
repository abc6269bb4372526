// Package sweep processes every PDF in a folder through a per-file
// transform and writes one text file per document.
//
// Files are processed one at a time in lexicographic order. A failing file
// is reported and skipped; it never stops the sweep.
package sweep

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/resilience"
)

// Transform turns one input file into text.
type Transform func(ctx context.Context, item Item) (string, error)

// Commit runs after the text of item has been written to output. An error
// fails the file.
type Commit func(ctx context.Context, item Item, output string) error

// FileResult is the outcome for one file.
type FileResult struct {
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Err    error  `json:"-"`
}

// Stats summarizes one sweep.
type Stats struct {
	Matched   int          `json:"matched"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []FileResult `json:"results"`
}

// Sweeper runs sweeps and reports progress to a sink.
type Sweeper struct {
	sink    progress.Sink
	policy  resilience.Policy
	eventID string
	commit  Commit
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPolicy retries transient transform failures according to p.
func WithPolicy(p resilience.Policy) Option {
	return func(s *Sweeper) { s.policy = p }
}

// WithEventID tags progress messages with an event identifier.
func WithEventID(id string) Option {
	return func(s *Sweeper) { s.eventID = id }
}

// WithCommit runs fn for every file whose text was written.
func WithCommit(fn Commit) Option {
	return func(s *Sweeper) { s.commit = fn }
}

// New creates a Sweeper. A nil sink discards progress.
func New(sink progress.Sink, opts ...Option) *Sweeper {
	if sink == nil {
		sink = progress.Discard
	}
	s := &Sweeper{sink: sink, policy: resilience.Policy{Attempts: 1}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sweep processes the PDFs in inputDir. A missing inputDir, or one that is
// not a folder, is reported and treated as empty.
func (s *Sweeper) Sweep(ctx context.Context, inputDir, outputDir string, transform Transform) (*Stats, error) {
	info, err := os.Stat(inputDir)
	if os.IsNotExist(err) {
		s.sink.Record(progress.Info(s.eventID, "", "folder %s does not exist, skipping", filepath.Base(inputDir)))
		return &Stats{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sweep: stat %s", inputDir)
	}
	if !info.IsDir() {
		s.sink.Record(progress.Info(s.eventID, "", "%s is not a folder, skipping", filepath.Base(inputDir)))
		return &Stats{}, nil
	}

	s.sink.Record(progress.Info(s.eventID, "", "processing folder %s", filepath.Base(inputDir)))
	return s.SweepQueue(ctx, NewDirQueue(inputDir), outputDir, transform)
}

// SweepQueue processes the items of q and writes their text into outputDir.
func (s *Sweeper) SweepQueue(ctx context.Context, q Queue, outputDir string, transform Transform) (*Stats, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sweep: create output dir %s", outputDir)
	}

	stats := &Stats{}
	for item, err := range q.Items(ctx) {
		if err != nil {
			return stats, eris.Wrap(err, "sweep: list items")
		}
		stats.Matched++
		res := s.processOne(ctx, item, outputDir, transform)
		stats.Results = append(stats.Results, res)
		if res.Err != nil {
			stats.Failed++
		} else {
			stats.Succeeded++
		}
	}

	zap.L().Debug("sweep complete",
		zap.String("event_id", s.eventID),
		zap.String("output_dir", outputDir),
		zap.Int("matched", stats.Matched),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Sweeper) processOne(ctx context.Context, item Item, outputDir string, transform Transform) FileResult {
	s.sink.Record(progress.Info(s.eventID, item.Name, "processing"))

	policy := s.policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries("transform", item.Name)
	}
	text, err := resilience.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return transform(ctx, item)
	})
	if err != nil {
		s.sink.Record(progress.Error(s.eventID, item.Name, err))
		return FileResult{Name: item.Name, Err: err}
	}

	out := filepath.Join(outputDir, layout.TextName(item.Name))
	if err := layout.WriteText(out, text); err != nil {
		s.sink.Record(progress.Error(s.eventID, item.Name, err))
		return FileResult{Name: item.Name, Err: err}
	}
	if s.commit != nil {
		if err := s.commit(ctx, item, out); err != nil {
			s.sink.Record(progress.Error(s.eventID, item.Name, err))
			return FileResult{Name: item.Name, Output: out, Err: err}
		}
	}
	s.sink.Record(progress.Info(s.eventID, item.Name, "saved %s", filepath.Base(out)))
	return FileResult{Name: item.Name, Output: out}
}
