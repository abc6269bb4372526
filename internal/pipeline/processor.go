// Package pipeline drives one insurance event through OCR, redaction and
// analysis.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/artifact"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/ocr"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/redact"
	"github.com/sells-group/claims-cli/internal/resilience"
	"github.com/sells-group/claims-cli/internal/sweep"
)

// InvalidEventError reports that an event path is not a usable folder.
type InvalidEventError struct {
	Path string
	Err  error
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event folder %q: %v", e.Path, e.Err)
}

func (e *InvalidEventError) Unwrap() error {
	return e.Err
}

// Templates names the DLP templates applied to sensitive documents.
type Templates struct {
	Deidentify string
	Inspect    string
}

// StageResult records the outcome of one processing stage.
type StageResult struct {
	Name     string           `json:"name"`
	State    model.EventState `json:"state"`
	Duration int64            `json:"duration_ms"`
	Stats    *sweep.Stats     `json:"stats,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Report summarizes one ProcessEvent (and, through Runner, one analysis).
type Report struct {
	EventID   string            `json:"event_id"`
	State     model.EventState  `json:"state"`
	Stages    []StageResult     `json:"stages"`
	Sensitive *sweep.Stats      `json:"sensitive,omitempty"`
	General   *sweep.Stats      `json:"general,omitempty"`
	Analysis  *analysis.Outcome `json:"analysis,omitempty"`
}

// Failed returns the number of files that failed across both sweeps.
func (r *Report) Failed() int {
	n := 0
	if r.Sensitive != nil {
		n += r.Sensitive.Failed
	}
	if r.General != nil {
		n += r.General.Failed
	}
	return n
}

// Processor runs the sensitive and general sweeps of an event.
type Processor struct {
	layout    layout.Layout
	extractor ocr.Extractor
	redactor  redact.Redactor
	templates Templates
	artifacts artifact.Store
	sink      progress.Sink
	mimeType  string
	policy    resilience.Policy
	breakers  *resilience.Breakers
}

// Option configures a Processor.
type Option func(*Processor)

// WithPolicy retries transient per-file failures.
func WithPolicy(p resilience.Policy) Option {
	return func(pr *Processor) { pr.policy = p }
}

// WithBreakers guards the OCR and DLP calls with per-service breakers.
func WithBreakers(b *resilience.Breakers) Option {
	return func(pr *Processor) { pr.breakers = b }
}

// WithMimeType sets the MIME type sent to the extractor.
func WithMimeType(mimeType string) Option {
	return func(pr *Processor) { pr.mimeType = mimeType }
}

// NewProcessor creates a Processor. artifacts receives the event row, raw
// snapshots and document rows; a nil sink discards progress.
func NewProcessor(
	l layout.Layout,
	ext ocr.Extractor,
	red redact.Redactor,
	tpl Templates,
	artifacts artifact.Store,
	sink progress.Sink,
	opts ...Option,
) *Processor {
	if sink == nil {
		sink = progress.Discard
	}
	p := &Processor{
		layout:    l,
		extractor: ext,
		redactor:  red,
		templates: tpl,
		artifacts: artifacts,
		sink:      sink,
		mimeType:  "application/pdf",
		policy:    resilience.Policy{Attempts: 1},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessEvent sweeps the sensitive then the general documents of the event
// rooted at eventRoot. Per-file and per-category failures are reported
// through progress and recorded in the report; only an invalid folder or a
// failure to register the event is returned as an error.
func (p *Processor) ProcessEvent(ctx context.Context, eventRoot string) (*Report, error) {
	info, err := os.Stat(eventRoot)
	if err != nil {
		return nil, &InvalidEventError{Path: eventRoot, Err: err}
	}
	if !info.IsDir() {
		return nil, &InvalidEventError{Path: eventRoot, Err: eris.New("not a directory")}
	}
	eventID := model.EventIDFromPath(eventRoot)
	if eventID == "" || eventID == "." || eventID == string(os.PathSeparator) {
		return nil, &InvalidEventError{Path: eventRoot, Err: eris.New("empty event identifier")}
	}

	log := zap.L().With(zap.String("event_id", eventID))
	log.Info("pipeline: processing event", zap.String("root", eventRoot))

	report := &Report{EventID: eventID, State: model.EventStateCreated}
	p.sink.Record(progress.Info(eventID, "", "processing event %s", eventID))

	if err := p.artifacts.SaveEvent(ctx, eventID); err != nil {
		return report, eris.Wrapf(err, "pipeline: register event %s", eventID)
	}

	stages := []struct {
		state model.EventState
		cat   model.Category
		fn    func(pending pendingDocs) sweep.Transform
	}{
		{model.EventStateSweepingSensitive, model.CategorySensitive, p.sensitiveTransform(eventID)},
		{model.EventStateSweepingGeneral, model.CategoryGeneral, p.generalTransform(eventID)},
	}

	for _, st := range stages {
		report.State = st.state
		start := time.Now()
		pending := pendingDocs{}
		sw := sweep.New(p.sink,
			sweep.WithPolicy(p.policy),
			sweep.WithEventID(eventID),
			sweep.WithCommit(p.commitDocs(pending)),
		)
		stats, err := sw.Sweep(ctx,
			p.layout.InputDir(eventRoot, st.cat),
			p.layout.OutputDir(eventID, st.cat),
			st.fn(pending),
		)
		res := StageResult{
			Name:     string(st.cat),
			State:    st.state,
			Duration: time.Since(start).Milliseconds(),
			Stats:    stats,
		}
		if err != nil {
			// A category that cannot be swept does not stop the other one.
			res.Error = err.Error()
			p.sink.Record(progress.Error(eventID, "", eris.Wrapf(err, "sweep of %s documents failed", st.cat)))
			log.Error("pipeline: sweep failed", zap.String("category", string(st.cat)), zap.Error(err))
		}
		report.Stages = append(report.Stages, res)
		if stats == nil {
			continue
		}
		if st.cat == model.CategorySensitive {
			report.Sensitive = stats
		} else {
			report.General = stats
		}
		log.Info("pipeline: sweep complete",
			zap.String("category", string(st.cat)),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
			zap.Int64("duration_ms", res.Duration),
		)
	}

	report.State = model.EventStateAggregated
	p.sink.Record(progress.Info(eventID, "", "processing of event %s done", eventID))
	return report, nil
}

// pendingDocs holds the rows built by a transform, keyed by source file
// name, until the sweep has written the document's text.
type pendingDocs map[string]model.DocumentArtifact

func (p *Processor) commitDocs(pending pendingDocs) sweep.Commit {
	return func(ctx context.Context, item sweep.Item, _ string) error {
		doc, ok := pending[item.Name]
		if !ok {
			return nil
		}
		delete(pending, item.Name)
		if err := p.artifacts.SaveDocument(ctx, doc); err != nil {
			return eris.Wrapf(err, "pipeline: save document %s", item.Name)
		}
		return nil
	}
}

// sensitiveTransform extracts text, stores the raw snapshot and redacts it.
// The snapshot is written before redaction so it survives a DLP failure.
func (p *Processor) sensitiveTransform(eventID string) func(pendingDocs) sweep.Transform {
	return func(pending pendingDocs) sweep.Transform {
		return func(ctx context.Context, item sweep.Item) (string, error) {
			raw, err := p.extract(ctx, item)
			if err != nil {
				return "", err
			}
			if err := p.artifacts.SaveSnapshot(ctx, eventID, item.Name, raw); err != nil {
				return "", eris.Wrapf(err, "pipeline: save raw snapshot of %s", item.Name)
			}

			redacted, err := resilience.Guard(ctx, p.breakers.Get("dlp"), func(ctx context.Context) (string, error) {
				return p.redactor.Redact(ctx, raw, p.templates.Deidentify, p.templates.Inspect)
			})
			if err != nil {
				return "", err
			}

			pending[item.Name] = model.DocumentArtifact{
				EventID:        eventID,
				Filename:       item.Name,
				Category:       model.CategorySensitive,
				OCRText:        raw,
				AnonymizedText: &redacted,
			}
			return redacted, nil
		}
	}
}

func (p *Processor) generalTransform(eventID string) func(pendingDocs) sweep.Transform {
	return func(pending pendingDocs) sweep.Transform {
		return func(ctx context.Context, item sweep.Item) (string, error) {
			text, err := p.extract(ctx, item)
			if err != nil {
				return "", err
			}
			pending[item.Name] = model.DocumentArtifact{
				EventID:  eventID,
				Filename: item.Name,
				Category: model.CategoryGeneral,
				OCRText:  text,
			}
			return text, nil
		}
	}
}

func (p *Processor) extract(ctx context.Context, item sweep.Item) (string, error) {
	content, err := os.ReadFile(item.Path)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: read %s", item.Name)
	}
	return resilience.Guard(ctx, p.breakers.Get("ocr"), func(ctx context.Context) (string, error) {
		return p.extractor.Extract(ctx, content, p.mimeType)
	})
}

// Preview runs extraction on a single PDF without persisting anything.
func (p *Processor) Preview(ctx context.Context, path string) (string, error) {
	return p.extract(ctx, sweep.Item{Name: path, Path: path})
}

// PreviewRedaction redacts text without persisting anything.
func (p *Processor) PreviewRedaction(ctx context.Context, text string) (string, error) {
	return resilience.Guard(ctx, p.breakers.Get("dlp"), func(ctx context.Context) (string, error) {
		return p.redactor.Redact(ctx, text, p.templates.Deidentify, p.templates.Inspect)
	})
}
