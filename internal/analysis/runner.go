// Package analysis sends an event's document corpus to a language model and
// stores the resulting summary.
package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/artifact"
	"github.com/sells-group/claims-cli/internal/corpus"
	"github.com/sells-group/claims-cli/internal/cost"
	"github.com/sells-group/claims-cli/internal/generate"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/prompt"
)

// AnalysisError reports that the generation service failed for an event.
type AnalysisError struct {
	EventID string
	Model   string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s, model %s): %v", e.EventID, e.Model, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one analysis.
type Outcome struct {
	EventID      string  `json:"event_id"`
	RunID        string  `json:"run_id,omitempty"`
	Model        string  `json:"model"`
	Text         string  `json:"text"`
	Path         string  `json:"path,omitempty"`
	PromptID     *int64  `json:"prompt_id,omitempty"`
	PromptName   string  `json:"prompt_name,omitempty"`
	Documents    int     `json:"documents"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// BuildPrompt joins the instruction and the corpus into the text sent to
// the model.
func BuildPrompt(instruction, corpusText string) string {
	return instruction + "\n\nDocuments to analyze:\n---\n" + corpusText
}

// Runner analyzes events.
type Runner struct {
	corpus    *corpus.Aggregator
	prompts   *prompt.Registry
	gen       generate.Generator
	artifacts artifact.Store
	layout    layout.Layout
	costs     *cost.Calculator
	sink      progress.Sink
}

// NewRunner creates a Runner. costs may be nil; a nil sink discards
// progress.
func NewRunner(
	l layout.Layout,
	prompts *prompt.Registry,
	gen generate.Generator,
	artifacts artifact.Store,
	costs *cost.Calculator,
	sink progress.Sink,
) *Runner {
	if sink == nil {
		sink = progress.Discard
	}
	return &Runner{
		corpus:    corpus.New(l),
		prompts:   prompts,
		gen:       gen,
		artifacts: artifacts,
		layout:    l,
		costs:     costs,
		sink:      sink,
	}
}

// AnalyzeEvent analyzes the full corpus of eventID with the resolved prompt,
// writes the analysis file and records it. It returns nil when the event
// has no documents.
func (r *Runner) AnalyzeEvent(ctx context.Context, eventID string) (*Outcome, error) {
	log := zap.L().With(zap.String("event_id", eventID))

	r.sink.Record(progress.Info(eventID, "", "aggregating documents of event %s", eventID))
	docs, err := r.corpus.Documents(eventID)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: aggregate %s", eventID)
	}
	if len(docs) == 0 {
		r.sink.Record(progress.Info(eventID, "", "nothing to analyze for event %s", eventID))
		return nil, nil
	}

	resolved := r.prompts.Resolve(ctx)
	out, err := r.generate(ctx, eventID, resolved.Model, BuildPrompt(resolved.Prompt, corpus.Format(docs)))
	if err != nil {
		return nil, err
	}
	out.Documents = len(docs)
	out.RunID = uuid.NewString()
	out.Path = r.layout.AnalysisPath(eventID)

	res := model.AnalysisResult{
		EventID:     eventID,
		RunID:       out.RunID,
		Model:       out.Model,
		SummaryText: out.Text,
	}
	var run *model.PromptRun
	if t := resolved.Template; t != nil {
		id := t.ID
		out.PromptID = &id
		out.PromptName = t.Name
		run = &model.PromptRun{
			PromptID:  t.ID,
			EventID:   eventID,
			RunID:     out.RunID,
			Model:     out.Model,
			TokensIn:  &out.InputTokens,
			TokensOut: &out.OutputTokens,
		}
	}

	if err := r.artifacts.SaveAnalysis(ctx, res, run); err != nil {
		return out, eris.Wrapf(err, "analysis: save result of %s", eventID)
	}

	log.Info("analysis: complete",
		zap.String("run_id", out.RunID),
		zap.String("model", out.Model),
		zap.Int("documents", out.Documents),
		zap.Int64("input_tokens", out.InputTokens),
		zap.Int64("output_tokens", out.OutputTokens),
		zap.Float64("cost_usd", out.CostUSD),
	)
	r.sink.Record(progress.Info(eventID, "", "analysis saved to %s", out.Path))
	return out, nil
}

// AnalyzeDocument analyzes a single document of eventID. An empty
// promptOverride uses the resolved prompt. Nothing is persisted.
func (r *Runner) AnalyzeDocument(ctx context.Context, eventID, filename, promptOverride string) (*Outcome, error) {
	doc, err := r.corpus.Document(eventID, filename)
	if err != nil {
		return nil, err
	}
	resolved := r.prompts.Resolve(ctx)
	instruction := resolved.Prompt
	if promptOverride != "" {
		instruction = promptOverride
	}
	out, err := r.generate(ctx, eventID, resolved.Model, BuildPrompt(instruction, corpus.Format([]corpus.Document{*doc})))
	if err != nil {
		return nil, err
	}
	out.Documents = 1
	return out, nil
}

// Preview analyzes the full corpus of eventID without persisting anything.
// It returns nil when the event has no documents.
func (r *Runner) Preview(ctx context.Context, eventID, promptOverride string) (*Outcome, error) {
	docs, err := r.corpus.Documents(eventID)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: aggregate %s", eventID)
	}
	if len(docs) == 0 {
		r.sink.Record(progress.Info(eventID, "", "nothing to analyze for event %s", eventID))
		return nil, nil
	}
	resolved := r.prompts.Resolve(ctx)
	instruction := resolved.Prompt
	if promptOverride != "" {
		instruction = promptOverride
	}
	out, err := r.generate(ctx, eventID, resolved.Model, BuildPrompt(instruction, corpus.Format(docs)))
	if err != nil {
		return nil, err
	}
	out.Documents = len(docs)
	return out, nil
}

func (r *Runner) generate(ctx context.Context, eventID, modelName, fullPrompt string) (*Outcome, error) {
	r.sink.Record(progress.Info(eventID, "", "sending documents to %s", modelName))

	gen, err := r.gen.Generate(ctx, modelName, fullPrompt)
	if err != nil {
		aerr := &AnalysisError{EventID: eventID, Model: modelName, Err: err}
		r.sink.Record(progress.Error(eventID, "", aerr))
		return nil, aerr
	}

	out := &Outcome{
		EventID:      eventID,
		Model:        modelName,
		Text:         gen.Text,
		InputTokens:  gen.InputTokens,
		OutputTokens: gen.OutputTokens,
	}
	if gen.Model != "" {
		out.Model = gen.Model
	}
	if r.costs != nil && r.costs.Known(out.Model) {
		out.CostUSD = r.costs.Generation(out.Model, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}
