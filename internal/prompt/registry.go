// Package prompt manages the versioned analysis prompt templates. At most
// one template is active; analysis falls back to the configured default
// when none is.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/store"
)

// DefaultName is the name of the template created by SeedDefault.
const DefaultName = "default"

// ActivePromptDeletionError is returned when deleting the active template.
type ActivePromptDeletionError struct {
	ID   int64
	Name string
}

func (e *ActivePromptDeletionError) Error() string {
	return fmt.Sprintf("prompt %q (id %d) is active and cannot be deleted", e.Name, e.ID)
}

// Input holds the editable fields of a template. Empty fields are left
// unchanged by Update.
type Input struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Model    string `json:"model" yaml:"model"`
	Content  string `json:"content" yaml:"content"`
	Activate bool   `json:"activate" yaml:"active"`
}

// Default is the built-in prompt and model used when no template is active.
type Default struct {
	Prompt string
	Model  string
}

// Resolved is the prompt and model an analysis runs with. Template is nil
// when the built-in default was used.
type Resolved struct {
	Prompt   string
	Model    string
	Template *model.PromptTemplate
}

// Registry is the prompt template registry.
type Registry struct {
	store    store.Store
	defaults Default
}

// NewRegistry creates a Registry backed by st.
func NewRegistry(st store.Store, def Default) *Registry {
	return &Registry{store: st, defaults: def}
}

// Defaults returns the built-in prompt and model.
func (r *Registry) Defaults() Default {
	return r.defaults
}

// Active returns the active template, or nil when none is active.
func (r *Registry) Active(ctx context.Context) (*model.PromptTemplate, error) {
	p, err := r.store.ActivePrompt(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "prompt: active")
	}
	return p, nil
}

// Activate makes id the only active template.
func (r *Registry) Activate(ctx context.Context, id int64) error {
	if err := r.store.ActivatePrompt(ctx, id); err != nil {
		return eris.Wrapf(err, "prompt: activate %d", id)
	}
	zap.L().Info("prompt: activated", zap.Int64("prompt_id", id))
	return nil
}

// Create stores a new template. It is inserted inactive and activated
// afterwards when in.Activate is set.
func (r *Registry) Create(ctx context.Context, in Input) (*model.PromptTemplate, error) {
	p := &model.PromptTemplate{
		Name:    strings.TrimSpace(in.Name),
		Version: in.Version,
		Model:   in.Model,
		Content: in.Content,
	}
	if p.Version == "" {
		p.Version = model.DefaultPromptVersion
	}
	if p.Model == "" {
		p.Model = r.defaults.Model
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := r.store.CreatePrompt(ctx, p); err != nil {
		return nil, eris.Wrapf(err, "prompt: create %s", p.Name)
	}
	if in.Activate {
		if err := r.Activate(ctx, p.ID); err != nil {
			return p, err
		}
		p.IsActive = true
	}
	return p, nil
}

// Update changes the non-empty fields of in on template id. The active flag
// is never changed; in.Activate is ignored.
func (r *Registry) Update(ctx context.Context, id int64, in Input) (*model.PromptTemplate, error) {
	p, err := r.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: get %d", id)
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		p.Name = name
	}
	if in.Version != "" {
		p.Version = in.Version
	}
	if in.Model != "" {
		p.Model = in.Model
	}
	if in.Content != "" {
		p.Content = in.Content
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := r.store.UpdatePrompt(ctx, p); err != nil {
		return nil, eris.Wrapf(err, "prompt: update %d", id)
	}
	return p, nil
}

// Delete removes an inactive template.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	err := r.store.DeletePrompt(ctx, id)
	if errors.Is(err, store.ErrPromptActive) {
		perr := &ActivePromptDeletionError{ID: id}
		if p, getErr := r.store.GetPrompt(ctx, id); getErr == nil {
			perr.Name = p.Name
		}
		return perr
	}
	if err != nil {
		return eris.Wrapf(err, "prompt: delete %d", id)
	}
	return nil
}

// Get returns template id.
func (r *Registry) Get(ctx context.Context, id int64) (*model.PromptTemplate, error) {
	p, err := r.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: get %d", id)
	}
	return p, nil
}

// List returns every template ordered by name.
func (r *Registry) List(ctx context.Context) ([]model.PromptTemplate, error) {
	ps, err := r.store.ListPrompts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "prompt: list")
	}
	return ps, nil
}

// Resolve returns the active template's prompt and model, or the built-in
// default. A registry failure is logged and resolves to the default.
func (r *Registry) Resolve(ctx context.Context) Resolved {
	def := Resolved{Prompt: r.defaults.Prompt, Model: r.defaults.Model}
	p, err := r.Active(ctx)
	if err != nil {
		zap.L().Warn("prompt: registry unavailable, using default prompt", zap.Error(err))
		return def
	}
	if p == nil {
		return def
	}
	res := Resolved{Prompt: p.Content, Model: p.Model, Template: p}
	if res.Model == "" {
		res.Model = r.defaults.Model
	}
	return res
}

// SeedDefault creates an active template from the built-in default when the
// registry is empty. It reports whether a template was created.
func (r *Registry) SeedDefault(ctx context.Context) (*model.PromptTemplate, bool, error) {
	ps, err := r.List(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(ps) > 0 {
		return nil, false, nil
	}
	p, err := r.Create(ctx, Input{
		Name:     DefaultName,
		Version:  model.DefaultPromptVersion,
		Model:    r.defaults.Model,
		Content:  r.defaults.Prompt,
		Activate: true,
	})
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func validate(p *model.PromptTemplate) error {
	switch {
	case p.Name == "":
		return eris.New("prompt: name is required")
	case strings.TrimSpace(p.Content) == "":
		return eris.Errorf("prompt: %s: content is required", p.Name)
	case p.Model == "":
		return eris.Errorf("prompt: %s: model is required", p.Name)
	}
	return nil
}
