package prompt

import (
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/store"
)

// File is the YAML document read by Import and written by Export.
type File struct {
	Prompts []Input `yaml:"prompts"`
}

// ImportResult lists the template names touched by Import.
type ImportResult struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Activated string   `json:"activated,omitempty"`
}

// Import creates or updates templates by name from a YAML document. At most
// one entry may be marked active; it is activated after all writes.
func (r *Registry) Import(ctx context.Context, rd io.Reader) (*ImportResult, error) {
	var f File
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "prompt: decode yaml")
	}

	active := ""
	for _, in := range f.Prompts {
		if !in.Activate {
			continue
		}
		if active != "" {
			return nil, eris.Errorf("prompt: import marks both %q and %q active", active, in.Name)
		}
		active = in.Name
	}

	res := &ImportResult{}
	var activateID int64
	for _, in := range f.Prompts {
		activate := in.Activate
		in.Activate = false

		var p *model.PromptTemplate
		existing, err := r.store.GetPromptByName(ctx, in.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if p, err = r.Create(ctx, in); err != nil {
				return res, err
			}
			res.Created = append(res.Created, p.Name)
		case err != nil:
			return res, eris.Wrapf(err, "prompt: lookup %s", in.Name)
		default:
			if p, err = r.Update(ctx, existing.ID, in); err != nil {
				return res, err
			}
			res.Updated = append(res.Updated, p.Name)
		}
		if activate {
			activateID = p.ID
			res.Activated = p.Name
		}
	}

	if activateID != 0 {
		if err := r.Activate(ctx, activateID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Export writes every template as a YAML document readable by Import.
func (r *Registry) Export(ctx context.Context, w io.Writer) error {
	ps, err := r.List(ctx)
	if err != nil {
		return err
	}
	f := File{Prompts: make([]Input, 0, len(ps))}
	for _, p := range ps {
		f.Prompts = append(f.Prompts, Input{
			Name:     p.Name,
			Version:  p.Version,
			Model:    p.Model,
			Content:  p.Content,
			Activate: p.IsActive,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return eris.Wrap(err, "prompt: encode yaml")
	}
	return eris.Wrap(enc.Close(), "prompt: close yaml encoder")
}
