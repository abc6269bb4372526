package model

import "time"

// DefaultPromptVersion is assigned to templates created without a version.
const DefaultPromptVersion = "1.0"

// PromptTemplate is a named, versioned analysis instruction bound to a
// target model. At most one template is active at a time.
type PromptTemplate struct {
	ID        int64     `json:"id" yaml:"-"`
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version" yaml:"version"`
	Model     string    `json:"model" yaml:"model"`
	Content   string    `json:"content" yaml:"content"`
	IsActive  bool      `json:"is_active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// PromptRun records which prompt version produced which analysis.
type PromptRun struct {
	ID        int64     `json:"id"`
	PromptID  int64     `json:"prompt_id"`
	EventID   string    `json:"event_id"`
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	TokensIn  *int64    `json:"tokens_in,omitempty"`
	TokensOut *int64    `json:"tokens_out,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
