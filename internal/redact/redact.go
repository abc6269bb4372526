// Package redact removes personal data from extracted document text through
// a de-identification service.
package redact

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/sells-group/claims-cli/pkg/dlp"
)

// Redactor transforms text according to a named de-identification policy.
// The policy template alone decides which kinds of personal data are removed
// or replaced.
type Redactor interface {
	Redact(ctx context.Context, text, policyTemplate, inspectTemplate string) (string, error)
}

// RedactionError reports that the de-identification service rejected or
// failed to process a text. It is scoped to a single file.
type RedactionError struct {
	Template string
	Err      error
}

func (e *RedactionError) Error() string {
	return fmt.Sprintf("redaction failed (template %s): %v", e.Template, e.Err)
}

func (e *RedactionError) Unwrap() error {
	return e.Err
}

// DLP redacts text with Cloud DLP content:deidentify.
type DLP struct {
	client  dlp.Client
	limiter *rate.Limiter
}

// NewDLP creates a DLP redactor. A positive requestsPerSecond throttles
// outbound calls.
func NewDLP(client dlp.Client, requestsPerSecond float64) *DLP {
	d := &DLP{client: client}
	if requestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return d
}

// Redact returns the de-identified text. Empty input is returned as is
// without calling the service.
func (d *DLP) Redact(ctx context.Context, text, policyTemplate, inspectTemplate string) (string, error) {
	if text == "" {
		return "", nil
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", &RedactionError{Template: policyTemplate, Err: err}
		}
	}
	out, err := d.client.Deidentify(ctx, dlp.DeidentifyRequest{
		Text:               text,
		DeidentifyTemplate: policyTemplate,
		InspectTemplate:    inspectTemplate,
	})
	if err != nil {
		return "", &RedactionError{Template: policyTemplate, Err: err}
	}
	return out, nil
}
