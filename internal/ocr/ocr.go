package ocr

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/pkg/docai"
)

// Extractor extracts plain text from one document's bytes.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string) (string, error)
}

// ExtractionError reports that the OCR service could not produce text for
// a document. It is scoped to a single file.
type ExtractionError struct {
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Provider, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractor creates an Extractor based on config. The docai client is only
// used by the "documentai" provider and may be nil otherwise.
func NewExtractor(cfg config.OCRConfig, dai docai.Client) (Extractor, error) {
	var ext Extractor
	switch cfg.Provider {
	case "documentai", "":
		if dai == nil {
			return nil, eris.New("ocr: documentai provider requires a Document AI client")
		}
		ext = NewDocumentAI(dai)
	case "local":
		ext = NewPdfToText(cfg.PdfToTextPath)
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		ext = NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &normalized{next: ext, limiter: limiter}, nil
}

// normalized throttles calls to the wrapped extractor and returns its text
// in Unicode NFC form.
type normalized struct {
	next    Extractor
	limiter *rate.Limiter
}

func (n *normalized) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return "", &ExtractionError{Provider: "ratelimit", Err: err}
		}
	}
	text, err := n.next.Extract(ctx, content, mimeType)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(text), nil
}
