// Package docai provides a client for the Google Document AI process API.
package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/resilience"
)

// Client defines the Document AI operations used by the extraction adapter.
type Client interface {
	// Process runs the configured processor over one document.
	Process(ctx context.Context, content []byte, mimeType string) (*Document, error)
}

// Document is the subset of the Document AI document we consume.
type Document struct {
	Text  string `json:"text"`
	Pages []Page `json:"pages"`
}

// Page carries per-page metadata.
type Page struct {
	PageNumber int `json:"pageNumber"`
}

type processRequest struct {
	RawDocument rawDocument `json:"rawDocument"`
}

type rawDocument struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type processResponse struct {
	Document Document `json:"document"`
}

// Option configures the Document AI client.
type Option func(*httpClient)

// WithBaseURL overrides the regional endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client, typically one built by gcpauth.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	project   string
	location  string
	processor string
	baseURL   string
	http      *http.Client
}

// NewClient creates a Document AI client for one processor.
func NewClient(project, location, processor string, opts ...Option) Client {
	if location == "" {
		location = "eu"
	}
	c := &httpClient{
		project:   project,
		location:  location,
		processor: processor,
		baseURL:   fmt.Sprintf("https://%s-documentai.googleapis.com", location),
		http:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessorName returns the fully qualified processor resource name.
func (c *httpClient) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.project, c.location, c.processor)
}

func (c *httpClient) Process(ctx context.Context, content []byte, mimeType string) (*Document, error) {
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	body, err := json.Marshal(processRequest{
		RawDocument: rawDocument{
			Content:  base64.StdEncoding.EncodeToString(content),
			MimeType: mimeType,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "docai: marshal request")
	}

	url := fmt.Sprintf("%s/v1/%s:process", c.baseURL, c.ProcessorName())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "docai: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "docai: process request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docai: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("docai", resp.StatusCode, respBody)
	}

	var out processResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "docai: unmarshal response")
	}
	return &out.Document, nil
}
