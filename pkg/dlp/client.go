// Package dlp provides a client for the Google Cloud DLP de-identification API.
package dlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/resilience"
)

const defaultBaseURL = "https://dlp.googleapis.com"

// Client defines the DLP operations used by the redaction adapter.
type Client interface {
	// Deidentify transforms text according to the named templates. The
	// inspect template is optional.
	Deidentify(ctx context.Context, req DeidentifyRequest) (string, error)
}

// DeidentifyRequest is one de-identification call.
type DeidentifyRequest struct {
	Text               string
	DeidentifyTemplate string
	InspectTemplate    string
}

type deidentifyBody struct {
	DeidentifyTemplateName string      `json:"deidentifyTemplateName"`
	InspectTemplateName    string      `json:"inspectTemplateName,omitempty"`
	Item                   contentItem `json:"item"`
}

type contentItem struct {
	Value string `json:"value"`
}

type deidentifyResponse struct {
	Item contentItem `json:"item"`
}

// Option configures the DLP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
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
	project  string
	location string
	baseURL  string
	http     *http.Client
}

// NewClient creates a DLP client scoped to one project and region.
func NewClient(project, location string, opts ...Option) Client {
	if location == "" {
		location = "europe-west3"
	}
	c := &httpClient{
		project:  project,
		location: location,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parent returns the resource parent used for de-identification calls.
func (c *httpClient) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.project, c.location)
}

func (c *httpClient) Deidentify(ctx context.Context, r DeidentifyRequest) (string, error) {
	if r.DeidentifyTemplate == "" {
		return "", eris.New("dlp: deidentify template is required")
	}
	body, err := json.Marshal(deidentifyBody{
		DeidentifyTemplateName: r.DeidentifyTemplate,
		InspectTemplateName:    r.InspectTemplate,
		Item:                   contentItem{Value: r.Text},
	})
	if err != nil {
		return "", eris.Wrap(err, "dlp: marshal request")
	}

	url := fmt.Sprintf("%s/v2/%s/content:deidentify", c.baseURL, c.Parent())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "dlp: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "dlp: deidentify request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "dlp: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", resilience.HTTPStatusError("dlp", resp.StatusCode, respBody)
	}

	var out deidentifyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", eris.Wrap(err, "dlp: unmarshal response")
	}
	return out.Item.Value, nil
}
