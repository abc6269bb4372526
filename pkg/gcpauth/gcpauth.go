// Package gcpauth builds OAuth2-authorized HTTP clients for Google Cloud
// REST APIs.
package gcpauth

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope grants access to Document AI and DLP.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewHTTPClient returns an HTTP client that attaches Google credentials to
// every request. When credentialsFile is empty, Application Default
// Credentials are used.
func NewHTTPClient(ctx context.Context, credentialsFile string, timeout time.Duration) (*http.Client, error) {
	var (
		creds *google.Credentials
		err   error
	)
	if credentialsFile != "" {
		data, readErr := os.ReadFile(credentialsFile)
		if readErr != nil {
			return nil, eris.Wrapf(readErr, "gcpauth: read credentials %s", credentialsFile)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, CloudPlatformScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, CloudPlatformScope)
	}
	if err != nil {
		return nil, eris.Wrap(err, "gcpauth: load credentials")
	}

	hc := oauth2.NewClient(ctx, creds.TokenSource)
	hc.Timeout = timeout
	return hc, nil
}
