package gcpauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_CredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "authorized_user",
		"client_id": "id.apps.googleusercontent.com",
		"client_secret": "secret",
		"refresh_token": "refresh"
	}`), 0o600))

	hc, err := NewHTTPClient(context.Background(), path, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, hc.Timeout)
	assert.NotNil(t, hc.Transport)
}

func TestNewHTTPClient_MissingFile(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), filepath.Join(t.TempDir(), "missing.json"), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcpauth: read credentials")
}

func TestNewHTTPClient_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewHTTPClient(context.Background(), path, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcpauth: load credentials")
}
