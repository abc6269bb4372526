// Package archive mirrors text artifacts to S3-compatible object storage.
package archive

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/config"
)

// Object kinds used as the second key segment.
const (
	KindRaw      = "raw"
	KindRedacted = "redacted"
	KindGeneral  = "general"
	KindAnalysis = "analysis"
)

// ObjectPutter is the subset of *minio.Client used by Mirror.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads text artifacts to one bucket.
type Mirror struct {
	client ObjectPutter
	bucket string
}

// NewMirror creates a Mirror over an existing client.
func NewMirror(client ObjectPutter, bucket string) *Mirror {
	return &Mirror{client: client, bucket: bucket}
}

// Dial connects to the configured endpoint and makes sure the bucket exists.
func Dial(ctx context.Context, cfg config.ArchiveConfig) (*Mirror, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "archive: create client")
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, eris.Wrapf(err, "archive: make bucket %s", cfg.Bucket)
		}
	}
	return NewMirror(cli, cfg.Bucket), nil
}

// Key builds the object key <event>/<kind>/<name>.
func Key(eventID, kind, name string) string {
	return path.Join(eventID, kind, name)
}

// PutText uploads text as a UTF-8 plain-text object, replacing any existing
// object under key.
func (m *Mirror) PutText(ctx context.Context, key, text string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return eris.Wrapf(err, "archive: put %s", key)
	}
	return nil
}
