package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutter struct {
	mock.Mock
	bodies map[string]string
}

func (m *mockPutter) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, _ := io.ReadAll(r)
	if m.bodies == nil {
		m.bodies = map[string]string{}
	}
	m.bodies[key] = string(b)
	args := m.Called(ctx, bucket, key, size, opts.ContentType)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, args.Error(0)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "PU_1/raw/a.txt", Key("PU_1", KindRaw, "a.txt"))
	assert.Equal(t, "PU_1/analysis/PU_1_analyza.txt", Key("PU_1", KindAnalysis, "PU_1_analyza.txt"))
}

func TestMirror_PutText(t *testing.T) {
	p := &mockPutter{}
	p.On("PutObject", mock.Anything, "claims-artifacts", "E1/redacted/a.txt", int64(len("Meno: [PERSON]")), "text/plain; charset=utf-8").
		Return(nil)

	m := NewMirror(p, "claims-artifacts")
	require.NoError(t, m.PutText(context.Background(), "E1/redacted/a.txt", "Meno: [PERSON]"))
	assert.Equal(t, "Meno: [PERSON]", p.bodies["E1/redacted/a.txt"])
	p.AssertExpectations(t)
}

func TestMirror_PutTextError(t *testing.T) {
	p := &mockPutter{}
	p.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access denied"))

	err := NewMirror(p, "b").PutText(context.Background(), "k", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive: put k")
}
