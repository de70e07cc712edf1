package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// memBlob is an in-memory object store.
type memBlob struct {
	objects map[string][]byte
	getErr  error
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestKeyBackend_LoadMissing(t *testing.T) {
	blob := newMemBlob()
	kb := NewKeyBackend(blob, blob, "vault/keys.json")

	_, err := kb.Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestKeyBackend_ReplaceLoad(t *testing.T) {
	ctx := context.Background()
	blob := newMemBlob()
	kb := NewKeyBackend(blob, blob, "vault/keys.json")

	require.NoError(t, kb.Replace(ctx, []byte(`{"m1":[1]}`)))
	require.NoError(t, kb.Replace(ctx, []byte(`{"m1":[2]}`)))

	got, err := kb.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"m1":[2]}`, string(got))
	assert.Len(t, blob.objects, 1)
}

func TestKeyBackend_LoadError(t *testing.T) {
	blob := newMemBlob()
	blob.getErr = errors.New("access denied")
	kb := NewKeyBackend(blob, blob, "vault/keys.json")

	_, err := kb.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://127.0.0.1:9000", normaliseEndpoint("127.0.0.1:9000", false))
	assert.Equal(t, "https://minio.internal", normaliseEndpoint("minio.internal", true))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("get: %w", &types.NotFound{})))
	assert.False(t, isNotFound(errors.New("access denied")))
}
