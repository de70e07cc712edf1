package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// maxKeyObjectSize bounds how much of the key object is read.
const maxKeyObjectSize = 64 << 20

// KeyBackend stores the serialized vault key mapping as one object. It
// satisfies vault.Backend.
type KeyBackend struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	key    string
}

// NewKeyBackend creates a KeyBackend storing the mapping at objectKey.
func NewKeyBackend(writer domain.BlobWriter, reader domain.BlobReader, objectKey string) *KeyBackend {
	return &KeyBackend{writer: writer, reader: reader, key: objectKey}
}

// Name returns the backend identifier.
func (b *KeyBackend) Name() string { return "s3" }

// Load reads the mapping object, returning domain.ErrNotFound if absent.
func (b *KeyBackend) Load(ctx context.Context) ([]byte, error) {
	body, err := b.reader.Get(ctx, b.key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxKeyObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", b.key, err)
	}
	if len(data) > maxKeyObjectSize {
		return nil, fmt.Errorf("s3blob: %s exceeds %d bytes", b.key, maxKeyObjectSize)
	}
	return data, nil
}

// Replace uploads the full mapping in one PutObject.
func (b *KeyBackend) Replace(ctx context.Context, data []byte) error {
	return b.writer.Put(ctx, b.key, bytes.NewReader(data), "application/json")
}
