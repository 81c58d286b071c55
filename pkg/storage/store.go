package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a reference does not resolve to a stored object.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// BlobStore persists opaque objects addressed by key. Keys are the fileRef
// values recorded on FIRs; callers never see filesystem paths or bucket URLs.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey validates a storage key: forward slashes, no traversal, no absolute paths.
func CleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}
