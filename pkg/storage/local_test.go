package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	info, err := store.Put(ctx, "evidence/photo.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)

	_, err = store.Put(ctx, "evidence/photo.png", strings.NewReader("again"), "image/png")
	require.Error(t, err)

	rc, opened, err := store.Open(ctx, "evidence/photo.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", opened.ContentType)

	require.NoError(t, store.Delete(ctx, "evidence/photo.png"))
	require.NoError(t, store.Delete(ctx, "evidence/photo.png"))
	_, _, err = store.Open(ctx, "evidence/photo.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestCleanKey(t *testing.T) {
	for _, key := range []string{"", "/abs", "../up", "a/../../b", "a\\b", "a//b", "."} {
		_, err := CleanKey(key)
		assert.Error(t, err, key)
	}
	key, err := CleanKey("evidence/2026/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "evidence/2026/file.pdf", key)
}
