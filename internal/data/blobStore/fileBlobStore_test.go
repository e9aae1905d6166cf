package blobStore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobStore_PutGetDelete(t *testing.T) {
	s, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Put(ctx, []byte("%PDF-1.4"), PathHint("J1", "doc-1", "land-act.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.Contains(t, uri, "jurisdictions/J1/doc-1-land-act.pdf")

	data, err := s.Get(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.Delete(ctx, uri))
	_, err = s.Get(ctx, uri)
	assert.Error(t, err)

	// deleting twice is not an error
	assert.NoError(t, s.Delete(ctx, uri))
}

func TestFileBlobStore_RejectsForeignUris(t *testing.T) {
	s, err := NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = s.Get(context.Background(), "s3://bucket/key")
	assert.Error(t, err)
}

func TestPathHint_SanitizesNames(t *testing.T) {
	hint := PathHint("J/1", "doc", "../../evil.pdf")
	assert.NotContains(t, hint, "..")
	assert.Contains(t, hint, "J_1")
}
