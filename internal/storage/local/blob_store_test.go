package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "screens"))
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run/000001-submit.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "../outside.png", "image/png", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), " ", "image/png", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)
}
