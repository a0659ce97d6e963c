// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
	"github.com/JakeFAU/corpus-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "CRAWLED_PAGES")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutGet(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		uri, err := store.Put(ctx, "site_abc.blob", []byte("compressed"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "site_abc.blob"), uri)

		got, err := store.Get(ctx, "site_abc.blob")
		require.NoError(t, err)
		assert.Equal(t, []byte("compressed"), got)
	})

	t.Run("OverwriteSameName", func(t *testing.T) {
		_, err := store.Put(ctx, "site_same.blob", []byte("one"))
		require.NoError(t, err)
		_, err = store.Put(ctx, "site_same.blob", []byte("one"))
		require.NoError(t, err)

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".blob-", "temp files must not linger")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "absent.blob")
		require.ErrorIs(t, err, crawler.ErrNotFound)
	})

	t.Run("EmptyName", func(t *testing.T) {
		_, err := store.Put(ctx, "", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.Put(ctx, "../escape.blob", []byte("data"))
		assert.ErrorContains(t, err, "path traversal")
		_, err = store.Get(ctx, "../../etc/passwd")
		assert.ErrorContains(t, err, "path traversal")
	})
}
