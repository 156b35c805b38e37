package followerwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file loads as zero", func(t *testing.T) {
		fs, err := NewFileStore(filepath.Join(t.TempDir(), "followers.json"))
		require.NoError(t, err)
		n, err := fs.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "followers.json")
		fs, err := NewFileStore(path)
		require.NoError(t, err)
		for _, n := range []int{0, 1, 1234567, 42} {
			require.NoError(t, fs.Save(ctx, n))
			got, err := fs.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, n, got)
		}
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"last": 42}`, string(raw))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary files must not be left behind")
	})

	t.Run("reads the original file format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "followers.json")
		require.NoError(t, os.WriteFile(path, []byte("{\n  \"last\": 321\n}"), 0o600))
		n, err := (&FileStore{Path: path}).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 321, n)
	})

	for name, content := range map[string]string{
		"garbage":  "not json",
		"wrong":    `{"last": "many"}`,
		"negative": `{"last": -5}`,
	} {
		t.Run("corrupt "+name+" loads as zero", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "followers.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			n, err := (&FileStore{Path: path}).Load(ctx)
			assert.Error(t, err)
			assert.Equal(t, 0, n)
		})
	}

	t.Run("empty object loads as zero", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "followers.json")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
		n, err := (&FileStore{Path: path}).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("failed save keeps previous value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "followers.json")
		fs := &FileStore{Path: path}
		require.NoError(t, fs.Save(ctx, 700))
		assert.Error(t, fs.Save(ctx, -1))
		n, err := fs.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 700, n)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewFileStore("")
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore(12)
	n, err := ms.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.NoError(t, ms.Save(ctx, 15))
	n, _ = ms.Load(ctx)
	assert.Equal(t, 15, n)
	assert.Equal(t, 1, ms.Saves())
}
