package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"2013-02-06", "2013-02-07", "empty"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0o755))
	}
	for _, name := range []string{"2013-02-06/b.datalog", "2013-02-06/a.datalog", "2013-02-07/c.datalog", "d.datalog"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0o644))
	}

	files, err := ListFiles(filepath.Join(root, "2013-02-0[67]"))
	assert.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "2013-02-06", "a.datalog"),
		filepath.Join(root, "2013-02-06", "b.datalog"),
		filepath.Join(root, "2013-02-07", "c.datalog"),
	}, files)

	files, err = ListFiles(filepath.Join(root, "*.datalog"))
	assert.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "d.datalog")}, files)

	files, err = ListFiles(filepath.Join(root, "empty"))
	assert.NoError(t, err)
	assert.Empty(t, files)

	_, err = ListFiles("[")
	assert.Error(t, err)
}

func TestFilesAt(t *testing.T) {
	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()

	t.Run("write and rename", func(t *testing.T) {
		assert.NoError(t, WriteFileAt(dir, "chunk1.tmp", []byte("SATPAR0229"), 0o644))
		assert.NoError(t, RenameFileAt(dir, "chunk1.tmp", "chunk1.mpk.gz"))
		_, err := ReadFileAt(dir, "chunk1.tmp")
		assert.Error(t, err)
		content, err := ReadFileAt(dir, "chunk1.mpk.gz")
		assert.NoError(t, err)
		assert.Equal(t, "SATPAR0229", string(content))
	})

	t.Run("overwrite", func(t *testing.T) {
		assert.NoError(t, WriteFileAt(dir, "chunk1.mpk.gz", []byte("CTD"), 0o644))
		content, err := ReadFileAt(dir, "chunk1.mpk.gz")
		assert.NoError(t, err)
		assert.Equal(t, "CTD", string(content))
	})

	t.Run("unlink", func(t *testing.T) {
		assert.NoError(t, UnlinkFileAt(dir, "chunk1.mpk.gz"))
		_, err := ReadFileAt(dir, "chunk1.mpk.gz")
		assert.Error(t, err)
		assert.Error(t, UnlinkFileAt(dir, "chunk1.mpk.gz"))
	})
}
