package fs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskFileSystem(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "BDMV", "STREAM"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "BDMV", "index.bdmv"), []byte("INDX0200"), 0o644))

	fsys := NewDiskFileSystem(root)

	names, err := fsys.ReadDir("/BDMV")
	require.NoError(t, err)
	require.Equal(t, []string{"STREAM", "index.bdmv"}, names)

	_, err = fsys.ReadDir("missing")
	require.ErrorIs(t, err, ErrFileNotFound)
	_, err = fsys.ReadDir("BDMV/index.bdmv")
	require.ErrorIs(t, err, ErrNotADirectory)

	f, err := fsys.OpenFile("BDMV/index.bdmv")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "INDX0200", string(data))

	_, err = fsys.OpenFile("BDMV")
	require.ErrorIs(t, err, ErrNotAFile)

	md, err := fsys.Metadata("BDMV/index.bdmv")
	require.NoError(t, err)
	require.EqualValues(t, 8, md.Length)
	require.True(t, md.LengthKnown)

	ok, err := fsys.Exists("BDMV/STREAM")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = fsys.Exists("BDMV/nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, fsys.CreateDir("x"), ErrNotSupported)
	require.ErrorIs(t, fsys.RemoveFile("BDMV/index.bdmv"), ErrNotSupported)
	_, err = os.Stat(filepath.Join(root, "BDMV", "index.bdmv"))
	require.NoError(t, err)
}

func TestDiskFileSystem_StaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret"), []byte("x"), 0o644))

	fsys := NewDiskFileSystem(root)
	ok, err := fsys.Exists("../secret")
	require.NoError(t, err)
	require.False(t, ok)
}
