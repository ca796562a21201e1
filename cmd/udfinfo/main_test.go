package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	vfs "github.com/s0up4200/go-udfvfs/internal/fs"
	"github.com/s0up4200/go-udfvfs/internal/fs/udf/udftest"
	"github.com/s0up4200/go-udfvfs/internal/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testImage(t *testing.T) string {
	t.Helper()
	return udftest.Write(t,
		udftest.Dir("BDMV",
			udftest.File("index.bdmv", []byte("INDX0200")),
			udftest.Dir("STREAM", udftest.File("00000.m2ts", udftest.Pattern(5000))),
		),
		udftest.File("README.TXT", []byte("hello")),
	)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "udfinfo version: dev\n", out)
}

func TestUpdate_DevBuild(t *testing.T) {
	_, err := execute(t, "update")
	require.ErrorContains(t, err, "release builds")
}

func TestLs(t *testing.T) {
	img := testImage(t)

	out, err := execute(t, "ls", img)
	require.NoError(t, err)
	require.Equal(t, "BDMV\nREADME.TXT\n", out)

	out, err = execute(t, "ls", img, "BDMV")
	require.NoError(t, err)
	require.Equal(t, "index.bdmv\nSTREAM\n", out)

	out, err = execute(t, "ls", "-l", "--human=false", img, "/BDMV/STREAM")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "-rw-r--r--"), out)
	require.Contains(t, out, " 5000 ")
	require.True(t, strings.HasSuffix(out, " 00000.m2ts\n"), out)

	_, err = execute(t, "ls", img, "NOPE")
	require.ErrorIs(t, err, vfs.ErrFileNotFound)
}

func TestLs_FoldCase(t *testing.T) {
	img := testImage(t)

	_, err := execute(t, "ls", img, "bdmv")
	require.ErrorIs(t, err, vfs.ErrFileNotFound)

	out, err := execute(t, "ls", "--fold-case", img, "bdmv")
	require.NoError(t, err)
	require.Equal(t, "index.bdmv\nSTREAM\n", out)
}

func TestLs_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "BDMV"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	out, err := execute(t, "ls", dir)
	require.NoError(t, err)
	require.Equal(t, "BDMV\na.txt\n", out)
}

func TestCat(t *testing.T) {
	img := testImage(t)

	out, err := execute(t, "cat", "--max-read-blocks", "1", img, "BDMV/STREAM/00000.m2ts")
	require.NoError(t, err)
	require.Equal(t, string(udftest.Pattern(5000)), out)

	_, err = execute(t, "cat", img, "BDMV")
	require.ErrorIs(t, err, vfs.ErrNotAFile)
}

func TestStat(t *testing.T) {
	img := testImage(t)

	out, err := execute(t, "stat", img, "README.TXT")
	require.NoError(t, err)
	require.Contains(t, out, "  Name: README.TXT\n")
	require.Contains(t, out, "  Type: regular file\n")
	require.Contains(t, out, "  Size: 5 (5 B)\n")
	require.Contains(t, out, " Links: 1\n")
	require.Contains(t, out, "Modify: 2023-02-01T12:30:00Z (")
	require.Contains(t, out, " Label: UDFTEST\n")

	out, err = execute(t, "stat", img, "BDMV")
	require.NoError(t, err)
	require.Contains(t, out, "  Type: directory\n")
}

func TestTree(t *testing.T) {
	img := testImage(t)

	out, err := execute(t, "tree", "--human=false", img)
	require.NoError(t, err)
	require.Equal(t, strings.Join([]string{
		"/ [UDFTEST]",
		"  BDMV/",
		"    index.bdmv (8)",
		"    STREAM/",
		"      00000.m2ts (5000)",
		"  README.TXT (5)",
		"",
		"2 directories, 3 files",
		"",
	}, "\n"), out)

	out, err = execute(t, "tree", "--human=false", img, "BDMV/STREAM")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "/BDMV/STREAM\n  00000.m2ts (5000)\n"), out)

	_, err = execute(t, "tree", t.TempDir())
	require.ErrorContains(t, err, "needs a UDF image")
}

func TestExtract(t *testing.T) {
	img := testImage(t)
	dest := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "extract", img, dest)
	require.NoError(t, err)
	require.Contains(t, out, "Extracted 3 files")

	data, err := os.ReadFile(filepath.Join(dest, "BDMV", "STREAM", "00000.m2ts"))
	require.NoError(t, err)
	require.Equal(t, udftest.Pattern(5000), data)

	data, err = os.ReadFile(filepath.Join(dest, "README.TXT"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	info, err := os.Stat(filepath.Join(dest, "README.TXT"))
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(time.Date(2023, 2, 1, 12, 30, 0, 0, time.UTC)), info.ModTime())
}

// fixedTimesFs refuses to change modification times.
type fixedTimesFs struct {
	afero.Fs
}

func (fixedTimesFs) Chtimes(string, time.Time, time.Time) error {
	return errors.New("chtimes refused")
}

func TestExtract_ChtimesFailureIsLogged(t *testing.T) {
	require.NoError(t, logging.SetLevel("warn"))
	hook := test.NewLocal(logging.GetLogger())
	defer hook.Reset()

	fsys := vfs.NewUDFFileSystem()
	require.NoError(t, fsys.Mount(testImage(t)))
	defer fsys.Unmount()

	dst := afero.NewMemMapFs()
	n, err := extract(vfs.NewAferoFs(fsys, "src"), fixedTimesFs{dst})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	data, err := afero.ReadFile(dst, "/README.TXT")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "modification time") {
			require.ErrorContains(t, e.Data[logrus.ErrorKey].(error), "chtimes refused")
			warned++
		}
	}
	require.Equal(t, 3, warned)
}

func TestDebug(t *testing.T) {
	img := testImage(t)

	out, err := execute(t, "debug", img)
	require.NoError(t, err)
	require.Contains(t, out, `label="UDFTEST" blockSize=2048`)
	require.Contains(t, out, `- "BDMV" mode=040755`)
	require.Contains(t, out, `  - "index.bdmv" mode=100644 links=1 len=8`)
	require.Contains(t, out, `head="INDX0200"`)
	require.Contains(t, out, `- "README.TXT" mode=100644 links=1 len=5`)
	require.Contains(t, out, `head="hello"`)
	require.NotContains(t, out, "00000.m2ts")
	require.Contains(t, out, "open handles after walk: 0\n")

	out, err = execute(t, "debug", "--path", "BDMV/STREAM", "--head", "4", img)
	require.NoError(t, err)
	require.Contains(t, out, `- "00000.m2ts" mode=100644 links=1 len=5000`)
	require.Contains(t, out, fmt.Sprintf("head=%q", udftest.Pattern(4)))
	require.NotContains(t, out, "README.TXT")

	_, err = execute(t, "debug", "--path", "nope", img)
	require.ErrorContains(t, err, `"nope" not found`)

	_, err = execute(t, "debug", filepath.Join(t.TempDir(), "missing.iso"))
	require.Error(t, err)
}

func TestSettingsFlags(t *testing.T) {
	img := testImage(t)

	_, err := execute(t, "ls", "--max-read-blocks", "0", img)
	require.ErrorContains(t, err, "must be positive")

	_, err = execute(t, "ls", "--log-level", "loud", img)
	require.ErrorContains(t, err, "invalid log level")

	_, err = execute(t, "ls", filepath.Join(t.TempDir(), "missing.iso"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
