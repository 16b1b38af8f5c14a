package iox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("broken")
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(src, []byte("not really a png"), 0644))
	dst := filepath.Join(dir, "b.png")
	n, err := CopyFile(dst, src)
	require.NoError(t, err)
	require.EqualValues(t, 16, n)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "not really a png", string(b))

	_, err = CopyFile(dst, filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}

func TestWriteStreamToFileRemovesPartial(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "x")
	_, err := WriteStreamToFile(dst, failingReader{})
	require.Error(t, err)
	_, err = os.Stat(dst)
	require.True(t, os.IsNotExist(err))

	n, err := WriteStreamToFile(dst, strings.NewReader("abc"))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}
