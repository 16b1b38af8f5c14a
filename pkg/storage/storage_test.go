package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestParseGCS(t *testing.T) {
	bucket, object, err := ParseGCS("gs://models/autcar/driver.onnx")
	require.NoError(t, err)
	require.Equal(t, "models", bucket)
	require.Equal(t, "autcar/driver.onnx", object)

	for _, bad := range []string{"models/driver.onnx", "gs://", "gs://models", "gs://models/", "gs:///x"} {
		_, _, err := ParseGCS(bad)
		require.Error(t, err, bad)
	}
	require.True(t, IsRemote("gs://a/b"))
	require.False(t, IsRemote("/tmp/gs://"))
}

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("weights"), 0644))
	dst := filepath.Join(dir, "nested", "b.bin")
	require.NoError(t, Put(context.Background(), logs.NewTestingLog(t), src, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "weights", string(b))

	// Copy onto itself is a no-op
	require.NoError(t, Put(context.Background(), logs.NewTestingLog(t), src, src))

	require.Error(t, Put(context.Background(), logs.NewTestingLog(t), filepath.Join(dir, "missing"), dst))
}

func TestLocalWriteFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "x", "model.onnx")
	require.NoError(t, WriteFile(context.Background(), logs.NewTestingLog(t), dst, []byte{1, 2, 3}))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)
}
