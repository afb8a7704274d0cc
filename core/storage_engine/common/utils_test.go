package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func writeSource(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("rowdb-"), size/6+1)[:size]
	path := filepath.Join(t.TempDir(), "src.db")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path, data
}

func TestCopyThrottled_CopiesAndDigests(t *testing.T) {
	for _, size := range []int{0, 1, chunkSize, 2*chunkSize + 17} {
		src, data := writeSource(t, size)
		dst := filepath.Join(t.TempDir(), "dst.db")

		digest, err := CopyThrottled(context.Background(), src, dst, 0)
		require.NoError(t, err)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Equal(t, data, got)
		require.Equal(t, Digest(blake3.Sum256(data)), digest)
		require.Len(t, digest.String(), 64)

		fi, err := os.Stat(dst)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	}
}

func TestCopyThrottled_OverwritesDestination(t *testing.T) {
	src, data := writeSource(t, 100)
	dst := filepath.Join(t.TempDir(), "dst.db")
	require.NoError(t, os.WriteFile(dst, bytes.Repeat([]byte{0xff}, 1000), 0600))

	_, err := CopyThrottled(context.Background(), src, dst, 0)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCopyThrottled_RespectsContext(t *testing.T) {
	src, _ := writeSource(t, 4*chunkSize)
	dst := filepath.Join(t.TempDir(), "dst.db")

	// One chunk per second: the deadline expires while waiting for tokens.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := CopyThrottled(ctx, src, dst, chunkSize)
	require.Error(t, err)

	_, statErr := os.Stat(dst)
	require.ErrorIs(t, statErr, os.ErrNotExist, "partial copy is removed")
}

func TestCopyThrottled_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyThrottled(context.Background(), filepath.Join(dir, "none"), filepath.Join(dir, "dst"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyThrottled_RejectsSourceAsDestination(t *testing.T) {
	src, data := writeSource(t, 3*291)
	link := filepath.Join(t.TempDir(), "link.db")
	require.NoError(t, os.Link(src, link))

	for _, dst := range []string{src, filepath.Join(filepath.Dir(src), ".", "src.db"), link} {
		_, err := CopyThrottled(context.Background(), src, dst, 0)
		require.ErrorIs(t, err, ErrSameFile, dst)

		got, err := os.ReadFile(src)
		require.NoError(t, err)
		require.Equal(t, data, got, "source must be left untouched")
	}
}
