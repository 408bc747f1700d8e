package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "update.sh")

	require.NoError(t, WriteAtomic(path, []byte("#!/bin/sh\necho v1\n"), 0755))
	require.NoError(t, WriteAtomic(path, []byte("#!/bin/sh\necho v2\n"), 0755))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho v2\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestReadOptional(t *testing.T) {
	dir := t.TempDir()

	data, ok, err := ReadOptional(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	data, ok, err = ReadOptional(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), data)
}

func TestReadFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server_location.txt")
	require.NoError(t, os.WriteFile(path, []byte("  https://cp.example.com/ \nsecond\n"), 0644))

	line, err := ReadFirstLine(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cp.example.com/", line)
}

func TestLockExcludesSecondHolder(t *testing.T) {
	path := LockPath(t.TempDir(), "/etc/config/passwall2")
	assert.Equal(t, "edgeagent-passwall2.lock", filepath.Base(path))

	l, err := LockFile(path)
	require.NoError(t, err)

	_, err = TryLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock())

	l2, err := TryLock(path)
	require.NoError(t, err)
	assert.NoError(t, l2.Unlock())
}

func TestLockPathSidecar(t *testing.T) {
	assert.Equal(t, "/root/update.sh.lock", LockPath("", "/root/update.sh"))
}
