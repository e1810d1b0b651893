package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	dsn := filepath.Join(tmp, "state", "studyctl.db")

	require.NoError(t, EnsureParentDir(dsn))

	fi, err := os.Stat(filepath.Join(tmp, "state"))
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}

	_, err = os.Stat(dsn)
	assert.True(t, os.IsNotExist(err), "the database file itself is not created")
}

func TestEnsureParentDir_Idempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "a", "b", "c.db")
	require.NoError(t, EnsureParentDir(dsn))
	require.NoError(t, EnsureParentDir(dsn))
}

func TestEnsureParentDir_Skips(t *testing.T) {
	for _, dsn := range []string{"", ":memory:", "file:test.db?mode=memory", "local.db"} {
		t.Run(dsn, func(t *testing.T) {
			assert.NoError(t, EnsureParentDir(dsn))
		})
	}
}

func TestEnsureParentDir_ErrorWhenParentIsFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := EnsureParentDir(filepath.Join(blocker, "sub", "db.sqlite"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mkdir")
}
