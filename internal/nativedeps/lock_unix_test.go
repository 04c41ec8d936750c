//go:build !windows

package nativedeps

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockFileName)

	first, err := AcquireRunLock(path)
	require.NoError(t, err)

	_, err = AcquireRunLock(path)
	require.ErrorIs(t, err, errRunLocked)

	first.Release()
	first.Release()

	again, err := AcquireRunLock(path)
	require.NoError(t, err)
	again.Release()
	assert.FileExists(t, path)
}
