package platform

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "agent.pid"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(dir, "agent.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestInstanceLockRefusesLiveHolder(t *testing.T) {
	dir := t.TempDir()

	// This test process itself is the live holder.
	_, err := AcquireInstanceLock(dir)
	require.NoError(t, err)

	_, err = AcquireInstanceLock(dir)
	assert.Error(t, err)
}

func TestInstanceLockTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()

	// A pid that cannot exist on a real system.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.pid"), []byte("99999999"), 0o644))

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestInstanceLockIgnoresGarbagePidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.pid"), []byte("not a pid"), 0o644))

	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestPortableProbeDefaults(t *testing.T) {
	p := NewPortableProbe()
	assert.False(t, p.IsSystemLocked())
	assert.Negative(t, p.SystemIdleSeconds())
	assert.NotEmpty(t, p.Hostname())
}
