package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIntervalRotatingWriter_RotatesAndCleans(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "bifang.log.20000101000000")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0o644))

	clock := time.Date(2026, 1, 2, 10, 0, 0, 0, time.Local)
	rc := &RotateConfig{Enabled: true, RotateInterval: time.Minute, MaxAge: time.Hour, CleanupEnabled: true}
	w, err := newIntervalRotatingWriter(dir, "bifang", rc)
	require.NoError(t, err)
	w.now = func() time.Time { return clock }
	// force the first file to carry the fake clock's tag
	require.NoError(t, w.rotateLocked(clock))

	_, err = w.Write([]byte("a\n"))
	require.NoError(t, err)
	clock = clock.Add(2 * time.Minute)
	_, err = w.Write([]byte("b\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err), "stale file should be cleaned up")

	_, err = os.Stat(filepath.Join(dir, "bifang.log.20260102100000"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bifang.log.20260102100200"))
	require.NoError(t, err)
}

func TestGlobalHelpers_NoopBeforeStart(t *testing.T) {
	require.NotPanics(t, func() {
		Infof(context.Background(), "hello %s", "world")
		Warn(context.Background(), "warn")
	})
	require.NotNil(t, UnderlyingZap())
}
