package config

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_SIGHUPReloadsFileAndInvokesCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_task_attempts": 3}`), 0o644))

	w := NewWatcher(path, nil)
	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config, err error) {
		require.NoError(t, err)
		reloaded <- cfg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(20 * time.Millisecond) // let signal.Notify register before we raise.

	require.NoError(t, os.WriteFile(path, []byte(`{"max_task_attempts": 9}`), 0o644))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.MaxTaskAttempts)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGHUP reload callback")
	}
}

func TestWatcher_SIGHUPWithMalformedFileReportsErrorAndKeepsPreviousValueAvailable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_task_attempts": 3}`), 0o644))

	w := NewWatcher(path, nil)
	result := make(chan error, 1)
	w.OnReload(func(cfg *Config, err error) {
		result <- err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGHUP reload callback")
	}
}
