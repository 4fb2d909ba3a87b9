package matcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWatcher_SkipsUnwatchableDirWithoutError(t *testing.T) {
	w, err := NewWatcher([]string{"/definitely/does/not/exist"}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()
}

func TestNewWatcher_DefaultsToNopLoggerWhenNil(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, nil)
	require.NoError(t, err)
	defer w.Close()
}

func TestWatcher_EmitsOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644))

	select {
	case <-w.Events:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a watcher event after file create")
	}
}

func TestWatcher_EventChannelIsNonBlockingUnderBurst(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		name := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	select {
	case <-w.Events:
	case <-time.After(5 * time.Second):
		t.Fatal("expected at least one watcher event after burst of writes")
	}
	assert.NotPanics(t, func() { _ = w.Close() })
}
