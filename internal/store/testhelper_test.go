package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh migrated database in a temp directory, giving
// each test its own file so they never contend for SQLite's single writer.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planengine.db")
	s, err := Init(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
