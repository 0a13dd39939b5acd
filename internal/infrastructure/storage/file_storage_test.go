package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
)

func newTestStorage(t *testing.T) *LocalFileStorage {
	t.Helper()
	return NewLocalFileStorage(t.TempDir(), zap.NewNop())
}

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "expense-report-20251018-090000.xlsx", []byte("xlsx")))
	assert.True(t, s.Exists(ctx, "expense-report-20251018-090000.xlsx"))

	content, err := s.Read(ctx, "expense-report-20251018-090000.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(content))

	require.NoError(t, s.Delete(ctx, "expense-report-20251018-090000.xlsx"))
	assert.False(t, s.Exists(ctx, "expense-report-20251018-090000.xlsx"))
	require.NoError(t, s.Delete(ctx, "expense-report-20251018-090000.xlsx"), "deleting twice is not an error")

	_, err = s.Read(ctx, "expense-report-20251018-090000.xlsx")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestLocalFileStorage_SaveCreatesDirectoriesAndLeavesNoTempFiles(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, filepath.Join("2025", "report.xlsx"), []byte("a")))

	entries, err := os.ReadDir(s.GetFullPath("2025"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.xlsx", entries[0].Name())
}

func TestLocalFileStorage_RejectsEscapingPaths(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, "../outside.xlsx", []byte("x")))
	_, err := s.Read(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.False(t, s.Exists(ctx, "../outside.xlsx"))
	assert.Error(t, s.Delete(ctx, ""))
}

func TestLocalFileStorage_ListAndPrune(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, name := range []string{
		"expense-report-20251016-090000.xlsx",
		"expense-report-20251018-090000.xlsx",
		"expense-report-20251017-090000.xlsx",
		"notes.txt",
	} {
		require.NoError(t, s.Save(ctx, name, []byte(name)))
	}

	names, err := s.List(ctx, ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"expense-report-20251016-090000.xlsx",
		"expense-report-20251017-090000.xlsx",
		"expense-report-20251018-090000.xlsx",
	}, names)

	removed, err := s.Prune(ctx, ".xlsx", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	names, err = s.List(ctx, ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"expense-report-20251018-090000.xlsx"}, names)
	assert.True(t, s.Exists(ctx, "notes.txt"))
}

func TestLocalFileStorage_ListMissingDirectory(t *testing.T) {
	s := NewLocalFileStorage(filepath.Join(t.TempDir(), "missing"), zap.NewNop())

	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
