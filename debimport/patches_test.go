package debimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSeries = `# leading comment, ignored
fix-build.patch
subdir/rename-header.patch -p0

tighten-cflags.patch -p1
`

func writeSeries(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	patchesDir := filepath.Join(dir, "debian", "patches")
	require.NoError(t, os.MkdirAll(filepath.Join(patchesDir, "subdir"), 0755))

	for _, name := range []string{"fix-build.patch", "tighten-cflags.patch"} {
		require.NoError(t, os.WriteFile(filepath.Join(patchesDir, name), []byte("--- a\n+++ b\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(patchesDir, "subdir", "rename-header.patch"), []byte("--- a\n+++ b\n"), 0644))

	seriesPath := filepath.Join(patchesDir, "series")
	require.NoError(t, os.WriteFile(seriesPath, []byte(sampleSeries), 0644))
	return seriesPath
}

func TestReadPatchSeries(t *testing.T) {
	seriesPath := writeSeries(t)

	entries, err := ReadPatchSeries(seriesPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, PatchEntry{Filename: "fix-build.patch", Strip: 1}, entries[0])
	assert.Equal(t, PatchEntry{Filename: "subdir/rename-header.patch", Strip: 0}, entries[1])
	assert.Equal(t, PatchEntry{Filename: "tighten-cflags.patch", Strip: 1}, entries[2])
}

func TestCopyPatches(t *testing.T) {
	seriesPath := writeSeries(t)
	destDir := t.TempDir()

	entries, err := CopyPatches(seriesPath, destDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(destDir, "patches", e.Filename))
		require.NoError(t, err)
		assert.Equal(t, "--- a\n+++ b\n", string(data))
	}
}

func TestCopyPatchesEmptySeries(t *testing.T) {
	dir := t.TempDir()
	seriesPath := filepath.Join(dir, "series")
	require.NoError(t, os.WriteFile(seriesPath, []byte("# nothing here\n"), 0644))

	entries, err := CopyPatches(seriesPath, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
