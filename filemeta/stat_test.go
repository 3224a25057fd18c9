package filemeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLstatPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	st, err := Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, KindFile, st.Kind)
	assert.False(t, st.IsELFBinary)
	assert.Equal(t, int64(6), st.Size)
}

func TestLstatSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink("target.txt", link))

	st, err := Lstat(link)
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, st.Kind)
	assert.Equal(t, "target.txt", st.LinkTarget)
}

func TestLstatDirectory(t *testing.T) {
	dir := t.TempDir()
	st, err := Lstat(dir)
	require.NoError(t, err)
	assert.Equal(t, KindDir, st.Kind)
}

func TestLstatELFBinaryDetectsSelf(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	st, err := Lstat(exe)
	require.NoError(t, err)
	if !st.IsELFBinary {
		t.Skip("test binary is not ELF on this platform")
	}
	assert.Contains(t, []string{"ELF32", "ELF64"}, st.ELFClass)
	assert.NotEqual(t, "no machine", st.Machine)
}

func TestHardlinkKeyZeroWhenStatFails(t *testing.T) {
	var st Stats
	assert.Equal(t, HardlinkKey{}, st.Key())
}
