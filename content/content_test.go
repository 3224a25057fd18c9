package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boltpack/boltpack/specfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandGlob(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "usr", "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "usr", "bin", "foo"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "usr", "bin", "bar"), []byte("yy"), 0644))

	spec := specfile.ContentSpec{
		Files: []specfile.FileDecl{
			{Src: "/usr/bin/*", Mode: "0755"},
		},
	}

	entries, err := Expand(spec, Options{BaseDir: base})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.TargetPath)
	}
	assert.Equal(t, []string{"/usr", "/usr/bin", "/usr/bin/bar", "/usr/bin/foo"}, paths)

	for _, e := range entries {
		assert.Equal(t, "root", e.Owner)
		assert.Equal(t, "root", e.Group)
		if e.TargetPath == "/usr/bin/foo" || e.TargetPath == "/usr/bin/bar" {
			require.NotNil(t, e.Mode)
			assert.Equal(t, uint32(0755), *e.Mode)
		}
	}
}

func TestExpandBraces(t *testing.T) {
	got := expandBraces("/usr/lib/{foo,bar}.so")
	assert.ElementsMatch(t, []string{"/usr/lib/foo.so", "/usr/lib/bar.so"}, got)

	assert.Equal(t, []string{"/usr/bin/x"}, expandBraces("/usr/bin/x"))
}

func TestFileOverridesDir(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "etc"), 0755))

	spec := specfile.ContentSpec{
		Dirs:  []specfile.DirDecl{{Src: "/etc"}},
		Files: []specfile.FileDecl{{Src: "/etc"}},
	}

	entries, err := Expand(spec, Options{BaseDir: base})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestToolsArchitectureStripsEtcAndVar(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "etc"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "opt"), 0755))

	spec := specfile.ContentSpec{
		Dirs: []specfile.DirDecl{{Src: "/etc"}, {Src: "/opt"}},
	}

	entries, err := Expand(spec, Options{BaseDir: base, Architecture: "tools"})
	require.NoError(t, err)

	for _, e := range entries {
		assert.NotContains(t, e.TargetPath, "/etc")
	}
	assert.Len(t, entries, 1)
	assert.Equal(t, "/opt", entries[0].TargetPath)
}

func TestConffileDefaultsUnderEtc(t *testing.T) {
	e := Entry{TargetPath: "/etc/foo.conf", Kind: 1}
	assert.True(t, e.IsConffile())

	explicit := false
	e2 := Entry{TargetPath: "/etc/foo.conf", Kind: 1, Conffile: &explicit}
	assert.False(t, e2.IsConffile())
}
