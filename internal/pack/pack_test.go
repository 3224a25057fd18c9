package pack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/boltpack/boltpack/internal/app"
	"github.com/boltpack/boltpack/internal/config"
	"github.com/boltpack/boltpack/specfile"
	"github.com/boltpack/boltpack/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skippedFixture = `<control>
  <source name="onlydebug" repo="main" maintainer="Jane Dev &lt;jane@example.com&gt;" if="debug-build">
    <sources>
      <source src="onlydebug-1.0.tar.gz" url="https://example.org/onlydebug-1.0.tar.gz" sha256="abc123"/>
    </sources>
    <rules>
      <build>make</build>
    </rules>
  </source>
  <package name="onlydebug" architecture="any" section="libs" maintainer="Jane Dev &lt;jane@example.com&gt;">
    <description>never built on this target</description>
    <contents>
      <file src="usr/lib/onlydebug.so" mode="0644" owner="root" group="root"/>
    </contents>
  </package>
  <changelog>
    <release version="1.0" revision="1" maintainer="Jane Dev" email="jane@example.com" date="Mon, 12 Jan 2026 10:00:00 +0000"/>
  </changelog>
</control>
`

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Directories: config.DirectoriesConfig{
			Root:    root,
			Cache:   "cache",
			Trusted: "trusted",
			Staging: "staging",
			Pool:    "pool",
			Archive: "archive",
		},
		BuildFor: "target",
	}
	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(application.Shutdown)
	return application
}

func writeSpecfile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "control.xml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_SkipBuild(t *testing.T) {
	application := newTestApp(t)
	specPath := writeSpecfile(t, skippedFixture)

	_, err := Run(context.Background(), application, specPath, Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSkipBuild)
}

func TestRun_MissingChangelog(t *testing.T) {
	application := newTestApp(t)
	specPath := writeSpecfile(t, `<control>
  <source name="nodate" repo="main" maintainer="Jane Dev &lt;jane@example.com&gt;">
    <sources>
      <source src="nodate-1.0.tar.gz" url="https://example.org/nodate-1.0.tar.gz" sha256="abc123"/>
    </sources>
  </source>
</control>
`)

	_, err := Run(context.Background(), application, specPath, Options{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipBuild)
}

func TestPrepareStagingDirs(t *testing.T) {
	application := newTestApp(t)

	paths, err := prepareStagingDirs(application, "libfoo", "1.2.3-1")
	require.NoError(t, err)

	for _, dir := range []string{paths.SourceDir, paths.BuildDir, paths.InstallDir, paths.WorkDir} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
}

func TestMergeRequires(t *testing.T) {
	declared := version.NewDependencyList([]version.AlternativeGroup{
		{{Name: "libc6", Constraint: &version.Constraint{Op: version.OpGreaterOrEqual, Version: mustParseVersion(t, "2.35")}}},
	})
	var resolved version.DependencyList
	resolved.Add(version.Dependency{Name: "libssl3"})

	merged := mergeRequires(declared, resolved)

	assert.Equal(t, "libc6 (>= 2.35), libssl3", merged.String())
}

func TestDebugSiblingPackage(t *testing.T) {
	pkg := specfile.Package{
		Name:         "libfoo1",
		Architecture: "any",
		Maintainer:   "Jane Dev <jane@example.com>",
	}

	dbg := debugSiblingPackage(pkg)

	assert.Equal(t, "libfoo1-dbg", dbg.Name)
	assert.Equal(t, "any", dbg.Architecture)
	assert.Equal(t, "debug", dbg.Section)
	assert.Equal(t, "debug symbols for libfoo1", dbg.Description)
}

func mustParseVersion(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	require.NoError(t, err)
	return v
}
