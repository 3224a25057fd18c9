package specfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureControl = `<control>
  <source name="libfoo" repo="main" maintainer="Jane Dev &lt;jane@example.com&gt;">
    <sources>
      <source src="libfoo-1.2.3.tar.gz" url="https://example.org/libfoo-1.2.3.tar.gz" sha256="abc123"/>
      <source src="debug-only.tar.gz" url="https://example.org/d.tar.gz" sha256="def456" if="debug"/>
    </sources>
    <patches>
      <patch src="0001-fix.patch" strip="1"/>
    </patches>
    <rules>
      <prepare>./configure</prepare>
      <build>make %j</build>
      <install>make install DESTDIR=%destdir</install>
      <clean>make clean</clean>
    </rules>
    <requires>
      <package name="libbar-dev" op=">=" version="2.0"/>
    </requires>
  </source>
  <package name="libfoo1" architecture="any" section="libs" maintainer="Jane Dev &lt;jane@example.com&gt;">
    <description>The libfoo runtime library</description>
    <requires>
      <group>
        <package name="libbar1" op=">=" version="2.0"/>
      </group>
    </requires>
    <contents>
      <file src="usr/lib/libfoo.so.1" mode="0644" owner="root" group="root"/>
      <dir src="usr/lib" mode="0755" owner="root" group="root"/>
    </contents>
  </package>
  <package name="libfoo-dev" architecture="any" section="libdevel" maintainer="Jane Dev &lt;jane@example.com&gt;" if="debug">
    <description>Development files for libfoo</description>
    <contents>
      <file src="usr/include/foo.h" mode="0644" owner="root" group="root"/>
    </contents>
  </package>
  <changelog>
    <release version="1.2.3" revision="1" maintainer="Jane Dev" email="jane@example.com" date="Mon, 12 Jan 2026 10:00:00 +0000"/>
  </changelog>
</control>
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "control.xml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureControl), 0o644))
	return path
}

func TestLoadBasicDocument(t *testing.T) {
	path := writeFixture(t)

	doc, err := Load(path, LoadOptions{
		TrueTerms: map[string]bool{"debug": false},
		Machine:   "amd64",
	})
	require.NoError(t, err)

	assert.Equal(t, "libfoo", doc.Source.Name)
	require.Len(t, doc.Source.Sources, 1, "the debug-gated source file is pruned out")
	assert.Equal(t, "libfoo-1.2.3.tar.gz", doc.Source.Sources[0].Filename)
	require.Len(t, doc.Source.Patches, 1)
	assert.Equal(t, 1, doc.Source.Patches[0].Strip)
	assert.Equal(t, "make %j", doc.Source.Rules.Build)
	require.Equal(t, 1, doc.Source.Requires.Len())

	// the debug-gated libfoo-dev package is dropped entirely
	require.Len(t, doc.Packages, 1)
	pkg := doc.Packages[0]
	assert.Equal(t, "libfoo1", pkg.Name)
	require.Equal(t, 1, pkg.Requires.Len())
	assert.Equal(t, "libbar1", pkg.Requires.Groups()[0][0].Name)
	require.Len(t, pkg.Contents.Files, 1)
	require.Len(t, pkg.Contents.Dirs, 1)

	require.Len(t, doc.Changelog.Releases, 1)
	assert.Equal(t, "1.2.3-1", doc.Changelog.Releases[0].Version.String())
}

func TestLoadEnableOverridesIfFalsePackage(t *testing.T) {
	path := writeFixture(t)

	doc, err := Load(path, LoadOptions{
		TrueTerms: map[string]bool{"debug": false},
		Machine:   "amd64",
		Enable:    []string{"libfoo-dev"},
	})
	require.NoError(t, err)
	require.Len(t, doc.Packages, 2, "--enable forces the if=debug package in despite debug=false")
}

func TestLoadRejectsMalformedName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.xml")
	require.NoError(t, os.WriteFile(path, []byte(
		`<control><source name="Invalid Name!"></source></control>`), 0o644))

	_, err := Load(path, LoadOptions{})
	require.ErrorIs(t, err, ErrSpecSyntax)
}
