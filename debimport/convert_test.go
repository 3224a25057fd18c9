package debimport

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleControl = `Source: hello
Maintainer: Jane Maintainer <jane@example.com>
Build-Depends: debhelper-compat (= 13), libfoo-dev (>= 1.2) | libfoo-legacy-dev

Package: hello
Architecture: any
Section: utils
Depends: libc6 (>= 2.15), ${shlibs:Depends}
Description: friendly greeting program
 Prints "hello, world" to standard output.

Package: hello-doc
Architecture: all
Section: doc
Description: documentation for hello
`

const sampleChangelog = `hello (2.10-1) unstable; urgency=medium

  * New upstream release.

 -- Jane Maintainer <jane@example.com>  Wed, 01 Jul 2026 10:00:00 +0000

hello (2.9-3) unstable; urgency=low

  * Earlier release.

 -- Jane Maintainer <jane@example.com>  Mon, 01 Jun 2026 09:00:00 +0000
`

func writeSample(t *testing.T) (controlPath, changelogPath string) {
	t.Helper()
	dir := t.TempDir()
	controlPath = filepath.Join(dir, "control")
	changelogPath = filepath.Join(dir, "changelog")
	require.NoError(t, os.WriteFile(controlPath, []byte(sampleControl), 0644))
	require.NoError(t, os.WriteFile(changelogPath, []byte(sampleChangelog), 0644))
	return controlPath, changelogPath
}

func TestParseControlSourceAndBinaries(t *testing.T) {
	controlPath, _ := writeSample(t)

	cf, err := ParseControl(controlPath)
	require.NoError(t, err)

	assert.Equal(t, "hello", cf.Source.Name)
	assert.Equal(t, "Jane Maintainer <jane@example.com>", cf.Source.Maintainer)
	require.Len(t, cf.Source.BuildDeps, 2)
	assert.Equal(t, "debhelper-compat", cf.Source.BuildDeps[0][0].Name)
	assert.Equal(t, "=", cf.Source.BuildDeps[0][0].Op)
	assert.Equal(t, "13", cf.Source.BuildDeps[0][0].Version)
	require.Len(t, cf.Source.BuildDeps[1], 2)
	assert.Equal(t, "libfoo-dev", cf.Source.BuildDeps[1][0].Name)
	assert.Equal(t, "libfoo-legacy-dev", cf.Source.BuildDeps[1][1].Name)

	require.Len(t, cf.Binaries, 2)
	assert.Equal(t, "hello", cf.Binaries[0].Name)
	assert.Equal(t, "any", cf.Binaries[0].Architecture)
	require.Len(t, cf.Binaries[0].Depends, 2)
	assert.Equal(t, "libc6", cf.Binaries[0].Depends[0][0].Name)
	assert.Equal(t, ">=", cf.Binaries[0].Depends[0][0].Op)
	assert.Equal(t, "2.15", cf.Binaries[0].Depends[0][0].Version)

	assert.Equal(t, "hello-doc", cf.Binaries[1].Name)
	assert.Equal(t, "all", cf.Binaries[1].Architecture)
}

func TestParseChangelogHeadTakesFirstEntry(t *testing.T) {
	_, changelogPath := writeSample(t)

	entry, err := ParseChangelogHead(changelogPath)
	require.NoError(t, err)

	assert.Equal(t, "hello", entry.Source)
	assert.Equal(t, "2.10", entry.Upstream)
	assert.Equal(t, "1", entry.Revision)
	assert.Equal(t, "", entry.Epoch)
	assert.Equal(t, "Jane Maintainer", entry.Maintainer)
	assert.Equal(t, "jane@example.com", entry.Email)
	assert.Equal(t, "Wed, 01 Jul 2026 10:00:00 +0000", entry.Date)
}

func TestImportProducesParseableSpecfileXML(t *testing.T) {
	controlPath, changelogPath := writeSample(t)

	out, err := Import(controlPath, changelogPath)
	require.NoError(t, err)

	var doc xmlControl
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "hello", doc.Source.Name)
	require.Len(t, doc.Packages, 2)
	assert.Equal(t, "hello", doc.Packages[0].Name)
	require.Len(t, doc.Changelog.Releases, 1)
	assert.Equal(t, "2.10", doc.Changelog.Releases[0].Version)
	assert.Equal(t, "1", doc.Changelog.Releases[0].Revision)
}
