package debimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDEP5Copyright = `Format: https://www.debian.org/doc/packaging-manuals/copyright-format/1.0/
Upstream-Name: hello
Source: https://example.org/hello

Files: *
Copyright: 2020 Jane Dev <jane@example.com>
License: MIT

Files: debian/*
Copyright: 2020 Debian Packager <pkg@example.com>
License: MIT

License: MIT
 Permission is hereby granted, free of charge, to any person obtaining a
 copy of this software.
 .
 THE SOFTWARE IS PROVIDED "AS IS".
`

const freeformCopyright = `This program is in the public domain.
No rights reserved.
`

func TestParseCopyrightDEP5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copyright")
	require.NoError(t, os.WriteFile(path, []byte(sampleDEP5Copyright), 0644))

	blocks, licenses, err := ParseCopyright(path)
	require.NoError(t, err)

	// The "Files: debian/*" paragraph has every entry filtered out (none
	// of its names survive the debian/-prefix filter) and is dropped
	// entirely, rather than folded into the license table.
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"*"}, blocks[0].Files)
	assert.Equal(t, "MIT", blocks[0].License)
	assert.Contains(t, blocks[0].Copyright, "Jane Dev")

	require.Contains(t, licenses, "MIT")
	assert.Contains(t, licenses["MIT"], "Permission is hereby granted")
}

func TestParseCopyrightFreeform(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copyright")
	require.NoError(t, os.WriteFile(path, []byte(freeformCopyright), 0644))

	blocks, licenses, err := ParseCopyright(path)
	require.NoError(t, err)

	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"*"}, blocks[0].Files)
	assert.Equal(t, "custom", blocks[0].License)
	assert.Contains(t, blocks[0].LicenseText, "public domain")
	assert.Empty(t, licenses)
}

func TestRenderCopyrightXML(t *testing.T) {
	blocks := []CopyrightBlock{{Files: []string{"*"}, License: "MIT", Copyright: "2020 Jane Dev"}}
	licenses := map[string]string{"MIT": "Permission granted.\n"}

	out := RenderCopyrightXML(blocks, licenses)

	assert.Contains(t, string(out), `<files license="MIT">`)
	assert.Contains(t, string(out), `<file src="*"/>`)
	assert.Contains(t, string(out), "2020 Jane Dev")
	assert.Contains(t, string(out), `<license handle="MIT">`)
}

func TestImportTreeWithPatchesAndCopyright(t *testing.T) {
	controlPath, changelogPath := writeSample(t)
	seriesPath := writeSeries(t)

	copyrightDir := t.TempDir()
	copyrightPath := filepath.Join(copyrightDir, "copyright")
	require.NoError(t, os.WriteFile(copyrightPath, []byte(freeformCopyright), 0644))

	destDir := t.TempDir()

	result, err := ImportTree(ImportOptions{
		ControlPath:     controlPath,
		ChangelogPath:   changelogPath,
		PatchSeriesPath: seriesPath,
		CopyrightPath:   copyrightPath,
		DestDir:         destDir,
	})
	require.NoError(t, err)

	assert.Contains(t, string(result.Specfile), `<patch src="fix-build.patch"`)
	assert.Contains(t, string(result.Specfile), `<patch src="subdir/rename-header.patch" strip="0"`)
	require.NoError(t, err)
	assert.Contains(t, string(result.Copyright), "public domain")

	_, statErr := os.Stat(filepath.Join(destDir, "patches", "fix-build.patch"))
	require.NoError(t, statErr)
}
