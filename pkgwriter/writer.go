// Package pkgwriter assembles binary package archives (spec §4.8, C9): it
// takes an expanded, debug-split, dependency-resolved content list and
// writes the deterministic `.bolt` ar(SVR4) container of `debian-binary`,
// `control.tar.gz` and `data.tar.gz`, following the teacher's use of
// aptly's deb.Stanza for canonical control-file formatting and the sibling
// etnz-apt-repo-builder's ar library for the container itself
// (SPEC_FULL.md §2).
package pkgwriter

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/aptly-dev/aptly/deb"
	"github.com/boltpack/boltpack/archive"
	"github.com/boltpack/boltpack/content"
	"github.com/boltpack/boltpack/filemeta"
	"github.com/boltpack/boltpack/specfile"
	"github.com/boltpack/boltpack/version"
)

// Input is everything pkgwriter needs to assemble one binary package.
type Input struct {
	Package     specfile.Package
	SourceName  string
	Version     version.Version
	Entries     []content.Entry // post content-expansion, post debug-split, post shlib-resolve
	BaseDir     string          // staging directory Entries' TargetPath is rooted under
	Requires    version.DependencyList
	ModTime     time.Time // shared across every member of this package (spec §4.8 determinism)
	BuildPrefix string    // e.g. "BUILD", used in maintainer script headers
	HostType    string
}

// Output is one produced .bolt archive.
type Output struct {
	Filename string
	Data     []byte
}

// Build assembles the ar container for in (spec §4.8's five-step order is
// the caller's responsibility: Build only performs step (e), writing the
// archive from an already-resolved content list).
func Build(in Input) (Output, error) {
	entries := append([]content.Entry(nil), in.Entries...)
	sortContentEntries(entries)

	installedSize := installedSizeKiB(entries)

	controlBuf, err := writeControl(in, installedSize)
	if err != nil {
		return Output{}, err
	}

	conffilesBuf := writeConffiles(entries)

	controlMembers := []archive.ArMember{}
	var controlTar bytes.Buffer
	if err := writeControlTar(&controlTar, in, controlBuf, conffilesBuf); err != nil {
		return Output{}, err
	}

	var dataTar bytes.Buffer
	if err := writeDataTar(&dataTar, entries, in.BaseDir, in.ModTime); err != nil {
		return Output{}, err
	}

	var ar bytes.Buffer
	controlMembers = append(controlMembers,
		archive.ArMember{Name: "debian-binary", Mode: 0644, ModTime: in.ModTime, Data: []byte("2.0\n")},
		archive.ArMember{Name: "control.tar.gz", Mode: 0644, ModTime: in.ModTime, Data: controlTar.Bytes()},
		archive.ArMember{Name: "data.tar.gz", Mode: 0644, ModTime: in.ModTime, Data: dataTar.Bytes()},
	)
	if err := archive.WriteAr(&ar, controlMembers); err != nil {
		return Output{}, err
	}

	return Output{
		Filename: filename(in.Package.Name, in.Version, in.Package.Architecture),
		Data:     ar.Bytes(),
	}, nil
}

// filename implements spec §4.8's naming rule:
// <name>_<upstream>-<revision>_<architecture-with-underscore-to-dash>.bolt.
func filename(name string, v version.Version, arch string) string {
	rev := v.Revision
	if rev == "" {
		rev = "0"
	}
	return fmt.Sprintf("%s_%s-%s_%s.bolt", name, v.Upstream, rev, strings.ReplaceAll(arch, "_", "-"))
}

// installedSizeKiB implements spec §3's Installed-Size law (P6):
// ceil((sum(size for regular+symlink) + 1024*count(other)) / 1024).
func installedSizeKiB(entries []content.Entry) int64 {
	var bytesTotal int64
	var otherCount int64
	for _, e := range entries {
		switch e.Kind {
		case filemeta.KindFile, filemeta.KindSymlink:
			bytesTotal += e.Stats.Size
		default:
			otherCount++
		}
	}
	total := bytesTotal + 1024*otherCount
	return int64(math.Ceil(float64(total) / 1024))
}

// scriptHeaderTemplate is the fixed maintainer-script header (spec §4.8):
// exports <BUILD_PREFIX>_INSTALL_PREFIX/<BUILD_PREFIX>_HOST_TYPE and a
// sanitized PATH before the script body runs.
var scriptHeaderTemplate = template.Must(template.New("script-header").Funcs(sprig.TxtFuncMap()).Parse(
	`#!/bin/sh
export {{.Prefix}}_INSTALL_PREFIX="{{.InstallPrefix}}"
export {{.Prefix}}_HOST_TYPE="{{.HostType}}"
export PATH="/usr/bin:/bin:/usr/sbin:/sbin"

{{.Body | trimSuffix "\n"}}
`))

func renderScript(prefix, installPrefix, hostType, body string) (string, error) {
	var buf bytes.Buffer
	err := scriptHeaderTemplate.Execute(&buf, map[string]string{
		"Prefix":        prefix,
		"InstallPrefix": installPrefix,
		"HostType":      hostType,
		"Body":          body,
	})
	return buf.String(), err
}

// writeControl builds the control stanza in the fixed field order named by
// spec §4.8: Package, Version, Source, Architecture, Maintainer,
// Installed-Size, Depends, Provides, Conflicts, Replaces, Section,
// Description.
func writeControl(in Input, installedSizeKiB int64) ([]byte, error) {
	stanza := make(deb.Stanza)
	stanza["Package"] = in.Package.Name
	stanza["Version"] = in.Version.String()
	if in.SourceName != "" && in.SourceName != in.Package.Name {
		stanza["Source"] = in.SourceName
	}
	stanza["Architecture"] = in.Package.Architecture
	stanza["Maintainer"] = in.Package.Maintainer
	stanza["Installed-Size"] = fmt.Sprintf("%d", installedSizeKiB)
	if deps := in.Requires.String(); deps != "" {
		stanza["Depends"] = deps
	}
	if provides := in.Package.Provides.String(); provides != "" {
		stanza["Provides"] = provides
	}
	if conflicts := in.Package.Conflicts.String(); conflicts != "" {
		stanza["Conflicts"] = conflicts
	}
	if replaces := in.Package.Replaces.String(); replaces != "" {
		stanza["Replaces"] = replaces
	}
	stanza["Section"] = in.Package.Section
	stanza["Description"] = formatDescription(in.Package.Description)

	var buf bytes.Buffer
	if err := stanza.WriteTo(&buf, false, false, false); err != nil {
		return nil, fmt.Errorf("pkgwriter: writing control: %w", err)
	}
	return buf.Bytes(), nil
}

// formatDescription applies the multi-line leading-space continuation rule
// (spec §4.8).
func formatDescription(desc string) string {
	lines := strings.Split(strings.TrimRight(desc, "\n"), "\n")
	if len(lines) <= 1 {
		return desc
	}
	out := lines[0]
	for _, l := range lines[1:] {
		if l == "" {
			out += "\n ."
		} else {
			out += "\n " + l
		}
	}
	return out
}

// writeConffiles returns the newline-separated conffiles member body (spec
// §4.8), or nil when there are none.
func writeConffiles(entries []content.Entry) []byte {
	var lines []string
	for _, e := range entries {
		if e.IsConffile() {
			lines = append(lines, e.TargetPath)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func sortContentEntries(entries []content.Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].TargetPath < entries[j].TargetPath })
}
