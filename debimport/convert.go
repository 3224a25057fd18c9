package debimport

import (
	"encoding/xml"
	"fmt"
)

// xmlControl mirrors the specfile package's unexported rawControl XML
// shape (spec §4.2/§6): the importer only needs to produce the same tags,
// not share the type, since specfile.Load re-parses from bytes.
type xmlControl struct {
	XMLName   xml.Name     `xml:"control"`
	Source    xmlSource    `xml:"source"`
	Packages  []xmlPackage `xml:"package"`
	Changelog xmlChangelog `xml:"changelog"`
}

type xmlSource struct {
	Name       string      `xml:"name,attr"`
	Maintainer string      `xml:"maintainer,attr"`
	Requires   []xmlDepPkg `xml:"requires>package,omitempty"`
	Patches    []xmlPatch  `xml:"patches>patch,omitempty"`
}

// xmlPatch mirrors specfile's unexported rawPatch shape (spec §4.3 Patch).
// Strip has no omitempty: "-p0" is a meaningful, explicit strip level, not
// an absent one, and rawPatch.Strip always renders its attribute too.
type xmlPatch struct {
	Src   string `xml:"src,attr"`
	Strip int    `xml:"strip,attr"`
}

type xmlDepPkg struct {
	Name    string `xml:"name,attr"`
	Op      string `xml:"op,attr,omitempty"`
	Version string `xml:"version,attr,omitempty"`
}

type xmlDepGroup struct {
	Alternatives []xmlDepPkg `xml:"package"`
}

type xmlPackage struct {
	Name         string        `xml:"name,attr"`
	Architecture string        `xml:"architecture,attr"`
	Section      string        `xml:"section,attr,omitempty"`
	Maintainer   string        `xml:"maintainer,attr,omitempty"`
	Description  string        `xml:"description"`
	Requires     []xmlDepGroup `xml:"requires>group,omitempty"`
}

type xmlChangelog struct {
	Releases []xmlRelease `xml:"release"`
}

type xmlRelease struct {
	Version    string `xml:"version,attr"`
	Revision   string `xml:"revision,attr,omitempty"`
	Epoch      string `xml:"epoch,attr,omitempty"`
	Maintainer string `xml:"maintainer,attr"`
	Email      string `xml:"email,attr"`
	Date       string `xml:"date,attr"`
}

// Import reads controlPath/changelogPath and renders a new specfile XML
// document (spec §6 input shape). The result still needs a <sources> block
// filled in by hand — the importer can only recover what debian/control and
// debian/changelog actually describe, not the upstream tarball's URL/SHA256.
func Import(controlPath, changelogPath string) ([]byte, error) {
	doc, err := buildDocument(controlPath, changelogPath)
	if err != nil {
		return nil, err
	}
	return renderDocument(doc)
}

// ImportOptions extends Import with the two optional one-shot-migration
// conversions the original deb2bolt/deb2bondi importer also performs: a
// quilt patch series (spec §3 supplemented features) and debian/copyright.
type ImportOptions struct {
	ControlPath     string
	ChangelogPath   string
	PatchSeriesPath string // debian/patches/series, optional
	CopyrightPath   string // debian/copyright, optional
	DestDir         string // patches are copied to DestDir/patches
}

// ImportResult is the output of ImportTree: the rendered specfile plus the
// optional copyright sidecar (debian/copyright has no equivalent specfile
// element, so it is rendered as its own standalone document rather than
// folded into control.xml).
type ImportResult struct {
	Specfile  []byte
	Copyright []byte // nil when opts.CopyrightPath is empty
}

// ImportTree runs the full one-shot conversion: debian/control,
// debian/changelog, an optional debian/patches/series, and an optional
// debian/copyright, grounded on deb2bolt/converter.py's top-level driver,
// which calls all of these in turn for one Debian source tree.
func ImportTree(opts ImportOptions) (ImportResult, error) {
	doc, err := buildDocument(opts.ControlPath, opts.ChangelogPath)
	if err != nil {
		return ImportResult{}, err
	}

	if opts.PatchSeriesPath != "" {
		entries, err := CopyPatches(opts.PatchSeriesPath, opts.DestDir)
		if err != nil {
			return ImportResult{}, err
		}
		for _, e := range entries {
			doc.Source.Patches = append(doc.Source.Patches, xmlPatch{Src: e.Filename, Strip: e.Strip})
		}
	}

	specfile, err := renderDocument(doc)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{Specfile: specfile}
	if opts.CopyrightPath != "" {
		copyright, err := ImportCopyright(opts.CopyrightPath)
		if err != nil {
			return ImportResult{}, fmt.Errorf("debimport: %w", err)
		}
		result.Copyright = copyright
	}
	return result, nil
}

// buildDocument parses debian/control and debian/changelog into the xmlControl
// shape shared by Import and ImportTree.
func buildDocument(controlPath, changelogPath string) (*xmlControl, error) {
	cf, err := ParseControl(controlPath)
	if err != nil {
		return nil, fmt.Errorf("debimport: %w", err)
	}
	entry, err := ParseChangelogHead(changelogPath)
	if err != nil {
		return nil, fmt.Errorf("debimport: %w", err)
	}

	doc := &xmlControl{
		Source: xmlSource{
			Name:       cf.Source.Name,
			Maintainer: cf.Source.Maintainer,
			Requires:   toXMLDepPkgs(cf.Source.BuildDeps),
		},
		Changelog: xmlChangelog{
			Releases: []xmlRelease{{
				Version:    entry.Upstream,
				Revision:   entry.Revision,
				Epoch:      entry.Epoch,
				Maintainer: entry.Maintainer,
				Email:      entry.Email,
				Date:       entry.Date,
			}},
		},
	}

	for _, bin := range cf.Binaries {
		doc.Packages = append(doc.Packages, xmlPackage{
			Name:         bin.Name,
			Architecture: defaultArch(bin.Architecture),
			Section:      bin.Section,
			Maintainer:   bin.Maintainer,
			Description:  bin.Description,
			Requires:     toXMLDepGroups(bin.Depends),
		})
	}

	return doc, nil
}

func renderDocument(doc *xmlControl) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("debimport: rendering specfile: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// defaultArch returns debian/control's Architecture value unchanged
// ("any"/"all" included), or "any" when the field is empty.
func defaultArch(arch string) string {
	if arch == "" {
		return "any"
	}
	return arch
}

func toXMLDepPkgs(alts []DepAlternatives) []xmlDepPkg {
	var out []xmlDepPkg
	for _, a := range alts {
		// Build-Depends has no alternation concept in the specfile's
		// flat <source><requires> list, so only the first alternative of
		// each group is kept.
		if len(a) == 0 {
			continue
		}
		out = append(out, depToXML(a[0]))
	}
	return out
}

func toXMLDepGroups(alts []DepAlternatives) []xmlDepGroup {
	var out []xmlDepGroup
	for _, a := range alts {
		if len(a) == 0 {
			continue
		}
		group := xmlDepGroup{}
		for _, d := range a {
			group.Alternatives = append(group.Alternatives, depToXML(d))
		}
		out = append(out, group)
	}
	return out
}

func depToXML(d Dep) xmlDepPkg {
	return xmlDepPkg{Name: d.Name, Op: d.Op, Version: d.Version}
}
