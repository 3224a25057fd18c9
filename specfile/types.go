// Package specfile loads, validates and preprocesses the XML build
// specification that drives the rest of the pipeline (spec §4.2, C5).
package specfile

import (
	"encoding/xml"
	"time"

	"github.com/boltpack/boltpack/version"
)

// Document is the parsed, pruned form of a <control> specfile: exactly one
// SourcePackage and zero or more BinaryPackages, as named by spec §3/§6.
type Document struct {
	Source     Source
	Packages   []Package
	Changelog  Changelog
	TrueTerms  map[string]bool // build terms this document was pruned against
}

// rawControl is the literal XML shape of the specfile root element, decoded
// before pruning. Everything carries an optional `if` attribute per §4.2(b).
type rawControl struct {
	XMLName  xml.Name    `xml:"control"`
	Source   rawSource   `xml:"source"`
	Packages []rawPkg    `xml:"package"`
	Changelog rawChangelog `xml:"changelog"`
}

type rawSource struct {
	If         string        `xml:"if,attr"`
	Name       string        `xml:"name,attr"`
	Repo       string        `xml:"repo,attr"`
	Maintainer string        `xml:"maintainer,attr"`
	Sources    []rawSrcFile  `xml:"sources>source"`
	Patches    []rawPatch    `xml:"patches>patch"`
	Rules      rawRules      `xml:"rules"`
	Requires   []rawDepPkg   `xml:"requires>package"`
}

type rawSrcFile struct {
	If      string `xml:"if,attr"`
	Src     string `xml:"src,attr"`
	URL     string `xml:"url,attr"`
	Subdir  string `xml:"subdir,attr"`
	SHA256  string `xml:"sha256,attr"`
}

type rawPatch struct {
	If     string `xml:"if,attr"`
	Src    string `xml:"src,attr"`
	Subdir string `xml:"subdir,attr"`
	Strip  int    `xml:"strip,attr"`
}

type rawRules struct {
	Prepare string `xml:"prepare"`
	Build   string `xml:"build"`
	Install string `xml:"install"`
	Clean   string `xml:"clean"`
}

type rawDepPkg struct {
	If           string `xml:"if,attr"`
	Name         string `xml:"name,attr"`
	Op           string `xml:"op,attr"`
	Version      string `xml:"version,attr"`
	SupportedOn  string `xml:"supported-on,attr"`
}

type rawPkg struct {
	If                string        `xml:"if,attr"`
	Name              string        `xml:"name,attr"`
	Architecture      string        `xml:"architecture,attr"`
	Section           string        `xml:"section,attr"`
	Maintainer        string        `xml:"maintainer,attr"`
	Description       string        `xml:"description"`
	ContentSubdir     string        `xml:"content-subdir,attr"`
	CollectPyCache    bool          `xml:"collect-py-cache-files,attr"`
	Requires          []rawDepGroup `xml:"requires>group"`
	Provides          []rawDepGroup `xml:"provides>group"`
	Conflicts         []rawDepGroup `xml:"conflicts>group"`
	Replaces          []rawDepGroup `xml:"replaces>group"`
	Contents          rawContents   `xml:"contents"`
	Scripts           rawScripts    `xml:"scripts"`
}

type rawDepGroup struct {
	Alternatives []rawDepPkg `xml:"package"`
}

type rawContents struct {
	Files []rawFile `xml:"file"`
	Dirs  []rawDir  `xml:"dir"`
}

type rawFile struct {
	If       string `xml:"if,attr"`
	Src      string `xml:"src,attr"`
	Mode     string `xml:"mode,attr"`
	Owner    string `xml:"owner,attr"`
	Group    string `xml:"group,attr"`
	Conffile string `xml:"conffile,attr"` // "true" | "false" | "" (unset)
}

type rawDir struct {
	If    string `xml:"if,attr"`
	Src   string `xml:"src,attr"`
	Mode  string `xml:"mode,attr"`
	Owner string `xml:"owner,attr"`
	Group string `xml:"group,attr"`
}

type rawScripts struct {
	Preinst  string `xml:"preinst"`
	Postinst string `xml:"postinst"`
	Prerm    string `xml:"prerm"`
	Postrm   string `xml:"postrm"`
}

type rawChangelog struct {
	Releases []rawRelease `xml:"release"`
}

type rawRelease struct {
	Version    string `xml:"version,attr"`
	Revision   string `xml:"revision,attr"`
	Epoch      string `xml:"epoch,attr"`
	Maintainer string `xml:"maintainer,attr"`
	Email      string `xml:"email,attr"`
	Date       string `xml:"date,attr"`
}

// Source is the pruned, typed form of rawSource (spec §3 SourcePackage).
type Source struct {
	Name       string
	Repo       string
	Maintainer string
	Sources    []SourceFile
	Patches    []Patch
	Rules      Rules
	Requires   version.DependencyList

	// Skip holds the original `if` expression when it evaluated to false;
	// the source node itself is never dropped (spec §4.2(c)).
	Skip    string
	Skipped bool
}

// SourceFile is one upstream archive or diff referenced by the source
// package (spec §4.3 `sources`).
type SourceFile struct {
	Filename string
	URL      string
	Subdir   string
	SHA256   string
}

// Patch is one quilt-style patch series entry (spec §4.3 `patch`).
type Patch struct {
	Filename string
	Subdir   string
	Strip    int
}

// Rules holds the four shell-script build phases (spec §4.3 `run_action`).
type Rules struct {
	Prepare string
	Build   string
	Install string
	Clean   string
}

// Package is the pruned, typed form of a binary package node (spec §3
// BinaryPackage).
type Package struct {
	Name           string
	Architecture   string
	Section        string
	Maintainer     string
	Description    string
	ContentSubdir  string
	CollectPyCache bool

	Requires  version.DependencyList
	Provides  version.DependencyList
	Conflicts version.DependencyList
	Replaces  version.DependencyList

	Contents ContentSpec
	Scripts  MaintainerScripts
}

// ContentSpec is the pre-expansion declarative content list (spec §4.5
// input), kept here for hand-off to package content.Expand.
type ContentSpec struct {
	Files []FileDecl
	Dirs  []DirDecl
}

// FileDecl is one `<file>` content declaration.
type FileDecl struct {
	Src      string
	Mode     string
	Owner    string
	Group    string
	Conffile *bool
}

// DirDecl is one `<dir>` content declaration.
type DirDecl struct {
	Src   string
	Mode  string
	Owner string
	Group string
}

// MaintainerScripts holds the four maintainer script bodies (spec §4.8).
type MaintainerScripts struct {
	Preinst  string
	Postinst string
	Prerm    string
	Postrm   string
}

// Changelog is the parsed `<changelog>` block; the first release is the
// current build-wide version (spec §6).
type Changelog struct {
	Releases []Release
}

// Release is one `<release>` entry.
type Release struct {
	Version    version.Version
	Maintainer string
	Email      string
	Date       time.Time
}
