// Package debimport converts an existing Debian source tree's
// debian/control, debian/changelog, debian/patches/series and
// debian/copyright into the specfile XML shape plus a copyright sidecar
// (spec §4.2/§6, supplemented C11): a one-shot, one-way importer that lets a
// maintainer bootstrap a new specfile from a package that's already
// packaged the Debian way, reusing the teacher's aptly-based stanza reader.
package debimport

import (
	"fmt"
	"os"
	"strings"

	"github.com/aptly-dev/aptly/deb"
)

// ErrNoSourceParagraph is returned when debian/control's first stanza has
// no Source field.
var ErrNoSourceParagraph = fmt.Errorf("debimport: debian/control has no Source paragraph")

// SourceParagraph mirrors the fields of debian/control's first stanza that
// the specfile <source> element carries.
type SourceParagraph struct {
	Name       string
	Maintainer string
	BuildDeps  []DepAlternatives
}

// BinaryParagraph mirrors one debian/control binary-package stanza.
type BinaryParagraph struct {
	Name         string
	Architecture string
	Section      string
	Maintainer   string
	Description  string
	Depends      []DepAlternatives
}

// Dep is one dependency term, e.g. "libc6 (>= 2.15)".
type Dep struct {
	Name    string
	Op      string // "", ">=", "<=", "=", ">>", "<<"
	Version string
}

// DepAlternatives is an "a | b | c" alternation group.
type DepAlternatives []Dep

// ControlFile is the parsed form of a debian/control file.
type ControlFile struct {
	Source   SourceParagraph
	Binaries []BinaryParagraph
}

// ParseControl reads and parses a debian/control file.
func ParseControl(path string) (*ControlFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := deb.NewControlFileReader(f, false, false)

	first, err := reader.ReadStanza()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if first == nil || first["Source"] == "" {
		return nil, ErrNoSourceParagraph
	}

	cf := &ControlFile{
		Source: SourceParagraph{
			Name:       first["Source"],
			Maintainer: first["Maintainer"],
			BuildDeps:  parseDependencyField(first["Build-Depends"]),
		},
	}

	for {
		stanza, err := reader.ReadStanza()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if stanza == nil {
			break
		}
		if stanza["Package"] == "" {
			continue
		}
		cf.Binaries = append(cf.Binaries, BinaryParagraph{
			Name:         stanza["Package"],
			Architecture: stanza["Architecture"],
			Section:      stanza["Section"],
			Maintainer:   firstNonEmpty(stanza["Maintainer"], cf.Source.Maintainer),
			Description:  stanza["Description"],
			Depends:      parseDependencyField(stanza["Depends"]),
		})
	}

	return cf, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDependencyField parses a comma-separated Depends/Build-Depends field
// into alternation groups, each containing one or more "name (op version)"
// terms separated by "|". Architecture/profile qualifiers (e.g.
// "[amd64]", "<!nocheck>") are dropped: the specfile dependency model has
// no equivalent and spec.md's Non-goals exclude cross-build profile depth.
func parseDependencyField(field string) []DepAlternatives {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}

	var out []DepAlternatives
	for _, term := range strings.Split(field, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		var alt DepAlternatives
		for _, alternative := range strings.Split(term, "|") {
			dep, ok := parseOneDep(strings.TrimSpace(alternative))
			if ok {
				alt = append(alt, dep)
			}
		}
		if len(alt) > 0 {
			out = append(out, alt)
		}
	}
	return out
}

func parseOneDep(s string) (Dep, bool) {
	// Drop architecture ([amd64]) and build-profile (<!nocheck>) qualifiers.
	if idx := strings.IndexByte(s, '['); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}
	// The profile is searched for after any "(...)" constraint, so that the
	// "<<"/"<=" operators inside it are kept.
	profileFrom := 0
	if idx := strings.IndexByte(s, ')'); idx != -1 {
		profileFrom = idx
	}
	if idx := strings.IndexByte(s[profileFrom:], '<'); idx != -1 {
		s = strings.TrimSpace(s[:profileFrom+idx])
	}

	name := s
	var op, version string
	if open := strings.IndexByte(s, '('); open != -1 {
		close := strings.IndexByte(s, ')')
		if close == -1 {
			close = len(s)
		}
		name = strings.TrimSpace(s[:open])
		constraint := strings.TrimSpace(s[open+1 : close])
		for _, candidate := range []string{">=", "<=", ">>", "<<", "="} {
			if strings.HasPrefix(constraint, candidate) {
				op = candidate
				version = strings.TrimSpace(strings.TrimPrefix(constraint, candidate))
				break
			}
		}
	}
	if name == "" {
		return Dep{}, false
	}
	return Dep{Name: name, Op: op, Version: version}, true
}
