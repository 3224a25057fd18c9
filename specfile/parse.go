package specfile

import (
	"encoding/xml"
	"fmt"

	"github.com/boltpack/boltpack/version"
)

// LoadOptions configures a specfile load+preprocess pass (spec §4.2).
type LoadOptions struct {
	TrueTerms map[string]bool // build terms evaluated against `if` expressions
	Machine   string          // target machine for `supported-on` filtering
	Enable    []string        // force-enable named binary packages
	Disable   []string        // force-disable named binary packages
}

// Load reads path (inlining any xi:include fragments), validates attribute
// formats, and runs the prune pass, returning the pruned Document.
func Load(path string, opts LoadOptions) (*Document, error) {
	data, err := resolveIncludes(path, map[string]bool{})
	if err != nil {
		return nil, err
	}

	var raw rawControl
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecSyntax, err)
	}

	o := pruneOptions{
		TrueTerms: opts.TrueTerms,
		Machine:   opts.Machine,
		Enable:    toSet(opts.Enable),
		Disable:   toSet(opts.Disable),
	}
	if o.TrueTerms == nil {
		o.TrueTerms = map[string]bool{}
	}

	return prune(&raw, o)
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

func prune(raw *rawControl, o pruneOptions) (*Document, error) {
	doc := &Document{TrueTerms: o.TrueTerms}

	src, err := pruneSource(&raw.Source, o)
	if err != nil {
		return nil, err
	}
	doc.Source = *src

	for _, p := range raw.Packages {
		if err := validateName("binary package", p.Name); err != nil {
			return nil, err
		}
		ok, err := o.packageEnabled(p.Name, p.If)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // binary package nodes with if=false are removed wholesale
		}

		pkg, err := prunePackage(&p, o)
		if err != nil {
			return nil, err
		}
		doc.Packages = append(doc.Packages, *pkg)
	}

	doc.Changelog, err = pruneChangelog(&raw.Changelog)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func pruneSource(raw *rawSource, o pruneOptions) (*Source, error) {
	if err := validateName("source", raw.Name); err != nil {
		return nil, err
	}

	src := &Source{
		Name:       raw.Name,
		Repo:       raw.Repo,
		Maintainer: raw.Maintainer,
		Rules: Rules{
			Prepare: raw.Rules.Prepare,
			Build:   raw.Rules.Build,
			Install: raw.Rules.Install,
			Clean:   raw.Rules.Clean,
		},
	}

	// The <source> node is never dropped; if="false" instead marks it
	// skip=<expr> and retained (spec §4.2(c)).
	if raw.If != "" {
		ok, err := Eval(raw.If, o.TrueTerms)
		if err != nil {
			return nil, err
		}
		if !ok {
			src.Skip = raw.If
		}
		src.Skipped = !ok
	}

	for _, s := range raw.Sources {
		ok, err := Eval(s.If, o.TrueTerms)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		src.Sources = append(src.Sources, SourceFile{Filename: s.Src, URL: s.URL, Subdir: s.Subdir, SHA256: s.SHA256})
	}

	for _, p := range raw.Patches {
		ok, err := Eval(p.If, o.TrueTerms)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := validateStrip(p.Strip); err != nil {
			return nil, err
		}
		src.Patches = append(src.Patches, Patch{Filename: p.Src, Subdir: p.Subdir, Strip: p.Strip})
	}

	groups, err := pruneDepGroups([]rawDepGroup{{Alternatives: raw.Requires}}, o)
	if err != nil {
		return nil, err
	}
	src.Requires, err = toDependencyList(groups)
	if err != nil {
		return nil, err
	}

	return src, nil
}

func prunePackage(raw *rawPkg, o pruneOptions) (*Package, error) {
	pkg := &Package{
		Name:           raw.Name,
		Architecture:   raw.Architecture,
		Section:        raw.Section,
		Maintainer:     raw.Maintainer,
		Description:    raw.Description,
		ContentSubdir:  raw.ContentSubdir,
		CollectPyCache: raw.CollectPyCache,
		Scripts: MaintainerScripts{
			Preinst:  raw.Scripts.Preinst,
			Postinst: raw.Scripts.Postinst,
			Prerm:    raw.Scripts.Prerm,
			Postrm:   raw.Scripts.Postrm,
		},
	}

	var err error
	if pkg.Requires, err = prunedDeps(raw.Requires, o); err != nil {
		return nil, err
	}
	if pkg.Provides, err = prunedDeps(raw.Provides, o); err != nil {
		return nil, err
	}
	if pkg.Conflicts, err = prunedDeps(raw.Conflicts, o); err != nil {
		return nil, err
	}
	if pkg.Replaces, err = prunedDeps(raw.Replaces, o); err != nil {
		return nil, err
	}

	for _, f := range raw.Contents.Files {
		ok, err := Eval(f.If, o.TrueTerms)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var conf *bool
		switch f.Conffile {
		case "true":
			v := true
			conf = &v
		case "false":
			v := false
			conf = &v
		}
		pkg.Contents.Files = append(pkg.Contents.Files, FileDecl{Src: f.Src, Mode: f.Mode, Owner: f.Owner, Group: f.Group, Conffile: conf})
	}
	for _, d := range raw.Contents.Dirs {
		ok, err := Eval(d.If, o.TrueTerms)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pkg.Contents.Dirs = append(pkg.Contents.Dirs, DirDecl{Src: d.Src, Mode: d.Mode, Owner: d.Owner, Group: d.Group})
	}

	return pkg, nil
}

func prunedDeps(raw []rawDepGroup, o pruneOptions) (version.DependencyList, error) {
	groups, err := pruneDepGroups(raw, o)
	if err != nil {
		return version.DependencyList{}, err
	}
	return toDependencyList(groups)
}

func toDependencyList(groups depGroups) (version.DependencyList, error) {
	var raw []version.AlternativeGroup
	for _, g := range groups {
		var alt version.AlternativeGroup
		for _, d := range g {
			dep := version.Dependency{Name: d.Name}
			if d.Op != "" {
				op, err := version.ParseOperator(d.Op)
				if err != nil {
					return version.DependencyList{}, fmt.Errorf("%w: %v", ErrSpecSyntax, err)
				}
				v, err := validateVersion(d.Version)
				if err != nil {
					return version.DependencyList{}, err
				}
				dep.Constraint = &version.Constraint{Op: op, Version: v}
			}
			alt = append(alt, dep)
		}
		raw = append(raw, alt)
	}
	return version.NewDependencyList(raw), nil
}

func pruneChangelog(raw *rawChangelog) (Changelog, error) {
	var cl Changelog
	for _, r := range raw.Releases {
		if err := validateDate(r.Date); err != nil {
			return Changelog{}, err
		}
		if err := validateEmail(r.Email); err != nil {
			return Changelog{}, err
		}

		verStr := r.Version
		if r.Epoch != "" {
			verStr = r.Epoch + ":" + verStr
		}
		if r.Revision != "" {
			verStr = verStr + "-" + r.Revision
		}
		v, err := validateVersion(verStr)
		if err != nil {
			return Changelog{}, err
		}

		date, err := parseRFC2822(r.Date)
		if err != nil {
			return Changelog{}, err
		}

		cl.Releases = append(cl.Releases, Release{
			Version:    v,
			Maintainer: r.Maintainer,
			Email:      r.Email,
			Date:       date,
		})
	}
	return cl, nil
}
