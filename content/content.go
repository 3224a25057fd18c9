// Package content expands a binary package's declarative content spec
// (spec §4.5, C7) into a deterministic, stat-backed file list. The
// declarative `<file>`/`<dir>` entries in specfile.ContentSpec name globs and
// brace patterns relative to a staging basedir; Expand resolves those against
// the filesystem the way the teacher's own content_subdir handling resolves
// paths under internal/compose, generalized to the spec's full glob/brace/
// recursive-directory rules.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/boltpack/boltpack/filemeta"
	"github.com/boltpack/boltpack/specfile"
)

// Entry is one expanded content-list member (spec §3 FileEntry).
type Entry struct {
	TargetPath    string // absolute POSIX path inside the package
	Kind          filemeta.Kind
	Mode          *uint32 // nil -> default from Stats
	Owner         string  // defaults to "root"
	Group         string  // defaults to "root"
	Conffile      *bool   // nil -> implicit (true under /etc/ unless explicitly false)
	Stats         filemeta.Stats
	DebugInfoPath string // set by the debug-split pass (spec §4.6)
}

// IsConffile reports whether e should be listed in the package's conffiles
// member (spec §4.8): files under /etc/ by default, or explicitly marked,
// excluding directories and symlinks.
func (e Entry) IsConffile() bool {
	if e.Kind != filemeta.KindFile {
		return false
	}
	if e.Conffile != nil {
		return *e.Conffile
	}
	return strings.HasPrefix(e.TargetPath, "/etc/")
}

// EffectiveMode returns the mode to use when writing e, falling back to the
// detected filesystem mode when unset.
func (e Entry) EffectiveMode() uint32 {
	if e.Mode != nil {
		return *e.Mode
	}
	return uint32(e.Stats.Mode.Perm())
}

// Options controls the expansion pass.
type Options struct {
	BaseDir        string // the install staging directory content is resolved against
	Prefix         string // substituted for "${prefix}" in declared paths
	Architecture   string // "tools" strips /etc and /var entries (spec §4.5)
	CollectPyCache bool
}

// Expand resolves spec's declarative content list against opts.BaseDir,
// returning the sorted, deduplicated entry list described in spec §4.5.
func Expand(spec specfile.ContentSpec, opts Options) ([]Entry, error) {
	byPath := make(map[string]Entry)
	var order []string

	add := func(e Entry, overridesDir bool) {
		if _, exists := byPath[e.TargetPath]; !exists {
			order = append(order, e.TargetPath)
		}
		if overridesDir {
			byPath[e.TargetPath] = e
			return
		}
		// <file> entries always win over a previously-registered <dir>
		// at the same path (spec §4.5 "Entries declared as <file> take
		// precedence over <dir>").
		if prior, exists := byPath[e.TargetPath]; exists && prior.Kind == filemeta.KindFile && e.Kind == filemeta.KindDir {
			return
		}
		byPath[e.TargetPath] = e
	}

	for _, d := range spec.Dirs {
		if err := expandDir(d, opts, add); err != nil {
			return nil, err
		}
	}
	for _, f := range spec.Files {
		if err := expandFile(f, opts, add); err != nil {
			return nil, err
		}
	}

	if opts.CollectPyCache {
		collectPyCache(byPath, order, opts)
	}

	addParentDirs(byPath, &order, opts)

	var out []Entry
	for _, p := range order {
		e := byPath[p]
		if opts.Architecture == "tools" && (underEtcOrVar(e.TargetPath)) {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TargetPath < out[j].TargetPath })

	return out, nil
}

func underEtcOrVar(p string) bool {
	return strings.HasPrefix(p, "/etc/") || p == "/etc" ||
		strings.HasPrefix(p, "/var/") || p == "/var"
}

func substitutePrefix(src, prefix string) string {
	s := strings.ReplaceAll(src, "${prefix}", prefix)
	s = "/" + strings.Trim(s, "/")
	return s
}

func expandDir(d specfile.DirDecl, opts Options, add func(Entry, bool)) error {
	target := substitutePrefix(d.Src, opts.Prefix)
	real := filepath.Join(opts.BaseDir, target)

	st, err := filemeta.Lstat(real)
	if err != nil {
		return fmt.Errorf("content: dir %s: %w", target, err)
	}

	mode, err := parseMode(d.Mode)
	if err != nil {
		return err
	}

	add(Entry{
		TargetPath: target,
		Kind:       filemeta.KindDir,
		Mode:       mode,
		Owner:      defaultStr(d.Owner),
		Group:      defaultStr(d.Group),
		Stats:      st,
	}, false)

	return nil
}

func expandFile(f specfile.FileDecl, opts Options, add func(Entry, bool)) error {
	target := substitutePrefix(f.Src, opts.Prefix)

	mode, err := parseMode(f.Mode)
	if err != nil {
		return err
	}

	inherit := func(targetPath string, st filemeta.Stats) Entry {
		kind := st.Kind
		e := Entry{
			TargetPath: targetPath,
			Kind:       kind,
			Owner:      defaultStr(f.Owner),
			Group:      defaultStr(f.Group),
			Conffile:   f.Conffile,
			Stats:      st,
		}
		if kind == filemeta.KindFile || kind == filemeta.KindSymlink {
			e.Mode = mode
		}
		return e
	}

	if hasGlobMeta(target) {
		matches, err := expandGlobs(target, opts.BaseDir)
		if err != nil {
			return err
		}
		for _, m := range matches {
			st, err := filemeta.Lstat(filepath.Join(opts.BaseDir, m))
			if err != nil {
				return fmt.Errorf("content: %s: %w", m, err)
			}
			add(inherit(m, st), true)
		}
		return nil
	}

	real := filepath.Join(opts.BaseDir, target)
	st, err := filemeta.Lstat(real)
	if err != nil {
		return fmt.Errorf("content: file %s: %w", target, err)
	}

	if st.Kind == filemeta.KindDir {
		return walkDir(target, real, opts, inherit, add)
	}

	add(inherit(target, st), true)
	return nil
}

// walkDir recursively includes every descendant of a real (non-symlink)
// directory named by a <file> declaration (spec §4.5 step 4).
func walkDir(target, real string, opts Options, inherit func(string, filemeta.Stats) Entry, add func(Entry, bool)) error {
	dirStat, err := filemeta.Lstat(real)
	if err != nil {
		return err
	}
	add(Entry{
		TargetPath: target,
		Kind:       filemeta.KindDir,
		Owner:      defaultStr(""),
		Group:      defaultStr(""),
		Stats:      dirStat,
	}, true)

	entries, err := os.ReadDir(real)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		childTarget := target + "/" + name
		childReal := filepath.Join(real, name)
		st, err := filemeta.Lstat(childReal)
		if err != nil {
			return err
		}
		if st.Kind == filemeta.KindDir {
			if err := walkDir(childTarget, childReal, opts, inherit, add); err != nil {
				return err
			}
			continue
		}
		add(inherit(childTarget, st), true)
	}

	return nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[") || strings.Contains(s, "{")
}

// expandGlobs performs brace expansion followed by filesystem globbing,
// returning target paths relative to "/" in deterministic (lexical) order
// (spec §4.5 step 3).
func expandGlobs(pattern, baseDir string) ([]string, error) {
	var out []string
	for _, alt := range expandBraces(pattern) {
		rel := strings.TrimPrefix(alt, "/")
		matches, err := filepath.Glob(filepath.Join(baseDir, rel))
		if err != nil {
			return nil, fmt.Errorf("content: bad glob %q: %w", alt, err)
		}
		for _, m := range matches {
			relMatch, err := filepath.Rel(baseDir, m)
			if err != nil {
				return nil, err
			}
			out = append(out, "/"+filepath.ToSlash(relMatch))
		}
	}
	sort.Strings(out)
	return out, nil
}

// expandBraces expands a single level of shell-style brace alternation,
// e.g. "/usr/lib/{foo,bar}.so" -> ["/usr/lib/foo.so", "/usr/lib/bar.so"].
// Supplements spec §4.5 step 3, which names brace expansion but leaves the
// algorithm implicit (SPEC_FULL.md §3).
func expandBraces(pattern string) []string {
	open := strings.Index(pattern, "{")
	if open == -1 {
		return []string{pattern}
	}
	depth := 0
	close := -1
	for i := open; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				close = i
			}
		}
		if close != -1 {
			break
		}
	}
	if close == -1 {
		return []string{pattern}
	}

	prefix := pattern[:open]
	suffix := pattern[close+1:]
	alternatives := splitTopLevel(pattern[open+1 : close])

	var out []string
	for _, alt := range alternatives {
		for _, expandedSuffix := range expandBraces(suffix) {
			out = append(out, prefix+alt+expandedSuffix)
		}
	}
	return out
}

// splitTopLevel splits s on commas that are not nested inside another brace
// pair.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseMode(s string) (*uint32, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return nil, fmt.Errorf("content: invalid mode %q: %w", s, err)
	}
	m := uint32(v)
	return &m, nil
}

func defaultStr(s string) string {
	if s == "" {
		return "root"
	}
	return s
}

// collectPyCache adds sibling .pyc/.pyo and __pycache__ entries for every
// included .py file (spec §4.5 "byte-code collection").
func collectPyCache(byPath map[string]Entry, order []string, opts Options) {
	pyEntries := make([]string, 0)
	for _, p := range order {
		if strings.HasSuffix(p, ".py") {
			pyEntries = append(pyEntries, p)
		}
	}

	for _, p := range pyEntries {
		dir := filepath.Dir(p)
		stem := strings.TrimSuffix(filepath.Base(p), ".py")

		legacy := []string{p + "c", p + "o"}
		foundLegacy := false
		for _, cand := range legacy {
			real := filepath.Join(opts.BaseDir, cand)
			if st, err := filemeta.Lstat(real); err == nil {
				byPath[cand] = Entry{TargetPath: cand, Kind: st.Kind, Stats: st, Owner: "root", Group: "root"}
				foundLegacy = true
			}
		}
		if foundLegacy {
			continue
		}

		cacheDir := filepath.Join(dir, "__pycache__")
		realCacheDir := filepath.Join(opts.BaseDir, cacheDir)
		entries, err := os.ReadDir(realCacheDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), stem+".cpython") {
				continue
			}
			if !strings.HasSuffix(e.Name(), ".pyc") {
				continue
			}
			target := cacheDir + "/" + e.Name()
			real := filepath.Join(opts.BaseDir, target)
			if st, err := filemeta.Lstat(real); err == nil {
				byPath[target] = Entry{TargetPath: target, Kind: st.Kind, Stats: st, Owner: "root", Group: "root"}
			}
		}
	}
}

// addParentDirs walks upward from every included path, adding ancestor
// directories that exist on disk and are not already present (spec §4.5
// "Post-pass — parent directories").
func addParentDirs(byPath map[string]Entry, order *[]string, opts Options) {
	seen := make(map[string]bool, len(*order))
	for _, p := range *order {
		seen[p] = true
	}

	queue := append([]string(nil), *order...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		parent := filepath.ToSlash(filepath.Dir(p))
		if parent == "/" || parent == "." || parent == "" {
			continue
		}
		if seen[parent] {
			continue
		}

		real := filepath.Join(opts.BaseDir, parent)
		st, err := filemeta.Lstat(real)
		if err != nil || st.Kind != filemeta.KindDir {
			continue
		}

		byPath[parent] = Entry{TargetPath: parent, Kind: filemeta.KindDir, Owner: "root", Group: "root", Stats: st}
		seen[parent] = true
		*order = append(*order, parent)
		queue = append(queue, parent)
	}
}
