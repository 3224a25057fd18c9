// Package shlib implements the shared-library dependency resolver (spec
// §4.7, C8): an ldconfig-like cache of the system's shared objects, an
// overlay of libraries produced by the current build, and NEEDED-entry
// resolution using the pure-Go ELF reader in filemeta (SPEC_FULL.md §3's
// justified stdlib exception — no third-party ELF parser appears anywhere in
// the retrieval pack).
package shlib

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/boltpack/boltpack/content"
	"github.com/boltpack/boltpack/filemeta"
	"github.com/boltpack/boltpack/version"
)

// ErrUnmetDependency is returned when a NEEDED library is not provided by any
// cache entry or locally-built package (spec §7: UnmetDependency).
var ErrUnmetDependency = errors.New("shlib: unmet dependency")

// PackageRef names the package that owns a SharedObject.
type PackageRef struct {
	Name    string
	Version string
}

// SharedObject is one entry in the ld.so cache overlay.
type SharedObject struct {
	LibPath   string
	WordSize  int // 32 or 64
	OwningPkg PackageRef
}

// Cache is the in-memory ld.so cache overlaid with locally-built libraries
// (spec §4.7 "overlay (shlib cache)").
type Cache struct {
	mu      sync.Mutex
	entries map[string][]SharedObject
}

// NewCache returns an empty cache, ready to be seeded via LoadLdconfig or
// ScanDirs and then amended with Overlay.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]SharedObject)}
}

var ldconfigLine = regexp.MustCompile(`^\s*(\S+)\s+\(([^)]*)\)\s*=>\s*(\S+)\s*$`)

// LoadLdconfig parses the textual output of `ldconfig -p` (spec §4.7 step 1).
func (c *Cache) LoadLdconfig(output string) error {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		m := ldconfigLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, flags, path := m[1], m[2], m[3]
		c.mu.Lock()
		c.entries[name] = append(c.entries[name], SharedObject{
			LibPath:  path,
			WordSize: wordSizeFromFlags(flags),
		})
		c.mu.Unlock()
	}
	return scanner.Err()
}

func wordSizeFromFlags(flags string) int {
	if strings.Contains(flags, "x86-64") || strings.Contains(flags, "64-bit") || strings.Contains(flags, "64bit") {
		return 64
	}
	return 32
}

// ScanDirs lazily scans each directory in dirs for "*.so*" files, used as the
// fallback on hosts without a usable ldconfig (spec §4.7 step 1 "otherwise
// lazily scan <prefix>/lib and fallback directories").
func (c *Cache) ScanDirs(dirs []string) error {
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if !isSharedObjectName(name) {
				return nil
			}
			st, statErr := filemeta.Lstat(path)
			if statErr != nil {
				return nil
			}
			wordSize := 64
			if st.ELFClass == "ELF32" {
				wordSize = 32
			}
			c.mu.Lock()
			c.entries[name] = append(c.entries[name], SharedObject{LibPath: path, WordSize: wordSize})
			c.mu.Unlock()
			return nil
		})
		if err != nil {
			return fmt.Errorf("shlib: scanning %s: %w", dir, err)
		}
	}
	return nil
}

var sharedObjectName = regexp.MustCompile(`^(?:lib|ld|ld64).*\.so(?:\.[0-9]+)*$`)

func isSharedObjectName(name string) bool {
	return sharedObjectName.MatchString(name)
}

// Overlay amends the cache with the shared objects a locally-built binary
// package produces, replacing or inserting an entry keyed by the same
// word-size slot (spec §4.7 "Overlay").
func (c *Cache) Overlay(pkg PackageRef, entries []content.Entry, baseDir string) error {
	for _, e := range entries {
		if e.Kind != filemeta.KindFile || !isSharedObjectName(filepath.Base(e.TargetPath)) {
			continue
		}
		if !e.Stats.Dynamic {
			continue
		}

		name := filepath.Base(e.TargetPath)
		wordSize := 64
		if e.Stats.ELFClass == "ELF32" {
			wordSize = 32
		}

		obj := SharedObject{
			LibPath:   filepath.Join(baseDir, e.TargetPath),
			WordSize:  wordSize,
			OwningPkg: pkg,
		}

		c.mu.Lock()
		replaced := false
		for i, existing := range c.entries[name] {
			if existing.WordSize == wordSize {
				c.entries[name][i] = obj
				replaced = true
				break
			}
		}
		if !replaced {
			c.entries[name] = append(c.entries[name], obj)
		}
		c.mu.Unlock()
	}
	return nil
}

// lookup finds the best SharedObject providing name at the given word size.
func (c *Cache) lookup(name string, wordSize int) (SharedObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, obj := range c.entries[name] {
		if obj.WordSize == wordSize {
			return obj, true
		}
	}
	return SharedObject{}, false
}

// Resolve scans a binary package's expanded content list and registers a
// `Depends` relation for every dynamically-linked NEEDED library and every
// `.so`-targeted symlink (spec §4.7 "Resolution"). selfName is the owning
// package's own name, to skip self-references; baseDir is the staging
// directory entries' TargetPath is rooted under, needed to reopen ELF files
// for their NEEDED entries.
func Resolve(cache *Cache, selfName, baseDir string, entries []content.Entry) (version.DependencyList, error) {
	var deps version.DependencyList
	seen := make(map[string]bool)

	for _, e := range entries {
		switch e.Kind {
		case filemeta.KindSymlink:
			if !strings.Contains(e.Stats.LinkTarget, ".so") {
				continue
			}
			linkName := filepath.Base(e.Stats.LinkTarget)
			obj, ok := cache.lookup(linkName, 0)
			if !ok {
				obj, ok = cache.lookupAnyWordSize(linkName)
			}
			if !ok || obj.OwningPkg.Name == "" || obj.OwningPkg.Name == selfName {
				continue
			}
			addExactDep(&deps, seen, obj.OwningPkg)

		case filemeta.KindFile:
			if !e.Stats.IsELFBinary || !e.Stats.Dynamic {
				continue
			}
			needed, err := filemeta.NeededLibraries(filepath.Join(baseDir, e.TargetPath))
			if err != nil {
				return deps, fmt.Errorf("shlib: reading NEEDED for %s: %w", e.TargetPath, err)
			}

			wordSize := 64
			if e.Stats.ELFClass == "ELF32" {
				wordSize = 32
			}

			for _, lib := range needed {
				obj, ok := cache.lookup(lib, wordSize)
				if !ok {
					return deps, fmt.Errorf("%w: %s needs %s", ErrUnmetDependency, e.TargetPath, lib)
				}
				if obj.OwningPkg.Name == "" || obj.OwningPkg.Name == selfName {
					continue
				}
				addMinDep(&deps, seen, obj.OwningPkg)
			}
		}
	}

	return deps, nil
}

func (c *Cache) lookupAnyWordSize(name string) (SharedObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	objs := c.entries[name]
	if len(objs) == 0 {
		return SharedObject{}, false
	}
	return objs[0], true
}

func addExactDep(deps *version.DependencyList, seen map[string]bool, pkg PackageRef) {
	key := pkg.Name + "=" + pkg.Version
	if seen[key] {
		return
	}
	seen[key] = true
	ver, err := versionOrZero(pkg.Version)
	if err != nil {
		deps.Add(version.Dependency{Name: pkg.Name})
		return
	}
	deps.Add(version.Dependency{Name: pkg.Name, Constraint: &version.Constraint{Op: version.OpEqual, Version: ver}})
}

func addMinDep(deps *version.DependencyList, seen map[string]bool, pkg PackageRef) {
	key := pkg.Name + ">=" + pkg.Version
	if seen[key] {
		return
	}
	seen[key] = true
	ver, err := versionOrZero(pkg.Version)
	if err != nil {
		deps.Add(version.Dependency{Name: pkg.Name})
		return
	}
	deps.Add(version.Dependency{Name: pkg.Name, Constraint: &version.Constraint{Op: version.OpGreaterOrEqual, Version: ver}})
}

func versionOrZero(s string) (version.Version, error) {
	if s == "" {
		return version.Version{}, fmt.Errorf("empty version")
	}
	return version.Parse(s)
}
