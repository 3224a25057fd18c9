// Package pack orchestrates one end-to-end pack invocation: load a specfile,
// resolve and unpack its sources, run its prepare/build/install rules, expand
// and debug-split every binary package's content, resolve shared-library
// dependencies across the whole specfile and write out the resulting .bolt
// archives (spec §2 data flow, §4.8 order of operations). It is the single
// place that sequences the packages built in isolation elsewhere in this
// module, the way the teacher's buildCmd sequences Fetch/Generate/Publish in
// internal/cmd/build.go.
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/boltpack/boltpack/content"
	"github.com/boltpack/boltpack/fetch"
	"github.com/boltpack/boltpack/internal/app"
	"github.com/boltpack/boltpack/pkgwriter"
	"github.com/boltpack/boltpack/shlib"
	"github.com/boltpack/boltpack/specfile"
	"github.com/boltpack/boltpack/srcpkg"
	"github.com/boltpack/boltpack/version"
)

// ErrSkipBuild is returned when the specfile's <source> node evaluated its
// `if` condition to false for the requested build terms: the source is not
// supported on the current target (spec §7 SkipBuild, CLI exit code 2).
var ErrSkipBuild = errors.New("pack: source is not supported on the current target")

// Options configures one Run invocation, mirroring the pack CLI surface
// (spec §6).
type Options struct {
	// BuildFor is one of "target", "tools", "cross-tools". Empty falls back
	// to the application config's default.
	BuildFor string
	// Arch is the supported-on/host-type machine tag used both to prune
	// specfile dependencies (specfile.LoadOptions.Machine) and as the
	// `<host>-` prefix for objcopy during debug-split.
	Arch string
	// Release scopes the source cache (spec §4.4); it has no specfile
	// representation and is threaded in purely as a cache-layout
	// parameter.
	Release string
	// IgnoreDeps downgrades an unmet shared-library dependency from a hard
	// failure to a logged warning (spec §7, "-ignore-deps").
	IgnoreDeps bool
	Enable     []string
	Disable    []string
	// OutDir overrides the application config's pool directory.
	OutDir string
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of one successful Run.
type Result struct {
	SourceName string
	Version    string
	Outputs    []pkgwriter.Output
}

// Run executes the full pipeline for the specfile at specPath (spec §2,
// §4.8). The three documented outcomes map onto CLI exit codes at the
// cmd layer: nil -> 0, ErrSkipBuild -> 2, any other error -> 1.
func Run(ctx context.Context, a *app.Application, specPath string, opts Options) (Result, error) {
	doc, err := specfile.Load(specPath, specfile.LoadOptions{
		Machine: opts.Arch,
		Enable:  opts.Enable,
		Disable: opts.Disable,
	})
	if err != nil {
		return Result{}, fmt.Errorf("pack: loading %s: %w", specPath, err)
	}

	if doc.Source.Skipped {
		return Result{}, fmt.Errorf("%w: %s (if=%q)", ErrSkipBuild, doc.Source.Name, doc.Source.Skip)
	}
	if len(doc.Changelog.Releases) == 0 {
		return Result{}, fmt.Errorf("pack: %s: changelog has no releases", doc.Source.Name)
	}
	buildVersion := doc.Changelog.Releases[0].Version

	buildFor := opts.BuildFor
	if buildFor == "" {
		buildFor = a.Config.BuildFor
	}
	opts.BuildFor = buildFor
	release := opts.Release
	if release == "" {
		release = "unstable"
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = a.Config.Directories.GetPoolPath()
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return Result{}, err
	}

	slog.Info("packing", "source", doc.Source.Name, "version", buildVersion.String(), "build_for", buildFor)

	paths, err := prepareStagingDirs(a, doc.Source.Name, buildVersion.String())
	if err != nil {
		return Result{}, err
	}

	local := srcpkg.LocalArchiveRoot{Root: a.Config.Directories.GetArchivePath()}
	cache := fetch.NewCache(a.Storage, release)

	if err := srcpkg.Unpack(ctx, doc.Source, buildVersion.String(), paths.SourceDir, local, cache); err != nil {
		return Result{}, fmt.Errorf("pack: %s: %w", doc.Source.Name, err)
	}

	// Patches live alongside the specfile, not in the source cache: a
	// specfile.Patch carries no URL/checksum, so it is never fetched --
	// only ever resolved relative to the document that names it.
	specDir := filepath.Dir(specPath)
	patchFileOf := func(p specfile.Patch) (string, error) {
		return filepath.Join(specDir, "patches", p.Filename), nil
	}
	if err := srcpkg.Patch(ctx, doc.Source, patchFileOf, paths.SourceDir); err != nil {
		return Result{}, fmt.Errorf("pack: %s: %w", doc.Source.Name, err)
	}

	runOpts := srcpkg.RunOptions{
		Paths:         paths,
		HostType:      opts.Arch,
		TargetType:    opts.Arch,
		ToolsType:     opts.Arch,
		BuildFor:      buildFor,
		InstallPrefix: "/usr",
		BuildPrefix:   "BUILD",
		OuterEnv:      os.Environ(),
		Stdout:        opts.Stdout,
		Stderr:        opts.Stderr,
	}

	for _, phase := range []struct {
		action srcpkg.Action
		body   string
	}{
		{srcpkg.ActionPrepare, doc.Source.Rules.Prepare},
		{srcpkg.ActionBuild, doc.Source.Rules.Build},
		{srcpkg.ActionInstall, doc.Source.Rules.Install},
	} {
		if phase.body == "" {
			continue
		}
		if err := srcpkg.RunAction(ctx, phase.action, phase.body, runOpts); err != nil {
			return Result{}, fmt.Errorf("pack: %s: %w", doc.Source.Name, err)
		}
	}

	outputs, err := buildBinaryPackages(ctx, doc, buildVersion, paths, opts)
	if err != nil {
		return Result{}, err
	}

	for i := range outputs {
		dest := filepath.Join(outDir, outputs[i].Filename)
		if err := os.WriteFile(dest, outputs[i].Data, 0644); err != nil {
			return Result{}, fmt.Errorf("pack: writing %s: %w", dest, err)
		}
		slog.Info("wrote package", "file", dest)
	}

	return Result{SourceName: doc.Source.Name, Version: buildVersion.String(), Outputs: outputs}, nil
}

// prepareStagingDirs creates the four per-build staging directories under
// the configured staging root (spec §4.3/§6).
func prepareStagingDirs(a *app.Application, sourceName, version string) (srcpkg.Paths, error) {
	base := filepath.Join(a.Config.Directories.GetStagingPath(), sourceName, version)
	paths := srcpkg.Paths{
		SourceDir:  filepath.Join(base, "source"),
		BuildDir:   filepath.Join(base, "build"),
		InstallDir: filepath.Join(base, "install"),
		WorkDir:    filepath.Join(base, "work"),
	}
	for _, d := range []string{paths.SourceDir, paths.BuildDir, paths.InstallDir, paths.WorkDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return srcpkg.Paths{}, err
		}
	}
	return paths, nil
}

// expandedPackage carries one binary package through the three shlib passes.
type expandedPackage struct {
	pkg     specfile.Package
	primary []content.Entry
	debug   []content.Entry
}

// buildBinaryPackages runs the content-expand/debug-split/shlib-overlay/
// shlib-resolve/archive-write pipeline across every <package> in doc (spec
// §4.5-§4.8). Overlaying every package's shared objects before resolving any
// package's NEEDED entries lets one binary package in a specfile satisfy a
// sibling package's dependency, matching how the spec's single shlib cache
// is shared across the whole build (spec §4.7).
func buildBinaryPackages(ctx context.Context, doc *specfile.Document, buildVersion version.Version, paths srcpkg.Paths, opts Options) ([]pkgwriter.Output, error) {
	archMode := ""
	if opts.BuildFor == "tools" || opts.BuildFor == "cross-tools" {
		archMode = "tools"
	}

	concurrency := len(doc.Packages)
	if concurrency < 1 {
		concurrency = 1
	}

	// Stage 1: content-expand + debug-split every binary package. Each
	// package's content subtree is independent of its siblings at this
	// point, so this fans out across a pond pool exactly as the teacher
	// fans out its own per-file download/decompress work (spec §4.5/§4.6).
	expandPool := pond.NewResultPool[expandedPackage](concurrency, pond.WithContext(ctx), pond.WithoutPanicRecovery())
	defer expandPool.StopAndWait()
	expandGroup := expandPool.NewGroupContext(ctx)
	for _, pkg := range doc.Packages {
		pkg := pkg
		expandGroup.SubmitErr(func() (expandedPackage, error) {
			baseDir := paths.InstallDir
			if pkg.ContentSubdir != "" {
				baseDir = filepath.Join(paths.InstallDir, pkg.ContentSubdir)
			}

			entries, err := content.Expand(pkg.Contents, content.Options{
				BaseDir:        baseDir,
				Prefix:         "/usr",
				Architecture:   archMode,
				CollectPyCache: pkg.CollectPyCache,
			})
			if err != nil {
				return expandedPackage{}, fmt.Errorf("pack: %s: expanding contents: %w", pkg.Name, err)
			}

			split, err := pkgwriter.SplitDebug(ctx, entries, baseDir, "/usr", opts.Arch)
			if err != nil {
				return expandedPackage{}, fmt.Errorf("pack: %s: %w", pkg.Name, err)
			}

			return expandedPackage{pkg: pkg, primary: split.Primary, debug: split.Debug}, nil
		})
	}
	expanded, err := expandGroup.Wait()
	if err != nil {
		return nil, err
	}

	shlibCache := shlib.NewCache()
	if ldconfigOutput, err := runLdconfig(ctx); err == nil {
		_ = shlibCache.LoadLdconfig(ldconfigOutput)
	} else if err := shlibCache.ScanDirs([]string{"/usr/lib", "/lib", "/usr/lib64", "/lib64"}); err != nil {
		return nil, fmt.Errorf("pack: seeding shlib cache: %w", err)
	}

	// Stage 2: overlay every package's shared objects before resolving any
	// package's NEEDED entries, so a sibling package in the same specfile
	// can satisfy a dependency (spec §4.7). Overlay is mutex-protected but
	// kept sequential here since it is cheap and every entry must land
	// before stage 3 starts.
	for _, ep := range expanded {
		ref := shlib.PackageRef{Name: ep.pkg.Name, Version: buildVersion.String()}
		baseDir := paths.InstallDir
		if ep.pkg.ContentSubdir != "" {
			baseDir = filepath.Join(paths.InstallDir, ep.pkg.ContentSubdir)
		}
		if err := shlibCache.Overlay(ref, ep.primary, baseDir); err != nil {
			return nil, fmt.Errorf("pack: %s: overlaying shared objects: %w", ep.pkg.Name, err)
		}
	}

	// Stage 3: resolve dependencies and write the archive for every
	// package, again fanned out across a pond pool (spec §4.7/§4.8 --
	// matching the "C9 parallel binary-package assembly" wiring).
	mtime := time.Now()
	buildPool := pond.NewResultPool[[]pkgwriter.Output](concurrency, pond.WithContext(ctx), pond.WithoutPanicRecovery())
	defer buildPool.StopAndWait()
	buildGroup := buildPool.NewGroupContext(ctx)
	for _, ep := range expanded {
		ep := ep
		buildGroup.SubmitErr(func() ([]pkgwriter.Output, error) {
			baseDir := paths.InstallDir
			if ep.pkg.ContentSubdir != "" {
				baseDir = filepath.Join(paths.InstallDir, ep.pkg.ContentSubdir)
			}

			resolved, err := shlib.Resolve(shlibCache, ep.pkg.Name, baseDir, ep.primary)
			if err != nil {
				if opts.IgnoreDeps && errors.Is(err, shlib.ErrUnmetDependency) {
					slog.Warn("ignoring unmet shared-library dependency", "package", ep.pkg.Name, "error", err)
				} else {
					return nil, fmt.Errorf("pack: %s: %w", ep.pkg.Name, err)
				}
			}

			requires := mergeRequires(ep.pkg.Requires, resolved)

			out, err := pkgwriter.Build(pkgwriter.Input{
				Package:     ep.pkg,
				SourceName:  doc.Source.Name,
				Version:     buildVersion,
				Entries:     ep.primary,
				BaseDir:     baseDir,
				Requires:    requires,
				ModTime:     mtime,
				BuildPrefix: "BUILD",
				HostType:    opts.Arch,
			})
			if err != nil {
				return nil, fmt.Errorf("pack: %s: writing archive: %w", ep.pkg.Name, err)
			}
			results := []pkgwriter.Output{out}

			if len(ep.debug) == 0 {
				return results, nil
			}
			dbgOut, err := pkgwriter.Build(pkgwriter.Input{
				Package:     debugSiblingPackage(ep.pkg),
				SourceName:  doc.Source.Name,
				Version:     buildVersion,
				Entries:     ep.debug,
				BaseDir:     baseDir,
				ModTime:     mtime,
				BuildPrefix: "BUILD",
				HostType:    opts.Arch,
			})
			if err != nil {
				return nil, fmt.Errorf("pack: %s-dbg: writing archive: %w", ep.pkg.Name, err)
			}
			return append(results, dbgOut), nil
		})
	}
	perPackage, err := buildGroup.Wait()
	if err != nil {
		return nil, err
	}

	var outputs []pkgwriter.Output
	for _, outs := range perPackage {
		outputs = append(outputs, outs...)
	}

	return outputs, nil
}

// mergeRequires combines a package's declared <requires> with the
// shlib-resolved NEEDED-library dependencies (spec §4.8 control assembly).
func mergeRequires(declared version.DependencyList, resolved version.DependencyList) version.DependencyList {
	var merged version.DependencyList
	for _, g := range declared.Groups() {
		merged.AddGroup(g)
	}
	for _, g := range resolved.Groups() {
		merged.AddGroup(g)
	}
	return merged
}

// runLdconfig shells out to `ldconfig -p` to seed the shlib cache from the
// host's dynamic linker cache (spec §4.7 step 1); ScanDirs is the fallback
// used when ldconfig is unavailable (e.g. a minimal build container).
func runLdconfig(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "ldconfig", "-p").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// debugSiblingPackage synthesizes the -dbg package control metadata for a
// debug-split companion archive (spec §4.6).
func debugSiblingPackage(pkg specfile.Package) specfile.Package {
	return specfile.Package{
		Name:         pkg.Name + "-dbg",
		Architecture: pkg.Architecture,
		Section:      "debug",
		Maintainer:   pkg.Maintainer,
		Description:  "debug symbols for " + pkg.Name,
	}
}
