package pkgwriter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/boltpack/boltpack/content"
	"github.com/boltpack/boltpack/filemeta"
)

// DebugSplitResult is the outcome of splitting debug symbols out of a
// package's content list (spec §4.6).
type DebugSplitResult struct {
	// Primary is the content list with debug_info_path set on every split
	// entry (spec §3 invariant).
	Primary []content.Entry
	// Debug is the content list of the sibling -dbg package: every
	// companion path plus the two enclosing debug directories.
	Debug []content.Entry
}

// SplitDebug strips debug symbols out of every unstripped ELF entry in
// entries, writing companions under <prefix>/lib/debug (spec §4.6). baseDir
// is the staging directory entries' TargetPath is rooted under; hostTool is
// the `<host>-` prefix used to invoke objcopy (e.g. "x86_64-linux-gnu").
func SplitDebug(ctx context.Context, entries []content.Entry, baseDir, prefix, hostTool string) (DebugSplitResult, error) {
	result := DebugSplitResult{Primary: make([]content.Entry, len(entries))}
	copy(result.Primary, entries)

	seenInode := make(map[filemeta.HardlinkKey]bool)
	debugDirs := make(map[string]bool)

	for i, e := range result.Primary {
		if e.Kind != filemeta.KindFile {
			continue
		}
		if !e.Stats.IsELFBinary || e.Stats.IsStripped || e.Stats.Machine == "no machine" {
			continue
		}

		key := e.Stats.Key()
		if key != (filemeta.HardlinkKey{}) {
			if seenInode[key] {
				continue
			}
			seenInode[key] = true
		}

		companion := companionPath(e, prefix)
		originalPath := filepath.Join(baseDir, e.TargetPath)
		companionPathOnDisk := filepath.Join(baseDir, companion)

		if err := splitOne(ctx, originalPath, companionPathOnDisk, hostTool, e.Stats.BuildID_Hex() != ""); err != nil {
			return DebugSplitResult{}, fmt.Errorf("pkgwriter: debug split %s: %w", e.TargetPath, err)
		}

		newStats, err := filemeta.Lstat(originalPath)
		if err != nil {
			return DebugSplitResult{}, fmt.Errorf("pkgwriter: re-stat %s: %w", e.TargetPath, err)
		}
		result.Primary[i].Stats = newStats
		result.Primary[i].DebugInfoPath = companion

		companionStats, err := filemeta.Lstat(companionPathOnDisk)
		if err != nil {
			return DebugSplitResult{}, fmt.Errorf("pkgwriter: stat companion %s: %w", companion, err)
		}
		result.Debug = append(result.Debug, content.Entry{
			TargetPath: companion,
			Kind:       filemeta.KindFile,
			Owner:      "root",
			Group:      "root",
			Stats:      companionStats,
		})

		for dir := filepath.Dir(companion); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
			debugDirs[dir] = true
		}
	}

	for dir := range debugDirs {
		result.Debug = append(result.Debug, content.Entry{
			TargetPath: dir,
			Kind:       filemeta.KindDir,
			Mode:       uint32Ptr(0755),
			Owner:      "root",
			Group:      "root",
		})
	}

	return result, nil
}

func uint32Ptr(v uint32) *uint32 { return &v }

// companionPath computes the .debug companion path per spec §4.6: build-id
// keyed when available, else alongside the original path.
func companionPath(e content.Entry, prefix string) string {
	if hex := e.Stats.BuildID_Hex(); hex != "" && len(hex) > 2 {
		return fmt.Sprintf("%s/lib/debug/.build-id/%s/%s.debug", prefix, hex[:2], hex[2:])
	}
	return fmt.Sprintf("%s/lib/debug%s.debug", prefix, e.TargetPath)
}

// splitOne drives objcopy/chrpath to produce one companion and strip the
// original in place (spec §4.6). These remain external tool invocations, as
// named by spec §9: no pack library wraps objcopy/chrpath/objdump.
func splitOne(ctx context.Context, original, companion, hostTool string, hasBuildID bool) error {
	if err := os.MkdirAll(filepath.Dir(companion), 0755); err != nil {
		return err
	}
	if err := os.Chmod(original, 0644|0200); err != nil {
		return err
	}

	objcopy := "objcopy"
	if hostTool != "" {
		objcopy = hostTool + "-objcopy"
	}

	if err := run(ctx, objcopy, "--only-keep-debug", original, companion); err != nil {
		return err
	}
	if err := run(ctx, objcopy, "--strip-unneeded", original); err != nil {
		return err
	}
	if !hasBuildID {
		linkArg := fmt.Sprintf("--add-gnu-debuglink=%s", companion)
		if err := run(ctx, objcopy, linkArg, original); err != nil {
			return err
		}
	}
	if err := run(ctx, "chrpath", "-c", original); err != nil {
		return err
	}

	return nil
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %s: %w", name, args, string(out), err)
	}
	return nil
}
