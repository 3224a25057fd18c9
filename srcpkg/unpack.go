package srcpkg

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/boltpack/boltpack/archive"
	"github.com/boltpack/boltpack/fetch"
	"github.com/boltpack/boltpack/specfile"
)

// ErrChecksumMismatch is returned when a locally-cached source archive's
// SHA-256 does not match the specfile's declared checksum (spec §7:
// ChecksumMismatch).
var ErrChecksumMismatch = fmt.Errorf("srcpkg: checksum mismatch")

// LocalArchiveRoot is the "archive/<name>/<version>/<src>" lookup root tried
// before the source cache (spec §4.3 unpack step 1).
type LocalArchiveRoot struct {
	Root string
}

func (l LocalArchiveRoot) path(pkgName, pkgVersion, filename string) string {
	return filepath.Join(l.Root, pkgName, pkgVersion, filename)
}

// Unpack resolves and extracts every source file declared in src into
// sourceDir, per spec §4.3's three-step resolution (local archive, cache
// fetch, then unpack-or-stream-decompress).
func Unpack(ctx context.Context, src specfile.Source, version string, sourceDir string, local LocalArchiveRoot, cache *fetch.Cache) error {
	for _, f := range src.Sources {
		path, err := resolveSourceFile(ctx, src, version, f, local, cache)
		if err != nil {
			return err
		}

		destSubdir := filepath.Join(sourceDir, f.Subdir)
		if err := os.MkdirAll(destSubdir, 0755); err != nil {
			return err
		}

		if isDebdiff(f.Filename) {
			if err := streamDecompressDebdiff(path, destSubdir, f.Filename); err != nil {
				return fmt.Errorf("srcpkg: unpacking debdiff %s: %w", f.Filename, err)
			}
			continue
		}

		if err := unpackArchive(path, destSubdir); err != nil {
			return fmt.Errorf("srcpkg: unpacking %s: %w", f.Filename, err)
		}
	}
	return nil
}

// resolveSourceFile implements spec §4.3 unpack steps 1-2: try the local
// archive/ tree first (verifying its checksum), otherwise ask the cache.
func resolveSourceFile(ctx context.Context, src specfile.Source, version string, f specfile.SourceFile, local LocalArchiveRoot, cache *fetch.Cache) (string, error) {
	if local.Root != "" {
		candidate := local.path(src.Name, version, f.Filename)
		if _, err := os.Stat(candidate); err == nil {
			sum, err := sha256File(candidate)
			if err != nil {
				return "", err
			}
			if !strings.EqualFold(sum, f.SHA256) {
				if qErr := quarantine(candidate); qErr != nil {
					return "", fmt.Errorf("%w: %s (got %s, want %s); quarantine failed: %v", ErrChecksumMismatch, f.Filename, sum, f.SHA256, qErr)
				}
				return "", fmt.Errorf("%w: %s (got %s, want %s)", ErrChecksumMismatch, f.Filename, sum, f.SHA256)
			}
			return candidate, nil
		}
	}

	return cache.Fetch(ctx, src.Repo, src.Name, version, f)
}

// quarantine moves a checksum-mismatched cached file aside so it stops
// poisoning every subsequent build identically (spec §7: ChecksumMismatch
// quarantines the cached copy). The file is renamed in place with a
// ".quarantined" suffix rather than deleted, leaving it around for a
// maintainer to inspect.
func quarantine(path string) error {
	dest := path + ".quarantined"
	if err := os.Rename(path, dest); err != nil {
		return err
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isDebdiff(filename string) bool {
	for _, ext := range []string{".debdiff.gz", ".debdiff.xz", ".debdiff.bz2"} {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// streamDecompressDebdiff decompresses a single-file diff archive directly
// into subdir/<basename> (spec §4.3 step 3).
func streamDecompressDebdiff(path, destDir, filename string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	filter := archive.DetectFilter(filename)
	r, err := archive.NewReader(filter, f)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	out, err := os.Create(filepath.Join(destDir, base))
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, r)
	return err
}

// unpackArchive extracts a multi-entry tar archive (with its filter
// inferred from the filename) into destDir with strip_components=1 (spec
// §4.3 step 4).
func unpackArchive(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	filter := archive.DetectFilter(path)
	r, err := archive.NewReader(filter, f)
	if err != nil {
		return err
	}

	return archive.Unpack(r, destDir, archive.UnpackOptions{StripComponents: 1})
}

// Patch applies every patch in src's series in declaration order, invoking
// the external `patch` binary (spec §4.3 patch, §5 subprocess model).
func Patch(ctx context.Context, src specfile.Source, patchFileOf func(specfile.Patch) (string, error), sourceDir string) error {
	for _, p := range src.Patches {
		patchPath, err := patchFileOf(p)
		if err != nil {
			return err
		}

		dir := filepath.Join(sourceDir, p.Subdir)
		cmd := exec.CommandContext(ctx, "patch", "-f", fmt.Sprintf("-p%d", p.Strip), "-d", dir, "-i", patchPath)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %w", ErrPatchFailed, p.Filename, strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}
