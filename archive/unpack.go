package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a tar member would escape the destination
// directory (spec §3: "no .. component"; §7: ArchiveError).
var ErrUnsafePath = errors.New("archive: unsafe member path")

// UnpackOptions controls Unpack behavior.
type UnpackOptions struct {
	// StripComponents removes this many leading path elements from every
	// member name before it is written, per spec §4.3 step 4
	// (strip_components=1 for multi-entry source archives).
	StripComponents int
}

// Unpack extracts a USTAR/PAX tar stream to destDir, sanitizing every member
// path so it cannot escape destDir (spec §9: "path sanitization"). Members
// that become empty after StripComponents is applied are skipped.
func Unpack(r io.Reader, destDir string, opts UnpackOptions) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("archive: reading tar header: %w", err)
		}

		name, ok := stripAndSanitize(hdr.Name, opts.StripComponents)
		if !ok {
			continue
		}

		target := filepath.Join(destDir, name)
		if !isWithinDir(destDir, target) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0700); err != nil {
				return err
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeRegularFile(target, os.FileMode(hdr.Mode), tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			linkTarget := hdr.Linkname
			if filepath.IsAbs(linkTarget) {
				return fmt.Errorf("%w: absolute symlink target %s -> %s", ErrUnsafePath, hdr.Name, linkTarget)
			}
			resolved := filepath.Join(filepath.Dir(target), linkTarget)
			if !isWithinDir(destDir, resolved) {
				return fmt.Errorf("%w: symlink escapes destination %s -> %s", ErrUnsafePath, hdr.Name, linkTarget)
			}
			_ = os.Remove(target)
			if err := os.Symlink(linkTarget, target); err != nil {
				return err
			}
		case tar.TypeLink:
			linkTarget, ok := stripAndSanitize(hdr.Linkname, opts.StripComponents)
			if !ok {
				continue
			}
			hardTarget := filepath.Join(destDir, linkTarget)
			if !isWithinDir(destDir, hardTarget) {
				return fmt.Errorf("%w: hardlink escapes destination %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			_ = os.Remove(target)
			if err := os.Link(hardTarget, target); err != nil {
				return err
			}
		default:
			// Device/fifo members: skip, not meaningful for source unpacking.
		}
	}

	return nil
}

func writeRegularFile(target string, mode os.FileMode, r io.Reader) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode|0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(f, r)
	return err
}

// stripAndSanitize removes `strip` leading path components and rejects any
// ".." traversal component. Returns ok=false when the path becomes empty.
func stripAndSanitize(name string, strip int) (string, bool) {
	name = filepath.ToSlash(name)
	name = strings.TrimPrefix(name, "./")
	parts := strings.Split(name, "/")

	if strip > 0 {
		if strip >= len(parts) {
			return "", false
		}
		parts = parts[strip:]
	}

	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			return "", false
		default:
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return "", false
	}

	return filepath.Join(clean...), true
}

// isWithinDir reports whether target is equal to base or nested under it.
func isWithinDir(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)
	if target == base {
		return true
	}
	return strings.HasPrefix(target, base+string(filepath.Separator))
}
