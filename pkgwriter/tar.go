package pkgwriter

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/boltpack/boltpack/archive"
	"github.com/boltpack/boltpack/content"
	"github.com/boltpack/boltpack/filemeta"
)

// writeControlTar writes control.tar.gz: the control stanza, an optional
// conffiles list, and any non-empty maintainer scripts (spec §4.8).
func writeControlTar(w io.Writer, in Input, control, conffiles []byte) error {
	gz := gzip.NewWriter(w)
	tw := archive.NewTarWriter(gz)

	if err := writeMemberBytes(tw, "control", control, 0644, in.ModTime); err != nil {
		return err
	}
	if conffiles != nil {
		if err := writeMemberBytes(tw, "conffiles", conffiles, 0644, in.ModTime); err != nil {
			return err
		}
	}

	scripts := map[string]string{
		"preinst":  in.Package.Scripts.Preinst,
		"postinst": in.Package.Scripts.Postinst,
		"prerm":    in.Package.Scripts.Prerm,
		"postrm":   in.Package.Scripts.Postrm,
	}
	for _, name := range []string{"preinst", "postinst", "prerm", "postrm"} {
		body := scripts[name]
		if body == "" {
			continue
		}
		rendered, err := renderScript(in.BuildPrefix, installPrefixOf(in), in.HostType, body)
		if err != nil {
			return fmt.Errorf("pkgwriter: rendering %s: %w", name, err)
		}
		if err := writeMemberBytes(tw, name, []byte(rendered), 0754, in.ModTime); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// installPrefixOf derives the install prefix from the package's
// content-subdir convention; callers that need a non-default prefix should
// set it via Input in a future revision — for now this mirrors the common
// "/usr" default used across the specfile corpus.
func installPrefixOf(in Input) string {
	if in.Package.ContentSubdir != "" {
		return in.Package.ContentSubdir
	}
	return "/usr"
}

func writeMemberBytes(tw *archive.TarWriter, name string, data []byte, mode int64, mtime time.Time) error {
	return tw.WriteEntry(archive.Entry{
		Name:    name,
		Type:    archive.EntryRegular,
		Mode:    mode,
		Size:    int64(len(data)),
		ModTime: mtime,
		Data:    bytes.NewReader(data),
	})
}

// writeDataTar writes data.tar.gz: every content entry, with hardlinked
// files collapsed to `hardlink` tar entries per spec §3's invariant (P4).
func writeDataTar(w io.Writer, entries []content.Entry, baseDir string, mtime time.Time) error {
	gz := gzip.NewWriter(w)
	tw := archive.NewTarWriter(gz)

	tarEntries := make([]archive.Entry, len(entries))
	for i, e := range entries {
		te, err := toTarEntry(e, baseDir, mtime)
		if err != nil {
			return err
		}
		tarEntries[i] = te
	}

	tarEntries = archive.HardlinkGroups(tarEntries, func(e archive.Entry) (filemeta.HardlinkKey, uint64) {
		return hardlinkKeyFor(entries, e.Name)
	})

	for _, e := range tarEntries {
		if err := tw.WriteEntry(e); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func hardlinkKeyFor(entries []content.Entry, name string) (filemeta.HardlinkKey, uint64) {
	for _, e := range entries {
		if "/"+trimLeadingSlash(e.TargetPath) == name || e.TargetPath == name {
			return e.Stats.Key(), e.Stats.Nlink
		}
	}
	return filemeta.HardlinkKey{}, 0
}

func trimLeadingSlash(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}

func toTarEntry(e content.Entry, baseDir string, mtime time.Time) (archive.Entry, error) {
	entry := archive.Entry{
		Name:       e.TargetPath,
		Type:       archive.KindFromStats(e.Kind),
		Mode:       int64(e.EffectiveMode()),
		Size:       e.Stats.Size,
		ModTime:    mtime,
		LinkTarget: e.Stats.LinkTarget,
	}
	if e.Kind == filemeta.KindFile {
		data, err := os.ReadFile(filepath.Join(baseDir, e.TargetPath))
		if err != nil {
			return archive.Entry{}, fmt.Errorf("pkgwriter: reading %s: %w", e.TargetPath, err)
		}
		entry.Size = int64(len(data))
		entry.Data = bytes.NewReader(data)
	}
	return entry, nil
}
