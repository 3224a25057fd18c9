package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/boltpack/boltpack/filemeta"
)

// EntryType is the tagged-union discriminant for the abstract archive entry
// primitives described in spec §9 ("select a native archive library
// providing set_filetype, set_mode, ... write_header, write_data").
// This package is that native archive library's Go equivalent.
type EntryType int

const (
	EntryRegular EntryType = iota
	EntryDirectory
	EntrySymlink
	EntryHardlink
	EntryCharDevice
	EntryBlockDevice
	EntryFifo
)

// Entry is one member to be written to a tar stream. Owner/Group default to
// root (spec §4.8 determinism rules); UID/GID are always forced to 0 at
// write time.
type Entry struct {
	Name       string // archive-relative path, no leading "./" required
	Type       EntryType
	Mode       int64
	Size       int64 // ignored for non-regular entries
	ModTime    time.Time
	LinkTarget string // symlink target, or the referenced member's Name for hardlinks

	// Data, when non-nil, supplies the payload for a regular entry. If nil,
	// WriteEntry expects a subsequent call to (*TarWriter).Write.
	Data io.Reader
}

// KindFromStats maps filemeta.Kind to the archive EntryType, used when
// assembling entries directly from filesystem stats (spec §4.5/§4.8).
func KindFromStats(k filemeta.Kind) EntryType {
	switch k {
	case filemeta.KindDir:
		return EntryDirectory
	case filemeta.KindSymlink:
		return EntrySymlink
	case filemeta.KindCharDev:
		return EntryCharDevice
	case filemeta.KindBlockDev:
		return EntryBlockDevice
	case filemeta.KindFifo:
		return EntryFifo
	default:
		return EntryRegular
	}
}

// TarWriter is a thin, deterministic wrapper over archive/tar.Writer: every
// member gets uid/gid 0, uname/gname "root" (spec §4.8).
type TarWriter struct {
	tw *tar.Writer
}

// NewTarWriter wraps w.
func NewTarWriter(w io.Writer) *TarWriter {
	return &TarWriter{tw: tar.NewWriter(w)}
}

// WriteEntry writes the USTAR header (and Entry.Data, if set) for e.
func (t *TarWriter) WriteEntry(e Entry) error {
	hdr := &tar.Header{
		Name:    normalizeMemberName(e.Name, e.Type == EntryDirectory),
		Mode:    e.Mode,
		ModTime: e.ModTime,
		Uid:     0,
		Gid:     0,
		Uname:   "root",
		Gname:   "root",
	}

	switch e.Type {
	case EntryRegular:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = e.Size
	case EntryDirectory:
		hdr.Typeflag = tar.TypeDir
	case EntrySymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = e.LinkTarget
	case EntryHardlink:
		hdr.Typeflag = tar.TypeLink
		hdr.Linkname = e.LinkTarget
	case EntryCharDevice:
		hdr.Typeflag = tar.TypeChar
	case EntryBlockDevice:
		hdr.Typeflag = tar.TypeBlock
	case EntryFifo:
		hdr.Typeflag = tar.TypeFifo
	default:
		return fmt.Errorf("archive: unknown entry type %d", e.Type)
	}

	if err := t.tw.WriteHeader(hdr); err != nil {
		return err
	}

	if e.Type == EntryRegular && e.Data != nil {
		if _, err := io.Copy(t.tw, e.Data); err != nil {
			return err
		}
	}

	return nil
}

// Write streams payload bytes for the entry most recently started via
// WriteEntry with Data == nil.
func (t *TarWriter) Write(p []byte) (int, error) {
	return t.tw.Write(p)
}

// Close flushes the tar footer.
func (t *TarWriter) Close() error {
	return t.tw.Close()
}

// normalizeMemberName applies the Debian data.tar convention: paths are
// relative, prefixed with "./", and directories carry a trailing slash.
func normalizeMemberName(name string, isDir bool) string {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" {
		name = "."
	}
	out := "./" + name
	if isDir && out != "./" {
		out = out + "/"
	}
	return out
}

// SortEntries sorts entries by Name, the deterministic content order
// required by spec §3/§5 (P2: byte-wise total order by target_path).
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// HardlinkGroups groups entries that share the same filemeta.HardlinkKey and
// have Nlink > 1, returning, for each group, the first entry (to be written
// as a regular file) and the remainder (to be rewritten as EntryHardlink
// pointing at the first), per spec §3's hardlink invariant (P4).
func HardlinkGroups(entries []Entry, keyOf func(Entry) (filemeta.HardlinkKey, uint64)) []Entry {
	seen := make(map[filemeta.HardlinkKey]string)
	out := make([]Entry, len(entries))
	copy(out, entries)

	for i, e := range out {
		key, nlink := keyOf(e)
		if nlink <= 1 || key == (filemeta.HardlinkKey{}) {
			continue
		}
		if first, ok := seen[key]; ok {
			out[i].Type = EntryHardlink
			out[i].LinkTarget = first
			out[i].Data = nil
			out[i].Size = 0
		} else {
			seen[key] = normalizeMemberName(e.Name, false)
		}
	}

	return out
}
