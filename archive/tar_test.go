package archive

import (
	"archive/tar"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/boltpack/boltpack/filemeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarWriterDeterministicOrder(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTarWriter(&buf)

	mtime := time.Unix(1700000000, 0)
	entries := []Entry{
		{Name: "/usr/bin/foo", Type: EntryRegular, Mode: 0755, Size: 3, ModTime: mtime, Data: strings.NewReader("abc")},
		{Name: "/usr", Type: EntryDirectory, Mode: 0755, ModTime: mtime},
		{Name: "/usr/bin", Type: EntryDirectory, Mode: 0755, ModTime: mtime},
	}
	SortEntries(entries)

	for _, e := range entries {
		require.NoError(t, tw.WriteEntry(e))
	}
	require.NoError(t, tw.Close())

	tr := tar.NewReader(&buf)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
		assert.Equal(t, 0, hdr.Uid)
		assert.Equal(t, 0, hdr.Gid)
		assert.Equal(t, "root", hdr.Uname)
		assert.Equal(t, "root", hdr.Gname)
	}
	assert.Equal(t, []string{"./usr/", "./usr/bin/", "./usr/bin/foo"}, names)
}

func TestHardlinkGroups(t *testing.T) {
	entries := []Entry{
		{Name: "/usr/bin/a", Type: EntryRegular},
		{Name: "/usr/bin/b", Type: EntryRegular},
		{Name: "/usr/bin/c", Type: EntryRegular},
	}

	keys := map[string]filemeta.HardlinkKey{
		"/usr/bin/a": {Dev: 1, Ino: 42},
		"/usr/bin/b": {Dev: 1, Ino: 42},
		"/usr/bin/c": {Dev: 1, Ino: 99},
	}
	nlinks := map[string]uint64{"/usr/bin/a": 2, "/usr/bin/b": 2, "/usr/bin/c": 1}

	out := HardlinkGroups(entries, func(e Entry) (filemeta.HardlinkKey, uint64) {
		return keys[e.Name], nlinks[e.Name]
	})

	require.Len(t, out, 3)
	assert.Equal(t, EntryRegular, out[0].Type)
	assert.Equal(t, EntryHardlink, out[1].Type)
	assert.Equal(t, "./usr/bin/a", out[1].LinkTarget)
	assert.Equal(t, EntryRegular, out[2].Type, "different inode stays regular")
}

func TestDetectFilter(t *testing.T) {
	assert.Equal(t, FilterGzip, DetectFilter("Packages.gz"))
	assert.Equal(t, FilterXZ, DetectFilter("foo.orig.tar.xz"))
	assert.Equal(t, FilterBzip2, DetectFilter("foo.tar.bz2"))
	assert.Equal(t, FilterNone, DetectFilter("foo.tar"))
}
