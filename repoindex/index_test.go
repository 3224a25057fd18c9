package repoindex

import (
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/boltpack/boltpack/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBoltFixture assembles a minimal .bolt file with a control member
// carrying the given Package/Version, enough for Index to extract and sort.
func writeBoltFixture(t *testing.T, dir, filename, name, ver string) {
	t.Helper()

	control := []byte("Package: " + name + "\nVersion: " + ver + "\nArchitecture: all\nMaintainer: nobody\nInstalled-Size: 1\nDescription: test\n")

	var controlTar bytes.Buffer
	gz := gzip.NewWriter(&controlTar)
	tw := archive.NewTarWriter(gz)
	require.NoError(t, tw.WriteEntry(archive.Entry{
		Name: "control", Type: archive.EntryRegular, Mode: 0644, Size: int64(len(control)),
		Data: bytes.NewReader(control),
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	var ar bytes.Buffer
	require.NoError(t, archive.WriteAr(&ar, []archive.ArMember{
		{Name: "debian-binary", Mode: 0644, Data: []byte("2.0\n")},
		{Name: "control.tar.gz", Mode: 0644, Data: controlTar.Bytes()},
		{Name: "data.tar.gz", Mode: 0644, Data: []byte{}},
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), ar.Bytes(), 0644))
}

func TestIndexSortsByNameThenVersion(t *testing.T) {
	dir := t.TempDir()
	writeBoltFixture(t, dir, "a_1.0-2_all.bolt", "a", "1.0-2")
	writeBoltFixture(t, dir, "a_1.0-1_all.bolt", "a", "1.0-1")
	writeBoltFixture(t, dir, "b_1.0-1_all.bolt", "b", "1.0-1")

	result, err := Index(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.PackageQty)
	assert.False(t, result.Skipped)

	body := readGzip(t, filepath.Join(dir, "Packages.gz"))
	firstA := bytes.Index(body, []byte("Version: 1.0-1"))
	secondA := bytes.Index(body, []byte("Version: 1.0-2"))
	bIdx := bytes.Index(body, []byte("Package: b"))
	assert.True(t, firstA >= 0 && secondA > firstA && bIdx > secondA)
}

func TestIndexRerunIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	writeBoltFixture(t, dir, "a_1.0-1_all.bolt", "a", "1.0-1")

	_, err := Index(dir, Options{})
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dir, "Packages.gz"))
	require.NoError(t, err)

	result, err := Index(dir, Options{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	second, err := os.ReadFile(filepath.Join(dir, "Packages.gz"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIndexSignsWithSignify(t *testing.T) {
	dir := t.TempDir()
	writeBoltFixture(t, dir, "a_1.0-1_all.bolt", "a", "1.0-1")

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var keynum [keyNumLen]byte
	copy(keynum[:], []byte("testkey!"))
	privKey := &PrivateKey{KeyNum: keynum, Seed: priv}
	pubKey := &PublicKey{KeyNum: keynum, Key: pub}

	_, err = Index(dir, Options{SignWith: privKey, Comment: "boltpack repository"})
	require.NoError(t, err)

	sigPath := filepath.Join(dir, "Packages.sig")
	assert.FileExists(t, sigPath)
	assert.FileExists(t, filepath.Join(dir, "InPackages.gz"))

	body := readGzip(t, filepath.Join(dir, "Packages.gz"))
	sigBytes, err := os.ReadFile(sigPath)
	require.NoError(t, err)
	assert.True(t, Verify(pubKey, sigBytes, body))
}

func readGzip(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	return body
}

func TestWireSignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var keynum [keyNumLen]byte
	copy(keynum[:], []byte("abcdefgh"))
	privKey := &PrivateKey{KeyNum: keynum, Seed: priv}
	pubKey := &PublicKey{KeyNum: keynum, Key: pub}

	body := []byte("hello boltpack\n")
	detached := SignDetached(privKey, "test", body)
	assert.Contains(t, string(detached), "untrusted comment: test")
	assert.True(t, Verify(pubKey, detached, body))

	// corrupting one base64 char must fail verification
	mangled := bytes.Replace(detached, []byte("A"), []byte("B"), 1)
	if !bytes.Equal(mangled, detached) {
		assert.False(t, Verify(pubKey, mangled, body))
	}
}
