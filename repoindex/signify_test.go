package repoindex

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeUnencryptedSecretKeyFile builds a signify secret-key file with
// kdfalg="none" (kdfrounds=0), matching what `signify -G` writes for the
// -n (no passphrase) flag.
func writeUnencryptedSecretKeyFile(t *testing.T, path string, keynum [8]byte, seed ed25519.PrivateKey) {
	t.Helper()

	checksum := sha512.Sum512(seed)

	var blob bytes.Buffer
	blob.WriteString(pkAlgEd25519)
	blob.WriteString(kdfAlgNone)
	blob.Write(make([]byte, 4))  // kdfrounds = 0
	blob.Write(make([]byte, 16)) // salt
	blob.Write(checksum[:8])
	blob.Write(keynum[:])
	blob.Write(seed)

	content := fmt.Sprintf("untrusted comment: boltpack secret key\n%s\n",
		base64.StdEncoding.EncodeToString(blob.Bytes()))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func writePublicKeyFile(t *testing.T, path string, keynum [8]byte, pub ed25519.PublicKey) {
	t.Helper()

	var blob bytes.Buffer
	blob.WriteString(pkAlgEd25519)
	blob.Write(keynum[:])
	blob.Write(pub)

	content := fmt.Sprintf("untrusted comment: boltpack public key\n%s\n",
		base64.StdEncoding.EncodeToString(blob.Bytes()))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadKeyFilesRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var keynum [8]byte
	copy(keynum[:], []byte("12345678"))

	dir := t.TempDir()
	secPath := filepath.Join(dir, "repo.sec")
	pubPath := filepath.Join(dir, "repo.pub")
	writeUnencryptedSecretKeyFile(t, secPath, keynum, priv)
	writePublicKeyFile(t, pubPath, keynum, pub)

	loadedPriv, err := LoadPrivateKey(secPath)
	require.NoError(t, err)
	assert.Equal(t, []byte(priv), []byte(loadedPriv.Seed))
	assert.Equal(t, keynum, loadedPriv.KeyNum)

	loadedPub, err := LoadPublicKey(pubPath)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), []byte(loadedPub.Key))
	assert.Equal(t, keynum, loadedPub.KeyNum)

	body := []byte("pool contents\n")
	detached := SignDetached(loadedPriv, "boltpack", body)
	assert.True(t, Verify(loadedPub, detached, body))
}

func TestLoadPrivateKeyRejectsBadChecksum(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var keynum [8]byte

	dir := t.TempDir()
	secPath := filepath.Join(dir, "bad.sec")

	var blob bytes.Buffer
	blob.WriteString(pkAlgEd25519)
	blob.WriteString(kdfAlgNone)
	blob.Write(make([]byte, 4))
	blob.Write(make([]byte, 16))
	blob.Write(make([]byte, 8)) // wrong checksum
	blob.Write(keynum[:])
	blob.Write(priv)

	content := "untrusted comment: corrupt\n" + base64.StdEncoding.EncodeToString(blob.Bytes()) + "\n"
	require.NoError(t, os.WriteFile(secPath, []byte(content), 0600))

	_, err = LoadPrivateKey(secPath)
	assert.Error(t, err)
}
