package repoindex

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEncryptedKey is returned when a signify secret key file was generated
// with a bcrypt KDF (a passphrase-protected key); this implementation only
// supports unencrypted keys (spec §9, supplemented, documents this as the
// one corner of the signify format left unimplemented: bcrypt_pbkdf has no
// home anywhere else in the domain and pulling in a KDF library for a
// single call site isn't worth it).
var ErrEncryptedKey = errors.New("repoindex: encrypted signify keys are not supported")

const (
	pkAlgEd25519 = "Ed"
	kdfAlgNone   = "\x00\x00"
	keyNumLen    = 8
)

// PrivateKey is a parsed signify secret-key file (unencrypted only).
type PrivateKey struct {
	KeyNum [keyNumLen]byte
	Seed   ed25519.PrivateKey
}

// PublicKey is a parsed signify public-key file.
type PublicKey struct {
	KeyNum [keyNumLen]byte
	Key    ed25519.PublicKey
}

// LoadPrivateKey reads a signify secret-key file in base64-over-text form:
//
//	untrusted comment: <anything>
//	<base64 of pkalg(2) kdfalg(2) kdfrounds(4) salt(16) checksum(8) keynum(8) seckey(64)>
func LoadPrivateKey(path string) (*PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blob, err := decodeKeyFile(raw)
	if err != nil {
		return nil, err
	}
	if len(blob) != 2+2+4+16+8+8+64 {
		return nil, fmt.Errorf("repoindex: malformed secret key %s: %d bytes", path, len(blob))
	}

	off := 0
	pkalg := string(blob[off : off+2])
	off += 2
	kdfalg := string(blob[off : off+2])
	off += 2
	off += 4  // kdfrounds
	off += 16 // salt
	checksum := blob[off : off+8]
	off += 8
	var keynum [keyNumLen]byte
	copy(keynum[:], blob[off:off+keyNumLen])
	off += keyNumLen
	seckey := blob[off : off+64]

	if pkalg != pkAlgEd25519 {
		return nil, fmt.Errorf("repoindex: unsupported pkalg %q", pkalg)
	}
	if kdfalg != kdfAlgNone {
		return nil, ErrEncryptedKey
	}
	if got := sha512.Sum512(seckey); !bytes.Equal(got[:8], checksum) {
		return nil, fmt.Errorf("repoindex: secret key %s fails checksum", path)
	}

	return &PrivateKey{KeyNum: keynum, Seed: ed25519.PrivateKey(append([]byte(nil), seckey...))}, nil
}

// LoadPublicKey reads a signify public-key file: pkalg(2) keynum(8) pubkey(32).
func LoadPublicKey(path string) (*PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blob, err := decodeKeyFile(raw)
	if err != nil {
		return nil, err
	}
	if len(blob) != 2+keyNumLen+ed25519.PublicKeySize {
		return nil, fmt.Errorf("repoindex: malformed public key %s: %d bytes", path, len(blob))
	}
	if pkalg := string(blob[:2]); pkalg != pkAlgEd25519 {
		return nil, fmt.Errorf("repoindex: unsupported pkalg %q", pkalg)
	}
	var keynum [keyNumLen]byte
	copy(keynum[:], blob[2:2+keyNumLen])
	return &PublicKey{KeyNum: keynum, Key: ed25519.PublicKey(append([]byte(nil), blob[2+keyNumLen:]...))}, nil
}

// decodeKeyFile strips any "untrusted comment:"/"trusted comment:" header
// line and base64-decodes the remainder.
func decodeKeyFile(raw []byte) ([]byte, error) {
	lines := strings.Split(string(raw), "\n")
	var b64 strings.Builder
	for _, line := range lines {
		if strings.HasPrefix(line, "untrusted comment:") || strings.HasPrefix(line, "trusted comment:") {
			continue
		}
		b64.WriteString(strings.TrimSpace(line))
	}
	return base64.StdEncoding.DecodeString(b64.String())
}

// wireSignature is the 2+8+64 byte blob (pkalg, keynum, signature) that gets
// base64-encoded into both the detached .sig file and the inline signed
// message, matching signify's on-wire layout.
func wireSignature(keynum [keyNumLen]byte, sig []byte) []byte {
	out := make([]byte, 0, 2+keyNumLen+ed25519.SignatureSize)
	out = append(out, pkAlgEd25519...)
	out = append(out, keynum[:]...)
	out = append(out, sig...)
	return out
}

// SignDetached produces the textual detached-signature form signify writes
// to a `.sig` file: an "untrusted comment:" header, then the base64 wire
// signature.
func SignDetached(priv *PrivateKey, comment string, body []byte) []byte {
	sig := ed25519.Sign(priv.Seed, body)
	wire := wireSignature(priv.KeyNum, sig)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "untrusted comment: %s\n", comment)
	buf.WriteString(base64.StdEncoding.EncodeToString(wire))
	buf.WriteString("\n")
	return buf.Bytes()
}

// SignInline wraps body in the Signify "signed message" container (spec
// §4.9 step 5): body between BEGIN/signature markers, signature computed
// over the raw body bytes.
func SignInline(priv *PrivateKey, body []byte) []byte {
	sig := ed25519.Sign(priv.Seed, body)
	wire := wireSignature(priv.KeyNum, sig)

	var buf bytes.Buffer
	buf.WriteString("-----BEGIN SIGNIFY SIGNED MESSAGE-----\n")
	buf.Write(body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		buf.WriteString("\n")
	}
	buf.WriteString("-----BEGIN SIGNIFY SIGNATURE-----\n")
	buf.WriteString(base64.StdEncoding.EncodeToString(wire))
	buf.WriteString("\n")
	buf.WriteString("-----END SIGNIFY SIGNATURE-----\n")
	return buf.Bytes()
}

// Verify checks a detached signature file's content (as produced by
// SignDetached) against body using pub. Exercised by tests as the
// round-trip check for the signing path.
func Verify(pub *PublicKey, sigFile []byte, body []byte) bool {
	blob, err := decodeKeyFile(sigFile)
	if err != nil || len(blob) != 2+keyNumLen+ed25519.SignatureSize {
		return false
	}
	if string(blob[:2]) != pkAlgEd25519 {
		return false
	}
	if !bytes.Equal(blob[2:2+keyNumLen], pub.KeyNum[:]) {
		return false
	}
	sig := blob[2+keyNumLen:]
	return ed25519.Verify(pub.Key, body, sig)
}
