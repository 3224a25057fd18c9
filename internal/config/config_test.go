package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectoriesConfig_resolve(t *testing.T) {
	d := &DirectoriesConfig{Root: "/var/lib/boltpack", Cache: "cache", Trusted: "/etc/boltpack/trusted"}

	assert.Equal(t, filepath.Join("/var/lib/boltpack", "cache"), d.GetCachePath())
	assert.Equal(t, "/etc/boltpack/trusted", d.GetTrustedPath())
}

func TestSigningConfig_paths(t *testing.T) {
	s := &SigningConfig{PrivateKey: "boltpack.sec", PublicKey: "/etc/boltpack/keys/boltpack.pub"}

	assert.Equal(t, filepath.Join("/cfg", "boltpack.sec"), s.GetPrivateKeyPath("/cfg"))
	assert.Equal(t, "/etc/boltpack/keys/boltpack.pub", s.GetPublicKeyPath("/cfg"))
}

func TestConfig_defaults(t *testing.T) {
	var c Config
	c.defaults()

	assert.Equal(t, "/var/lib/boltpack", c.Directories.Root)
	assert.Equal(t, "cache", c.Directories.Cache)
	assert.Equal(t, "trusted", c.Directories.Trusted)
	assert.Equal(t, "staging", c.Directories.Staging)
	assert.Equal(t, "pool", c.Directories.Pool)
	assert.Equal(t, "target", c.BuildFor)
	assert.NotZero(t, c.Workers.Download)
	assert.NotZero(t, c.Workers.Compression)
}

func TestConfig_defaults_doesNotOverrideExplicitValues(t *testing.T) {
	c := Config{BuildFor: "tools"}
	c.Directories.Root = "/srv/boltpack"
	c.defaults()

	assert.Equal(t, "/srv/boltpack", c.Directories.Root)
	assert.Equal(t, "tools", c.BuildFor)
}
