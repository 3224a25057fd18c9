package config

import (
	"path/filepath"
	"runtime"
)

// Config represents the complete process-wide configuration. It covers only
// the ambient concerns that sit outside the specfile (cache/pool/staging
// directory roots, signing key material, HTTP client tuning, worker pool
// sizes) -- the build graph itself always comes from a specfile document
// (SPEC_FULL.md §1), never from this file.
type Config struct {
	Directories  DirectoriesConfig  `yaml:"directories"`
	HTTP         HTTPConfig         `yaml:"http,omitempty"`
	Signing      SigningConfig      `yaml:"signing"`
	Verification VerificationConfig `yaml:"verification,omitempty"`
	Workers      WorkersConfig      `yaml:"workers"`
	BuildFor     string             `yaml:"build_for,omitempty"` // "target" | "tools" | "cross-tools"
	ConfigDir    string             `yaml:"-"`                   // directory containing config.yaml (set during Load)
}

// DirectoriesConfig defines the directory roots used by the pipeline.
type DirectoriesConfig struct {
	Root    string `yaml:"root"`
	Cache   string `yaml:"cache"`   // relative to Root if not absolute: source cache (C4)
	Trusted string `yaml:"trusted"` // relative to Root if not absolute: upstream verification keyrings
	Staging string `yaml:"staging"` // relative to Root if not absolute: per-build work directories (C6)
	Pool    string `yaml:"pool"`    // relative to Root if not absolute: output pool of .bolt files (C9/C10)
	Archive string `yaml:"archive"` // relative to Root if not absolute: local pre-fetched archive/<name>/<version>/<src> tree tried before the cache (C6 unpack step 1)
}

func (d *DirectoriesConfig) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Root, name)
}

// GetCachePath returns the absolute path to the source cache directory.
func (d *DirectoriesConfig) GetCachePath() string { return d.resolve(d.Cache) }

// GetTrustedPath returns the absolute path to the trusted keyring directory.
func (d *DirectoriesConfig) GetTrustedPath() string { return d.resolve(d.Trusted) }

// GetStagingPath returns the absolute path to the staging directory.
func (d *DirectoriesConfig) GetStagingPath() string { return d.resolve(d.Staging) }

// GetPoolPath returns the absolute path to the output pool directory.
func (d *DirectoriesConfig) GetPoolPath() string { return d.resolve(d.Pool) }

// GetArchivePath returns the absolute path to the local pre-fetched archive
// tree.
func (d *DirectoriesConfig) GetArchivePath() string { return d.resolve(d.Archive) }

// SigningConfig contains Signify-compatible repository signing key paths
// (SPEC_FULL.md §3, C10). The OpenPGP verification keys are configured
// separately, in VerificationConfig.
type SigningConfig struct {
	PrivateKey string `yaml:"private_key"` // Signify secret key (C10)
	PublicKey  string `yaml:"public_key"`  // Signify public key (C10)
	Passphrase string `yaml:"passphrase,omitempty"`
}

// GetPrivateKeyPath returns the absolute path to the private key.
func (s *SigningConfig) GetPrivateKeyPath(configDir string) string {
	if s.PrivateKey == "" || filepath.IsAbs(s.PrivateKey) {
		return s.PrivateKey
	}
	return filepath.Join(configDir, s.PrivateKey)
}

// GetPublicKeyPath returns the absolute path to the public key.
func (s *SigningConfig) GetPublicKeyPath(configDir string) string {
	if s.PublicKey == "" || filepath.IsAbs(s.PublicKey) {
		return s.PublicKey
	}
	return filepath.Join(configDir, s.PublicKey)
}

// VerificationConfig names the OpenPGP keyring and key files from which
// app.New builds Application.Verifier. No fetch or unpack step consults
// that verifier.
type VerificationConfig struct {
	Keyring string   `yaml:"keyring,omitempty"`
	Keys    []string `yaml:"keys,omitempty"`
}

// GetKeyringPath returns the absolute path to the keyring.
func (v *VerificationConfig) GetKeyringPath(configDir string) string {
	if v.Keyring == "" || filepath.IsAbs(v.Keyring) {
		return v.Keyring
	}
	return filepath.Join(configDir, v.Keyring)
}

// GetKeyPaths returns absolute paths for all keys.
func (v *VerificationConfig) GetKeyPaths(configDir string) []string {
	paths := make([]string, len(v.Keys))
	for i, key := range v.Keys {
		if filepath.IsAbs(key) {
			paths[i] = key
		} else {
			paths[i] = filepath.Join(configDir, key)
		}
	}
	return paths
}

// HTTPConfig contains HTTP client configuration used by the source cache's
// upstream downloader (C4).
type HTTPConfig struct {
	UserAgent       string `yaml:"user_agent,omitempty"`
	Timeout         int    `yaml:"timeout"` // seconds
	MaxIdleConns    int    `yaml:"max_idle_conns,omitempty"`
	MaxConnsPerHost int    `yaml:"max_conns_per_host,omitempty"`
}

// WorkersConfig defines worker pool sizes for the fan-out-friendly edges of
// the pipeline named in SPEC_FULL.md §1 (download, compression/indexing).
type WorkersConfig struct {
	Download    uint `yaml:"download"`
	Compression uint `yaml:"compression"`
}

// defaults applies default values to the configuration.
func (c *Config) defaults() {
	if c.Directories.Root == "" {
		c.Directories.Root = "/var/lib/boltpack"
	}
	if c.Directories.Cache == "" {
		c.Directories.Cache = "cache"
	}
	if c.Directories.Trusted == "" {
		c.Directories.Trusted = "trusted"
	}
	if c.Directories.Staging == "" {
		c.Directories.Staging = "staging"
	}
	if c.Directories.Pool == "" {
		c.Directories.Pool = "pool"
	}
	if c.Directories.Archive == "" {
		c.Directories.Archive = "archive"
	}

	if c.Workers.Download == 0 {
		c.Workers.Download = 8
	}
	if c.Workers.Compression == 0 {
		c.Workers.Compression = uint(runtime.NumCPU())
	}

	if c.BuildFor == "" {
		c.BuildFor = "target"
	}
}
