package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/aptly-dev/aptly/pgp"
	"github.com/boltpack/boltpack/debext"
	"github.com/boltpack/boltpack/internal/common"
	"github.com/boltpack/boltpack/internal/config"
)

// Application holds the initialized runtime components shared across a pack
// invocation: the source cache's downloader/decompressor/storage trio (C4)
// and an optional OpenPGP verifier built from cfg.Verification, which no
// other package in this module reads. Outgoing signing of the repository
// index (C10) is Signify-based and lives entirely in package repoindex --
// it has nothing in common with this OpenPGP key material; the repo-index
// command loads its key from the path given by --sign-with.
type Application struct {
	Config       *config.Config
	Downloader   *common.Downloader
	DeCompressor *common.DeCompressor
	Storage      *common.Storage
	HTTPClient   *http.Client
	Verifier     *debext.Verifier
}

// New creates and initializes a new Application from configuration
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	dirs := cfg.Directories

	// Initialize HTTP client with optional configuration
	httpClient := &http.Client{}

	// Build base transport
	var transport http.RoundTripper = &http.Transport{}

	// Configure transport if any HTTP options are set
	if cfg.HTTP.MaxIdleConns > 0 || cfg.HTTP.MaxConnsPerHost > 0 {
		baseTransport := &http.Transport{}

		if cfg.HTTP.MaxIdleConns > 0 {
			baseTransport.MaxIdleConns = cfg.HTTP.MaxIdleConns
			baseTransport.MaxIdleConnsPerHost = cfg.HTTP.MaxIdleConns / 10 // Reasonable default
		}
		if cfg.HTTP.MaxConnsPerHost > 0 {
			baseTransport.MaxConnsPerHost = cfg.HTTP.MaxConnsPerHost
		}

		transport = baseTransport
	}

	// Wrap transport with User-Agent setter if configured
	if cfg.HTTP.UserAgent != "" {
		transport = &userAgentTransport{
			Base:      transport,
			UserAgent: cfg.HTTP.UserAgent,
		}
	}

	httpClient.Transport = transport

	// Set timeout
	if cfg.HTTP.Timeout > 0 {
		httpClient.Timeout = time.Duration(cfg.HTTP.Timeout) * time.Second
	}

	// Initialize decompressor with its own compression pool (C3 archive filters)
	decompressor := common.NewDeCompressor(ctx, int(cfg.Workers.Compression))

	// Initialize downloader with its own download pool (C4)
	downloader := common.NewDownloader(ctx, httpClient, int(cfg.Workers.Download), decompressor)

	// Initialize source cache storage (using resolved absolute paths from config)
	storage := common.NewStorage(downloader, dirs.GetCachePath(), dirs.GetTrustedPath())

	app := &Application{
		Config:       cfg,
		Downloader:   downloader,
		DeCompressor: decompressor,
		Storage:      storage,
		HTTPClient:   httpClient,
	}

	verifier, err := app.initializeVerifier()
	if err != nil {
		return nil, err
	}
	app.Verifier = verifier

	return app, nil
}

// Shutdown gracefully stops all application components
func (a *Application) Shutdown() {
	if a.Downloader != nil {
		a.Downloader.Shutdown()
	}
	if a.DeCompressor != nil {
		a.DeCompressor.Shutdown()
	}
}

// initializeVerifier builds an OpenPGP verifier from the configured keyring
// and key files for Application.Verifier; the source cache (C4) and the
// other packages of this module do not call it. It returns nil when no
// keyring/keys are configured.
func (a *Application) initializeVerifier() (*debext.Verifier, error) {
	keyringPath := a.Config.Verification.GetKeyringPath(a.Config.ConfigDir)
	keyPaths := a.Config.Verification.GetKeyPaths(a.Config.ConfigDir)
	if keyringPath == "" && len(keyPaths) == 0 {
		return nil, nil
	}

	verifier := &pgp.GoVerifier{}

	if keyringPath != "" {
		verifier.AddKeyring(keyringPath)
	}

	for _, keyPath := range keyPaths {
		keyFile, cleanup, err := prepareKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		verifier.AddKeyring(keyFile)
	}

	if err := verifier.InitKeyring(false); err != nil {
		return nil, err
	}

	return &debext.Verifier{
		Verifier:         verifier,
		AcceptUnsigned:   false,
		IgnoreSignatures: false,
	}, nil
}

// prepareKeyFile ensures a key file is in binary format for aptly's GoVerifier.
// If the file is ASCII-armored, it converts it to binary in a temp directory.
// Returns the path to use and an optional cleanup function.
func prepareKeyFile(keyPath string) (string, func(), error) {
	// Read the file to detect format
	f, err := os.Open(keyPath)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	// Check if it's ASCII-armored by reading the first 5 bytes
	header := make([]byte, 5)
	n, _ := f.Read(header)
	isArmored := n == 5 && bytes.Equal(header, []byte("-----"))

	if !isArmored {
		// Probably binary format, use as-is (no cleanup needed)
		return keyPath, func() {}, nil
	}

	// ASCII-armored, need to convert to binary
	_, _ = f.Seek(0, 0)

	keys, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read armored keyring: %w", err)
	}

	// Create temp file for binary keyring
	tmpFile, err := os.CreateTemp("", "boltpack-keyring-*.gpg")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp keyring: %w", err)
	}

	// Serialize keys to binary format
	// Check if this is a private keyring by looking for private keys
	hasPrivateKey := false
	for _, entity := range keys {
		if entity.PrivateKey != nil {
			hasPrivateKey = true
			break
		}
	}

	for _, entity := range keys {
		var serializeErr error
		if hasPrivateKey && entity.PrivateKey != nil {
			// Serialize private key
			serializeErr = entity.SerializePrivate(tmpFile, nil)
		} else {
			// Serialize public key
			serializeErr = entity.Serialize(tmpFile)
		}

		if serializeErr != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
			return "", nil, fmt.Errorf("failed to serialize key: %w", serializeErr)
		}
	}

	// Close the file so data is flushed to disk
	tmpFileName := tmpFile.Name()
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFileName)
		return "", nil, fmt.Errorf("failed to close temp keyring: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(tmpFileName)
	}

	return tmpFileName, cleanup, nil
}

// userAgentTransport wraps an http.RoundTripper to set a custom User-Agent header
type userAgentTransport struct {
	Base      http.RoundTripper
	UserAgent string
}

// RoundTrip implements http.RoundTripper
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req = req.Clone(req.Context())

	// Set User-Agent header if not already set
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	return t.Base.RoundTrip(req)
}
