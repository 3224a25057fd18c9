// Package repoindex implements the repository indexer (spec §4.9, C10): it
// walks a pool directory for `.bolt` packages, extracts and parses each
// package's control stanza via the teacher's aptly/debext helpers, and emits
// a sorted, gzip-compressed `Packages` index with an optional Signify
// detached signature.
package repoindex

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/aptly-dev/aptly/deb"
	"github.com/boltpack/boltpack/archive"
	"github.com/boltpack/boltpack/version"
)

// indexed pairs one pool-relative filename with its extracted metadata, the
// unit of work fanned out across the pond pool in Index.
type indexed struct {
	rel  string
	meta MetaData
}

// MetaData is one pool entry's indexed control stanza plus the checksum
// fields the index itself adds (spec §4.9 step 2).
type MetaData struct {
	Name     string
	Version  version.Version
	Filename string // relative to repo_dir
	Size     int64
	SHA256   string
	Stanza   deb.Stanza
}

// Options configures one Index run.
type Options struct {
	// ForceFull skips loading the existing Packages.gz and re-walks the
	// entire pool (spec §4.9 step 3 parenthetical).
	ForceFull bool
	// SignWith, if non-nil, produces Packages.sig/InPackages.gz over the
	// emitted body (spec §4.9 step 5).
	SignWith *PrivateKey
	// Comment is the "untrusted comment:" header text for Packages.sig.
	Comment string
}

// Result reports whether Index actually rewrote the index.
type Result struct {
	Skipped    bool // body unchanged and, when signing, a signature already existed
	PackageQty int
}

// Index walks repoDir for *.bolt files and (re)writes repoDir/Packages.gz,
// following spec §4.9's six steps in order.
func Index(repoDir string, opts Options) (Result, error) {
	existing := map[string]MetaData{}
	var previousSHA256 string

	if !opts.ForceFull {
		var err error
		existing, previousSHA256, err = loadExisting(filepath.Join(repoDir, "Packages.gz"))
		if err != nil {
			return Result{}, fmt.Errorf("repoindex: loading existing index: %w", err)
		}
	}

	boltFiles, err := walkBolt(repoDir)
	if err != nil {
		return Result{}, err
	}

	entries := make(map[string]MetaData, len(boltFiles))
	var toIndex []string
	for _, rel := range boltFiles {
		if meta, ok := existing[rel]; ok {
			entries[rel] = meta
			continue
		}
		toIndex = append(toIndex, rel)
	}

	if len(toIndex) > 0 {
		// Every pool file's control stanza is extracted independently, so
		// this fans out across a pond pool rather than walking the pool
		// one archive at a time (spec §4.9 step 2).
		pool := pond.NewResultPool[indexed](len(toIndex), pond.WithoutPanicRecovery())
		group := pool.NewGroupContext(context.Background())
		for _, rel := range toIndex {
			rel := rel
			group.SubmitErr(func() (indexed, error) {
				meta, err := indexOne(repoDir, rel)
				if err != nil {
					return indexed{}, fmt.Errorf("repoindex: indexing %s: %w", rel, err)
				}
				return indexed{rel: rel, meta: meta}, nil
			})
		}
		results, err := group.Wait()
		pool.StopAndWait()
		if err != nil {
			return Result{}, err
		}
		for _, r := range results {
			entries[r.rel] = r.meta
		}
	}
	// Prune entries whose Filename no longer exists (spec §4.9 step 3).
	present := make(map[string]bool, len(boltFiles))
	for _, rel := range boltFiles {
		present[rel] = true
	}
	for rel := range entries {
		if !present[rel] {
			delete(entries, rel)
		}
	}

	sorted := sortedMetaData(entries)

	body, err := renderBlocks(sorted)
	if err != nil {
		return Result{}, err
	}
	bodySHA := sha256.Sum256(body)
	bodySHAHex := hex.EncodeToString(bodySHA[:])

	sigPath := filepath.Join(repoDir, "Packages.sig")
	sigExists := fileExists(sigPath)

	if bodySHAHex == previousSHA256 && (opts.SignWith == nil || sigExists) {
		return Result{Skipped: true, PackageQty: len(sorted)}, nil
	}

	if err := writeGzipAtomic(filepath.Join(repoDir, "Packages.gz"), body); err != nil {
		return Result{}, fmt.Errorf("repoindex: writing Packages.gz: %w", err)
	}

	if opts.SignWith != nil {
		detached := SignDetached(opts.SignWith, opts.Comment, body)
		if err := writeFileAtomic(sigPath, detached); err != nil {
			return Result{}, fmt.Errorf("repoindex: writing Packages.sig: %w", err)
		}
		inline := SignInline(opts.SignWith, body)
		if err := writeGzipAtomic(filepath.Join(repoDir, "InPackages.gz"), inline); err != nil {
			return Result{}, fmt.Errorf("repoindex: writing InPackages.gz: %w", err)
		}
	}

	return Result{PackageQty: len(sorted)}, nil
}

// walkBolt returns every *.bolt file under repoDir, relative to repoDir.
func walkBolt(repoDir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".bolt") {
			return nil
		}
		rel, err := filepath.Rel(repoDir, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

// indexOne opens one .bolt as an ar archive, extracts the control member out
// of control.tar.*, and computes the pool file's checksum/size (spec §4.9
// step 2).
func indexOne(repoDir, rel string) (MetaData, error) {
	full := filepath.Join(repoDir, rel)

	data, err := os.ReadFile(full)
	if err != nil {
		return MetaData{}, err
	}
	sum := sha256.Sum256(data)

	members, err := archive.ReadAr(bytes.NewReader(data))
	if err != nil {
		return MetaData{}, err
	}

	control, ok := archive.FindMember(members, "control.tar")
	if !ok {
		return MetaData{}, fmt.Errorf("no control.tar member in %s", rel)
	}
	controlBytes, err := extractControlFile(control)
	if err != nil {
		return MetaData{}, err
	}

	stanza, err := parseStanza(controlBytes)
	if err != nil {
		return MetaData{}, err
	}
	v, err := version.Parse(stanza["Version"])
	if err != nil {
		return MetaData{}, fmt.Errorf("%s: %w", rel, err)
	}

	stanza["Filename"] = rel
	stanza["Size"] = fmt.Sprintf("%d", len(data))
	stanza["SHA256"] = hex.EncodeToString(sum[:])

	return MetaData{
		Name:     stanza["Package"],
		Version:  v,
		Filename: rel,
		Size:     int64(len(data)),
		SHA256:   stanza["SHA256"],
		Stanza:   stanza,
	}, nil
}

// extractControlFile gunzips member's data and reads the "control" entry out
// of the tar stream inside it.
func extractControlFile(member archive.ArMember) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(member.Data))
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", member.Name, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s has no control member", member.Name)
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimPrefix(hdr.Name, "./") == "control" {
			return io.ReadAll(tr)
		}
	}
}

func parseStanza(control []byte) (deb.Stanza, error) {
	reader := deb.NewControlFileReader(bytes.NewReader(control), false, false)
	stanza, err := reader.ReadStanza()
	if err != nil {
		return nil, err
	}
	if stanza == nil {
		return nil, fmt.Errorf("empty control stanza")
	}
	return stanza, nil
}

// sortedMetaData orders entries by (name, version) using §4.1 ordering
// (spec §4.9 step 4 / §5 ordering guarantee).
func sortedMetaData(entries map[string]MetaData) []MetaData {
	out := make([]MetaData, 0, len(entries))
	for _, m := range entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return version.Compare(out[i].Version, out[j].Version) < 0
	})
	return out
}

// renderBlocks concatenates each entry's stanza, blank-line separated, using
// aptly's canonical field-ordering writer (spec §4.9 step 4, §6 output).
func renderBlocks(entries []MetaData) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range entries {
		if err := m.Stanza.WriteTo(&buf, false, false, false); err != nil {
			return nil, err
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// loadExisting parses a prior Packages.gz into {relative filename → MetaData}
// and returns the uncompressed body's SHA-256 (spec §4.9 step 1).
func loadExisting(path string) (map[string]MetaData, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]MetaData{}, "", nil
		}
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = gz.Close() }()

	body, err := io.ReadAll(gz)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(body)

	packages, err := parseBlocks(body)
	if err != nil {
		return nil, "", err
	}

	out := make(map[string]MetaData, len(packages))
	for _, stanza := range packages {
		v, err := version.Parse(stanza["Version"])
		if err != nil {
			continue
		}
		filename := stanza["Filename"]
		size, _ := parseInt64(stanza["Size"])
		out[filename] = MetaData{
			Name:     stanza["Package"],
			Version:  v,
			Filename: filename,
			Size:     size,
			SHA256:   stanza["SHA256"],
			Stanza:   stanza,
		}
	}
	return out, hex.EncodeToString(sum[:]), nil
}

func parseBlocks(body []byte) ([]deb.Stanza, error) {
	reader := deb.NewControlFileReader(bytes.NewReader(body), false, false)
	var out []deb.Stanza
	for {
		stanza, err := reader.ReadStanza()
		if err != nil {
			return nil, err
		}
		if stanza == nil {
			return out, nil
		}
		out = append(out, stanza)
	}
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeGzipAtomic gzip-compresses body and publishes it at path via a
// temporary sibling + rename (spec §4.9 step 4, §5 shared-resource rule).
func writeGzipAtomic(path string, body []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
