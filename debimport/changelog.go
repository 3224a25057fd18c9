package debimport

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ChangelogEntry is the header + trailer of one debian/changelog stanza
// (spec §6 <release> attributes).
type ChangelogEntry struct {
	Source       string
	Epoch        string
	Upstream     string
	Revision     string
	Distribution string
	Maintainer   string
	Email        string
	Date         string // RFC 2822, copied verbatim from the trailer line
}

var headerPattern = regexp.MustCompile(`^(\S+) \(([^)]+)\) ([^;]+);`)
var trailerPattern = regexp.MustCompile(`^ -- (.+?)  (.+)$`)

// ParseChangelogHead parses only the first (most recent) entry of a
// debian/changelog file: its header line and its "-- maintainer  date"
// trailer, which is all a new specfile's <changelog><release> needs.
func ParseChangelogHead(path string) (*ChangelogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	var entry ChangelogEntry
	haveHeader := false

	for scanner.Scan() {
		line := scanner.Text()

		if !haveHeader {
			m := headerPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			entry.Source = m[1]
			entry.Epoch, entry.Upstream, entry.Revision = splitVersion(m[2])
			entry.Distribution = strings.TrimSpace(m[3])
			haveHeader = true
			continue
		}

		if m := trailerPattern.FindStringSubmatch(line); m != nil {
			name, email := splitNameEmail(m[1])
			entry.Maintainer = name
			entry.Email = email
			entry.Date = strings.TrimSpace(m[2])
			return &entry, scanner.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !haveHeader {
		return nil, fmt.Errorf("debimport: %s: no changelog entry header found", path)
	}
	return nil, fmt.Errorf("debimport: %s: entry has no maintainer trailer line", path)
}

// splitVersion splits a Debian version string "[epoch:]upstream[-revision]"
// into its three parts without validating grammar (validation happens later,
// in specfile.Load, once the importer's XML round-trips through it).
func splitVersion(s string) (epoch, upstream, revision string) {
	rest := s
	if idx := strings.IndexByte(rest, ':'); idx != -1 {
		epoch = rest[:idx]
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndexByte(rest, '-'); idx != -1 {
		upstream = rest[:idx]
		revision = rest[idx+1:]
	} else {
		upstream = rest
	}
	return epoch, upstream, revision
}

var nameEmailPattern = regexp.MustCompile(`^(.*?)\s*<([^>]+)>\s*$`)

func splitNameEmail(s string) (name, email string) {
	if m := nameEmailPattern.FindStringSubmatch(s); m != nil {
		return m[1], m[2]
	}
	return s, ""
}
