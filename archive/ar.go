package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/blakesmith/ar"
)

// ArMember is one SVR4 ar container member (spec §4.8/§6: debian-binary,
// control.tar.gz, data.tar.gz in that fixed order).
type ArMember struct {
	Name    string
	Mode    int64
	ModTime time.Time
	Data    []byte
}

// WriteAr writes members to w as an SVR4 ar archive, uid/gid 0 and in the
// exact order given — callers are responsible for ordering per spec §4.8
// (P3: debian-binary, control.tar.gz, data.tar.gz).
func WriteAr(w io.Writer, members []ArMember) error {
	aw := ar.NewWriter(w)
	if err := aw.WriteGlobalHeader(); err != nil {
		return fmt.Errorf("archive: ar global header: %w", err)
	}

	for _, m := range members {
		hdr := &ar.Header{
			Name:    m.Name,
			ModTime: m.ModTime.Unix(),
			Uid:     0,
			Gid:     0,
			Mode:    m.Mode,
			Size:    int64(len(m.Data)),
		}
		if err := aw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("archive: ar header %s: %w", m.Name, err)
		}
		if _, err := aw.Write(m.Data); err != nil {
			return fmt.Errorf("archive: ar data %s: %w", m.Name, err)
		}
	}

	return nil
}

// ReadAr reads every member of an SVR4 ar archive into memory, preserving
// order, for use by the repository indexer (spec §4.9) which needs random
// access to the control.tar.* member of each pool file.
func ReadAr(r io.Reader) ([]ArMember, error) {
	ar_ := ar.NewReader(r)
	var members []ArMember

	for {
		hdr, err := ar_.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: reading ar header: %w", err)
		}

		data, err := io.ReadAll(ar_)
		if err != nil {
			return nil, fmt.Errorf("archive: reading ar member %s: %w", hdr.Name, err)
		}

		members = append(members, ArMember{
			Name:    hdr.Name,
			Mode:    hdr.Mode,
			ModTime: time.Unix(hdr.ModTime, 0),
			Data:    data,
		})
	}

	return members, nil
}

// FindMember returns the first member whose name has the given prefix
// (e.g. "control.tar" matches "control.tar.gz"), or false if none match.
func FindMember(members []ArMember, prefix string) (ArMember, bool) {
	for _, m := range members {
		if len(m.Name) >= len(prefix) && m.Name[:len(prefix)] == prefix {
			return m, true
		}
	}
	return ArMember{}, false
}
