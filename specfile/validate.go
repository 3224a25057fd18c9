package specfile

import (
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"github.com/boltpack/boltpack/version"
)

// ErrSpecSyntax covers structural/attribute-format violations (spec §7
// SpecSyntaxError): a missing RELAX-NG schema in this pure-Go rendition is
// replaced by the explicit field checks below.
var ErrSpecSyntax = fmt.Errorf("specfile: invalid document")

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*$`)

func validateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %s name %q is not a valid package name", ErrSpecSyntax, kind, name)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email %q: %v", ErrSpecSyntax, email, err)
	}
	return nil
}

func validateDate(date string) error {
	_, err := parseRFC2822(date)
	return err
}

func parseRFC2822(date string) (time.Time, error) {
	t, err := mail.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid RFC 2822 date %q: %v", ErrSpecSyntax, date, err)
	}
	return t, nil
}

func validateStrip(strip int) error {
	if strip < 0 {
		return fmt.Errorf("%w: strip count %d must be non-negative", ErrSpecSyntax, strip)
	}
	return nil
}

func validateVersion(v string) (version.Version, error) {
	parsed, err := version.Parse(v)
	if err != nil {
		return version.Version{}, fmt.Errorf("%w: %v", ErrSpecSyntax, err)
	}
	return parsed, nil
}
