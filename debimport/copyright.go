package debimport

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// CopyrightBlock is one "Files:"-keyed paragraph of a machine-readable
// debian/copyright file (DEP-5), grounded on deb2bolt/copyright.py's
// CopyrightInfo._parse_block/_postprocess_fields.
type CopyrightBlock struct {
	Files       []string
	License     string
	Copyright   string
	LicenseText string
}

// ErrCopyrightFormat is returned when a DEP-5 paragraph cannot be parsed at
// all (stray continuation line with no preceding key).
var ErrCopyrightFormat = fmt.Errorf("debimport: formatting error in debian/copyright")

var copyrightFieldPattern = regexp.MustCompile(`(?s)^(\S+):(.*)$`)

// ParseCopyright reads a debian/copyright file into its per-file license
// blocks plus a table of named license texts referenced by handle. When the
// file isn't in the DEP-5 "Format:"-headed machine-readable form, the whole
// file is wrapped as a single "*" block under a "custom" license, exactly
// as the original importer falls back when it meets a free-form copyright
// file.
func ParseCopyright(path string) ([]CopyrightBlock, map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	text := string(raw)

	if !hasCopyrightFormatHeader(text) {
		return []CopyrightBlock{{
			Files:       []string{"*"},
			License:     "custom",
			LicenseText: strings.TrimRight(text, "\n") + "\n",
		}}, map[string]string{}, nil
	}

	blocks := splitParagraphs(text)
	if len(blocks) > 0 {
		blocks = blocks[1:] // drop the header paragraph (Format:/Upstream-Name:/...)
	}

	var fileBlocks []CopyrightBlock
	licenses := map[string]string{}

	for _, block := range blocks {
		meta, hasFilesKey, err := parseCopyrightBlock(block)
		if err != nil {
			return nil, nil, err
		}
		if meta == nil {
			continue
		}
		if hasFilesKey {
			// A "Files:" paragraph whose entries were all debian/*-only is
			// dropped entirely, not reinterpreted as a license record --
			// mirrors copyright.py's `if files: ... else: if files is not
			// None: continue`.
			if len(meta.Files) > 0 {
				fileBlocks = append(fileBlocks, *meta)
			}
			continue
		}
		if meta.License != "" {
			licenses[meta.License] = meta.LicenseText
		}
	}

	return fileBlocks, licenses, nil
}

func hasCopyrightFormatHeader(text string) bool {
	firstLine, _, _ := strings.Cut(text, "\n")
	key, _, ok := strings.Cut(firstLine, ":")
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(key), "format")
}

// splitParagraphs groups text into blank-line-separated paragraphs, the way
// deb2bolt/copyright.py groups "blocks" before discarding the first.
func splitParagraphs(text string) [][]string {
	var blocks [][]string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// parseCopyrightBlock parses one paragraph's "Key: value" lines, folding
// indented continuation lines into the preceding key's value, then
// post-processes the "files"/"license"/"copyright" fields. hasFilesKey
// reports whether the paragraph declared a "Files:" field at all, which
// ParseCopyright needs to tell a Files-paragraph with nothing left after
// filtering apart from a standalone license-text paragraph.
func parseCopyrightBlock(lines []string) (block *CopyrightBlock, hasFilesKey bool, err error) {
	fields := map[string]string{}
	var key string

	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if m := copyrightFieldPattern.FindStringSubmatch(line); m != nil {
			key = strings.ToLower(strings.TrimSpace(m[1]))
			fields[key] += m[2] + "\n"
			continue
		}
		if key == "" {
			return nil, false, ErrCopyrightFormat
		}
		fields[key] += line + "\n"
	}

	if len(fields) == 0 {
		return nil, false, nil
	}

	block = &CopyrightBlock{}

	if files, ok := fields["files"]; ok {
		hasFilesKey = true
		for _, f := range strings.Fields(files) {
			if strings.HasPrefix(f, "debian/") {
				continue
			}
			block.Files = append(block.Files, f)
		}
	}
	if copyrightNotice, ok := fields["copyright"]; ok {
		block.Copyright = strings.TrimSpace(copyrightNotice)
	}
	if license, ok := fields["license"]; ok {
		summary, text, hasText := strings.Cut(strings.TrimRight(license, "\n"), "\n")
		block.License = strings.TrimSpace(summary)
		if hasText {
			block.LicenseText = dedentLicenseText(text)
		}
	}

	return block, hasFilesKey, nil
}

var licenseBlankLinePattern = regexp.MustCompile(`(?m)^\s*\.\s*$`)

// dedentLicenseText mirrors _postprocess_license_text: a lone "." marks a
// blank line within an indented license body (RFC 822 can't otherwise
// represent one), and the result is trimmed to a single trailing newline.
func dedentLicenseText(text string) string {
	text = licenseBlankLinePattern.ReplaceAllString(text, "")
	return strings.TrimRight(text, "\n \t") + "\n"
}

// RenderCopyrightXML renders the parsed blocks/licenses as a standalone
// <copyright> document (spec §3 supplemented features): debian/copyright
// has no equivalent element in this repo's specfile schema, so the importer
// emits it as a sidecar file next to the generated control.xml rather than
// inventing a new specfile element for a concern spec.md never mentions.
func RenderCopyrightXML(blocks []CopyrightBlock, licenses map[string]string) []byte {
	var buf strings.Builder
	buf.WriteString("<copyright>\n")

	for _, b := range blocks {
		license := b.License
		if license == "" {
			license = "unknown"
		}
		fmt.Fprintf(&buf, "    <files license=%q>\n", license)
		for _, f := range b.Files {
			fmt.Fprintf(&buf, "        <file src=%q/>\n", f)
		}
		if b.Copyright != "" {
			buf.WriteString("        <copyright-notice><![CDATA[\n")
			buf.WriteString(b.Copyright)
			buf.WriteString("\n        ]]></copyright-notice>\n")
		}
		if b.LicenseText != "" {
			buf.WriteString("        <license><![CDATA[\n")
			buf.WriteString(b.LicenseText)
			buf.WriteString("        ]]></license>\n")
		}
		buf.WriteString("    </files>\n")
	}

	for handle, text := range licenses {
		fmt.Fprintf(&buf, "    <license handle=%q><![CDATA[\n", handle)
		buf.WriteString(text)
		buf.WriteString("    ]]></license>\n")
	}

	buf.WriteString("</copyright>\n")
	return []byte(buf.String())
}

// ImportCopyright reads a debian/copyright file and renders it straight to
// the sidecar <copyright> XML form.
func ImportCopyright(path string) ([]byte, error) {
	blocks, licenses, err := ParseCopyright(path)
	if err != nil {
		return nil, err
	}
	return RenderCopyrightXML(blocks, licenses), nil
}
