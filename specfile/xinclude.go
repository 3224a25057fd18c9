package specfile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// xiNamespace is the standard XInclude namespace (spec §4.2(a): "XML load
// with XInclude"). No XInclude library appears anywhere in the retrieval
// pack, so this is a small, justified stdlib-only implementation limited to
// the one shape the specfile format needs: `<xi:include href="…"/>`
// splicing in another well-formed XML fragment in place.
const xiNamespace = "http://www.w3.org/2001/XInclude"

// resolveIncludes reads path and recursively inlines any `xi:include`
// elements found in it, returning the fully-spliced document bytes.
func resolveIncludes(path string, seen map[string]bool) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("%w: circular xi:include on %s", ErrSpecSyntax, abs)
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecSyntax, err)
	}

	return spliceIncludes(data, filepath.Dir(abs), seen)
}

// spliceIncludes performs one token-stream pass over data, replacing every
// `<xi:include href="...">` with the resolved bytes of the referenced file.
func spliceIncludes(data []byte, baseDir string, seen map[string]bool) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out strings.Builder

	for {
		tok, err := dec.RawToken()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			// RawToken leaves the namespace prefix untranslated, so the
			// element is matched by its conventional "xi" prefix.
			if (t.Name.Space == "xi" || t.Name.Space == xiNamespace) && t.Name.Local == "include" {
				href := attrValue(t.Attr, "href")
				if href == "" {
					return nil, fmt.Errorf("%w: xi:include missing href", ErrSpecSyntax)
				}
				included, err := resolveIncludes(filepath.Join(baseDir, href), seen)
				if err != nil {
					return nil, err
				}
				out.Write(included)
				if err := skipToEndOrSelfClosing(dec, t.Name); err != nil {
					return nil, err
				}
				continue
			}
			writeStartElement(&out, t)
		case xml.EndElement:
			out.WriteString("</" + qualifiedName(t.Name) + ">")
		case xml.CharData:
			_ = xml.EscapeText(&out, t)
		case xml.Comment, xml.ProcInst, xml.Directive:
			// dropped: irrelevant to the specfile's data model
		}
	}

	return []byte(out.String()), nil
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Local
}

func writeStartElement(out *strings.Builder, t xml.StartElement) {
	out.WriteString("<" + qualifiedName(t.Name))
	for _, a := range t.Attr {
		out.WriteString(" " + qualifiedName(a.Name) + `="`)
		_ = xml.EscapeText(out, []byte(a.Value))
		out.WriteString(`"`)
	}
	out.WriteString(">")
}

// skipToEndOrSelfClosing consumes tokens until the matching end element for
// an xi:include that was encountered as a StartElement (RawToken always
// reports self-closing elements as Start immediately followed by End).
func skipToEndOrSelfClosing(dec *xml.Decoder, name xml.Name) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.RawToken()
		if err != nil {
			return fmt.Errorf("%w: unterminated xi:include", ErrSpecSyntax)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name == name {
				depth++
			}
		case xml.EndElement:
			if t.Name == name {
				depth--
			}
		}
	}
	return nil
}
