// Package xmlutil wraps etree with the lookup helpers the supplier schemas
// need: ranked-path element search, attribute candidates and charset-aware
// document loading. Path matching in etree ignores namespace prefixes, which
// is exactly what the schema variants in the wild require.
package xmlutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
)

// Load reads and parses an XML file. Documents arrive either in UTF-8 or in
// windows-1251 depending on the sender's software.
func Load(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("xmlutil: read %s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("xmlutil: %s has no root element", path)
	}
	return doc, nil
}

// LoadBytes parses an in-memory XML payload with the same settings as Load.
func LoadBytes(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("xmlutil: parse: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("xmlutil: document has no root element")
	}
	return doc, nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "", "utf-8", "utf8":
		return input, nil
	default:
		return nil, fmt.Errorf("xmlutil: unsupported charset %q", charset)
	}
}

// FindFirst returns the first element matched by the ranked path list.
func FindFirst(parent *etree.Element, paths ...string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, p := range paths {
		if el := parent.FindElement(p); el != nil {
			return el
		}
	}
	return nil
}

// Text returns the trimmed text of el, or "" when el is nil.
func Text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// ChildText returns the trimmed text of the first element matched by the
// ranked path list under parent.
func ChildText(parent *etree.Element, paths ...string) string {
	return Text(FindFirst(parent, paths...))
}

// Attr returns the first non-empty attribute among the named candidates.
func Attr(el *etree.Element, names ...string) string {
	if el == nil {
		return ""
	}
	for _, name := range names {
		if v := strings.TrimSpace(el.SelectAttrValue(name, "")); v != "" {
			return v
		}
	}
	return ""
}

// AttrOrChildText looks the value up as an attribute first, then as the text
// of a same-named child element. Schema revisions moved several fields
// between the two forms.
func AttrOrChildText(el *etree.Element, names ...string) string {
	if el == nil {
		return ""
	}
	if v := Attr(el, names...); v != "" {
		return v
	}
	for _, name := range names {
		if v := Text(el.FindElement(name)); v != "" {
			return v
		}
	}
	return ""
}
