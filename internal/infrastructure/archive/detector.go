package archive

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/docbridge/backend/internal/domain/document"
)

// sniffLimit bounds how much of each XML file the detector reads.
const sniffLimit = 2048

// commerceNamespace marks CommerceML payloads regardless of text encoding.
const commerceNamespace = "urn:1C.ru:commerceml"

// fiscalMarkers appear near the top of transfer document bodies.
var fiscalMarkers = []string{"СчФакт", "УПД", "СвПрод"}

// Detect classifies the schema of an extracted archive tree.
//
// Order of evidence: a non-manifest XML whose name contains "schet" is a
// commerce invoice; a meta.xml manifest means a transfer flow; otherwise the
// head of each XML file is sniffed for the CommerceML namespace or fiscal
// element names. When nothing matches, TypeUnknown is returned and the
// caller decides the fallback.
func Detect(dir string) (document.Type, error) {
	files, err := listXMLFiles(dir)
	if err != nil {
		return document.TypeUnknown, err
	}

	hasManifest := false
	for _, path := range files {
		base := strings.ToLower(filepath.Base(path))
		switch {
		case base == "meta.xml":
			hasManifest = true
		case base == "card.xml":
		case strings.Contains(base, "schet"):
			return document.TypeCommerce, nil
		}
	}
	if hasManifest {
		return document.TypeTransfer, nil
	}

	for _, path := range files {
		head, err := sniffHead(path)
		if err != nil {
			continue
		}
		if strings.Contains(head, commerceNamespace) {
			return document.TypeCommerce, nil
		}
		for _, marker := range fiscalMarkers {
			if strings.Contains(head, marker) {
				return document.TypeTransfer, nil
			}
		}
	}

	return document.TypeUnknown, nil
}

// listXMLFiles walks the tree and returns every .xml file, any depth.
func listXMLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// sniffHead returns the head of the file both raw and decoded from
// windows-1251, so marker search works for either encoding.
func sniffHead(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLimit)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}
	raw := buf[:n]

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(raw) + "\n" + string(decoded), nil
}
