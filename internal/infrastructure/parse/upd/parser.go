// Package upd parses universal transfer document (UPD) archives: a meta.xml
// manifest, an operator card and the fiscal document body it points to.
package upd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/xmlutil"
)

// degradedBodyThreshold is the content length below which a document body is
// considered an empty shell (XML prolog only). Such flows still process: the
// manifest and card remain authoritative and the body degrades to
// placeholder values.
const degradedBodyThreshold = 100

// Result is a fully parsed transfer document flow.
type Result struct {
	Manifest document.Manifest
	Card     document.Card
	Doc      *document.Document
}

// Parser parses extracted transfer document archives.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a transfer document parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse reads the archive tree rooted at dir. Structural problems (missing
// manifest, missing referenced files) are hard errors; unusable document
// bodies degrade to placeholder values instead.
func (p *Parser) Parse(dir string) (*Result, error) {
	manifest, err := p.parseManifest(dir)
	if err != nil {
		return nil, err
	}

	card, err := p.parseCard(filepath.Join(dir, manifest.CardPath))
	if err != nil {
		return nil, err
	}

	bodyPath := filepath.Join(dir, manifest.MainImagePath)
	if _, err := os.Stat(bodyPath); err != nil {
		return nil, fmt.Errorf("%w: document body %q", document.ErrPrincipalNotFound, manifest.MainImagePath)
	}

	doc := p.parseBody(bodyPath)

	p.logger.Info("transfer document parsed",
		zap.String("flow_id", manifest.FlowID),
		zap.String("number", doc.Number),
		zap.String("seller_inn", doc.Seller.INN),
		zap.String("buyer_inn", doc.Buyer.INN),
		zap.Int("items", len(doc.Items)),
	)

	return &Result{Manifest: *manifest, Card: *card, Doc: doc}, nil
}

// parseManifest reads meta.xml at the archive root.
func (p *Parser) parseManifest(dir string) (*document.Manifest, error) {
	path := filepath.Join(dir, "meta.xml")
	if _, err := os.Stat(path); err != nil {
		return nil, document.ErrManifestMissing
	}

	doc, err := xmlutil.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: meta.xml: %v", document.ErrManifestIncomplete, err)
	}
	root := doc.Root()

	flow := root.FindElement("//DocFlow")
	if flow == nil {
		return nil, fmt.Errorf("%w: DocFlow element", document.ErrManifestIncomplete)
	}
	flowID := xmlutil.Attr(flow, "Id")
	if flowID == "" {
		return nil, fmt.Errorf("%w: DocFlow Id attribute", document.ErrManifestIncomplete)
	}

	mainPath := xmlutil.Attr(root.FindElement("//MainImage"), "Path")
	cardPath := xmlutil.Attr(root.FindElement("//ExternalCard"), "Path")
	if mainPath == "" || cardPath == "" {
		return nil, fmt.Errorf("%w: MainImage/ExternalCard paths", document.ErrManifestIncomplete)
	}

	return &document.Manifest{
		FlowID:        flowID,
		MainImagePath: mainPath,
		CardPath:      cardPath,
	}, nil
}

// parseCard reads the operator card referenced by the manifest.
func (p *Parser) parseCard(path string) (*document.Card, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: card file %q", document.ErrManifestIncomplete, filepath.Base(path))
	}

	doc, err := xmlutil.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: card: %v", document.ErrManifestIncomplete, err)
	}
	root := doc.Root()

	card := &document.Card{
		ExternalID: xmlutil.Attr(root.FindElement("//Identifiers"), "ExternalIdentifier"),
	}

	if desc := root.FindElement("//Description"); desc != nil {
		card.Title = xmlutil.Attr(desc, "Title")
		card.Date = parseCardDate(xmlutil.Attr(desc, "Date"))
	} else {
		card.Date = time.Now()
	}

	if abonent := xmlutil.FindFirst(root, "//Sender//Abonent", "//Abonent"); abonent != nil {
		card.Sender = document.Organization{
			Name: xmlutil.Attr(abonent, "Name"),
			INN:  xmlutil.Attr(abonent, "Inn"),
			KPP:  xmlutil.Attr(abonent, "Kpp"),
		}
	}

	return card, nil
}

// parseCardDate accepts the loose ISO variants operator software emits.
func parseCardDate(raw string) time.Time {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	raw = strings.ReplaceAll(raw, "T", " ")
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Now()
}

// parseDocDate accepts the two date layouts seen in document bodies.
func parseDocDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
