// Package commerceml parses customer invoices exported in the CommerceML 2
// exchange format.
package commerceml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/xmlutil"
)

// productIDRequisite names the exchange requisite that carries the internal
// product identifier tabular rows are keyed by.
const productIDRequisite = "Для1С_Идентификатор"

// Parser parses extracted CommerceML archives.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a CommerceML parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse locates the principal invoice file in the archive tree and parses it
// into the canonical document form.
func (p *Parser) Parse(dir string) (*document.Document, error) {
	path, err := findPrincipal(dir)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("principal invoice file located", zap.String("file", filepath.Base(path)))

	tree, err := xmlutil.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrDocumentParsing, err)
	}
	root := tree.Root()

	docEl := root.FindElement("//Документ")
	if docEl == nil {
		return nil, fmt.Errorf("%w: element Документ", document.ErrDocumentParsing)
	}

	number := xmlutil.ChildText(docEl, "Номер")
	if number == "" {
		return nil, fmt.Errorf("%w: Номер", document.ErrRequiredField)
	}

	dateStr := xmlutil.ChildText(docEl, "Дата")
	if dateStr == "" {
		return nil, fmt.Errorf("%w: Дата", document.ErrRequiredField)
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", document.ErrDocumentParsing, dateStr)
	}

	total := document.ParseAmount(xmlutil.ChildText(docEl, "Сумма"))

	seller, buyer, err := parseContractors(docEl)
	if err != nil {
		return nil, err
	}

	items := p.parseItems(root, docEl, total)

	doc := &document.Document{
		Type:   document.TypeCommerce,
		Number: number,
		Date:   date,
		Seller: seller,
		Buyer:  buyer,
		Items:  items,
		Totals: document.Totals{WithVAT: total},
	}

	p.logger.Info("commerce invoice parsed",
		zap.String("number", number),
		zap.String("buyer_inn", buyer.INN),
		zap.Int("items", len(items)),
	)
	return doc, nil
}

// findPrincipal walks the tree for the invoice file: an .xml whose name
// contains the exchange keyword, excluding the manifest and card.
func findPrincipal(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return err
		}
		base := strings.ToLower(filepath.Base(path))
		if strings.HasSuffix(base, ".xml") &&
			base != "meta.xml" && base != "card.xml" &&
			strings.Contains(base, "schet") {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("commerceml: scan archive: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: no invoice XML in archive", document.ErrPrincipalNotFound)
	}
	return found, nil
}

// parseContractors reads the document parties. The contractor Ид field packs
// the tax ID and sub-division code as "<inn>_<kpp>".
func parseContractors(docEl *etree.Element) (seller, buyer document.Organization, err error) {
	var haveSeller, haveBuyer bool

	for _, el := range docEl.FindElements(".//Контрагент") {
		role := xmlutil.ChildText(el, "Роль")

		var inn, kpp string
		if id := xmlutil.ChildText(el, "Ид"); id != "" {
			parts := strings.SplitN(id, "_", 2)
			inn = parts[0]
			if len(parts) > 1 {
				kpp = parts[1]
			}
		}

		name := xmlutil.ChildText(el, "Наименование", "ПолноеНаименование")
		if name == "" {
			name = fmt.Sprintf("Контрагент (%s)", role)
		}
		if inn == "" {
			inn = document.PlaceholderINN
		}

		org := document.Organization{Name: name, INN: inn, KPP: kpp}
		switch role {
		case "Продавец":
			seller, haveSeller = org, true
		case "Покупатель":
			buyer, haveBuyer = org, true
		}
	}

	if !haveSeller {
		return seller, buyer, document.ErrSellerNotFound
	}
	if !haveBuyer {
		return seller, buyer, document.ErrBuyerNotFound
	}
	return seller, buyer, nil
}

// catalogEntry is one Товар element of the exchange catalog.
type catalogEntry struct {
	id         string
	name       string
	article    string
	el         *etree.Element
	hasPricing bool
}

// parseCatalog indexes catalog products by their exchange identifier,
// falling back to the product name as the key.
func parseCatalog(root *etree.Element) []catalogEntry {
	var entries []catalogEntry
	for _, el := range root.FindElements("//Товар") {
		entry := catalogEntry{
			name:    xmlutil.ChildText(el, "Наименование"),
			article: xmlutil.ChildText(el, "Артикул"),
			el:      el,
		}
		for _, req := range el.FindElements("ЗначенияРеквизитов/ЗначениеРеквизита") {
			if xmlutil.ChildText(req, "Наименование") == productIDRequisite {
				entry.id = strings.ReplaceAll(xmlutil.ChildText(req, "Значение"), "##", "")
				break
			}
		}
		if entry.id == "" {
			entry.id = entry.name
		}
		if entry.id == "" {
			// A row-level Товар reference, not a catalog product.
			continue
		}
		entry.hasPricing = xmlutil.ChildText(el, "ЦенаЗаЕдиницу") != "" ||
			xmlutil.ChildText(el, "Сумма") != ""
		entries = append(entries, entry)
	}
	return entries
}

// parseItems applies the three-tier item strategy: tabular rows keyed to the
// catalog, then product-level pricing, then an even split of the document
// total across cataloged products.
func (p *Parser) parseItems(root, docEl *etree.Element, total decimal.Decimal) []document.Item {
	catalog := parseCatalog(root)
	index := make(map[string]catalogEntry, len(catalog))
	for _, entry := range catalog {
		index[entry.id] = entry
	}

	if items := parseTabularRows(docEl, index); len(items) > 0 {
		return items
	}
	if len(catalog) == 0 {
		p.logger.Warn("no tabular section and no catalog products in invoice")
		return nil
	}

	for _, entry := range catalog {
		if entry.hasPricing {
			p.logger.Debug("no tabular section, using product-level pricing")
			return parseProductPricing(catalog)
		}
	}

	p.logger.Warn("no per-item pricing in invoice, splitting total evenly",
		zap.Int("products", len(catalog)),
		zap.String("total", total.StringFixed(2)),
	)
	return splitTotalEvenly(catalog, total)
}

// parseTabularRows reads СтрокаТабличнойЧасти rows (tier one).
func parseTabularRows(docEl *etree.Element, index map[string]catalogEntry) []document.Item {
	table := docEl.FindElement("ТабличнаяЧасть")
	if table == nil {
		return nil
	}

	var items []document.Item
	for i, row := range table.FindElements("СтрокаТабличнойЧасти") {
		line := i + 1

		entry, ok := index[xmlutil.ChildText(row, "Товар")]
		name := entry.name
		if !ok || name == "" {
			name = fmt.Sprintf("Товар %d", line)
		}

		item := document.Item{
			LineNumber:       line,
			Name:             name,
			Article:          entry.article,
			Quantity:         decimalOrDefault(xmlutil.ChildText(row, "Количество"), decimal.NewFromInt(1)),
			Price:            document.ParseAmount(xmlutil.ChildText(row, "Цена")),
			AmountWithoutVAT: document.ParseAmount(xmlutil.ChildText(row, "Сумма")),
			VATRate:          xmlutil.ChildText(row, "СтавкаНДС"),
			VATAmount:        document.ParseAmount(xmlutil.ChildText(row, "СуммаНДС")),
		}
		if raw := xmlutil.ChildText(row, "Всего"); raw != "" {
			item.AmountWithVAT = document.ParseAmount(raw)
		} else {
			item.AmountWithVAT = item.AmountWithoutVAT.Add(item.VATAmount)
		}

		items = append(items, item)
	}
	return items
}

// parseProductPricing derives items from catalog product fields (tier two).
func parseProductPricing(catalog []catalogEntry) []document.Item {
	var items []document.Item
	for i, entry := range catalog {
		line := i + 1

		vatRate := "20%"
		vatAmount := decimal.Zero
		if tax := entry.el.FindElement("Налоги/Налог"); tax != nil {
			if rate := xmlutil.ChildText(tax, "Ставка"); rate != "" {
				vatRate = rate + "%"
			}
			vatAmount = document.ParseAmount(xmlutil.ChildText(tax, "Сумма"))
		}

		withoutVAT := document.ParseAmount(xmlutil.ChildText(entry.el, "Сумма"))
		if vatAmount.IsPositive() {
			withoutVAT = withoutVAT.Sub(vatAmount)
		}

		name := entry.name
		if name == "" {
			name = fmt.Sprintf("Товар %d", line)
		}

		items = append(items, document.Item{
			LineNumber:       line,
			Name:             name,
			Article:          entry.article,
			Quantity:         decimalOrDefault(xmlutil.ChildText(entry.el, "Количество"), decimal.NewFromInt(1)),
			Price:            document.ParseAmount(xmlutil.ChildText(entry.el, "ЦенаЗаЕдиницу")),
			AmountWithoutVAT: withoutVAT,
			VATRate:          vatRate,
			VATAmount:        vatAmount,
			AmountWithVAT:    withoutVAT.Add(vatAmount),
		})
	}
	return items
}

// splitTotalEvenly distributes the document total across the cataloged
// products at an assumed 20% tax rate (tier three, degraded accuracy).
func splitTotalEvenly(catalog []catalogEntry, total decimal.Decimal) []document.Item {
	share := total.Div(decimal.NewFromInt(int64(len(catalog)))).Round(2)
	vat := share.Mul(decimal.NewFromFloat(0.2)).Round(2)

	var items []document.Item
	for i, entry := range catalog {
		line := i + 1
		name := entry.name
		if name == "" {
			name = fmt.Sprintf("Товар %d", line)
		}
		items = append(items, document.Item{
			LineNumber:       line,
			Name:             name,
			Article:          entry.article,
			Quantity:         decimal.NewFromInt(1),
			Price:            share,
			AmountWithoutVAT: share,
			VATRate:          "20%",
			VATAmount:        vat,
			AmountWithVAT:    share.Add(vat),
		})
	}
	return items
}

// decimalOrDefault parses raw, returning def when the field is absent.
func decimalOrDefault(raw string, def decimal.Decimal) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return document.ParseAmount(raw)
}
