package upd

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/xmlutil"
)

var digitRun = regexp.MustCompile(`\d+`)

// parseBody parses the fiscal document body. It never fails: any structural
// problem with the body degrades the result to placeholder values, the body
// is supplementary to the manifest and card.
func (p *Parser) parseBody(path string) *document.Document {
	raw, err := os.ReadFile(path)
	if err != nil {
		p.logger.Warn("document body unreadable, using placeholders", zap.Error(err))
		return document.Degraded(time.Now())
	}

	if len(raw) <= degradedBodyThreshold {
		p.logger.Warn("document body holds only an XML prolog, using placeholders",
			zap.Int("size", len(raw)))
		return document.Degraded(time.Now())
	}

	tree, err := xmlutil.LoadBytes(raw)
	if err != nil {
		p.logger.Warn("document body is not well-formed, using placeholders", zap.Error(err))
		return document.Degraded(time.Now())
	}
	root := tree.Root()

	if version := xmlutil.Attr(root, "ВерсФорм"); version != "" && version != "5.03" {
		p.logger.Warn("unexpected transfer document format version", zap.String("version", version))
	}

	doc := &document.Document{Type: document.TypeTransfer}

	header := root.FindElement("//СвСчФакт")
	if header != nil {
		doc.Number = xmlutil.Attr(header, "НомерДок")
		if doc.Number == "" {
			doc.Number = xmlutil.ChildText(header, "НомерСчФ", "НомерДок")
		}
		rawDate := xmlutil.Attr(header, "ДатаДок")
		if rawDate == "" {
			rawDate = xmlutil.ChildText(header, "ДатаСчФ", "ДатаДок")
		}
		if t, ok := parseDocDate(rawDate); ok {
			doc.Date = t
		}
	}
	if doc.Number == "" {
		doc.Number = document.PlaceholderNumber
	}
	if doc.Date.IsZero() {
		doc.Date = time.Now()
	}

	doc.RequisiteNumber = extractRequisiteNumber(root)

	seller, err := parseOrganization(root.FindElement("//СвПрод"), "продавца")
	if err != nil {
		p.logger.Warn("seller not resolvable, using placeholders", zap.Error(err))
		return document.Degraded(doc.Date)
	}
	doc.Seller = seller

	buyer, err := parseOrganization(xmlutil.FindFirst(root, "//ГрузПолуч", "//СвПокуп"), "покупателя")
	if err != nil {
		p.logger.Warn("buyer not resolvable, using placeholders", zap.Error(err))
		return document.Degraded(doc.Date)
	}
	doc.Buyer = buyer

	doc.Items = p.parseItems(root)
	doc.Totals = parseTotals(root)

	return doc
}

// extractRequisiteNumber pulls the referenced sales invoice number out of
// the transfer basis element. Values arrive as free text ("счет №239 от
// 01.02.2024"); only the first digit run identifies the invoice.
func extractRequisiteNumber(root *etree.Element) string {
	el := xmlutil.FindFirst(root, "//СвПродПер/СвПер/ОснПер", "//ОснПер")
	raw := xmlutil.Attr(el, "РеквНомерДок")
	if raw == "" {
		return ""
	}
	if digits := digitRun.FindString(raw); digits != "" {
		return digits
	}
	return raw
}

// parseOrganization resolves a party section: a legal entity first, then a
// sole proprietor. A section without a usable tax ID is an error the caller
// maps to degradation.
func parseOrganization(section *etree.Element, role string) (document.Organization, error) {
	if section == nil {
		return document.Organization{}, fmt.Errorf("%w: %s", document.ErrOrganizationNotResolved, role)
	}

	if legal := xmlutil.FindFirst(section, "ИдСв/СвЮЛУч", ".//СвЮЛУч"); legal != nil {
		org := document.Organization{
			Name: xmlutil.AttrOrChildText(legal, "НаимОрг"),
			INN:  xmlutil.AttrOrChildText(legal, "ИННЮЛ"),
			KPP:  xmlutil.AttrOrChildText(legal, "КПП"),
		}
		if org.Name == "" {
			org.Name = document.PlaceholderName
		}
		if org.INN != "" {
			return org, nil
		}
	}

	if ip := xmlutil.FindFirst(section, "ИдСв/СвИП", ".//СвИП"); ip != nil {
		org := document.Organization{
			INN:  xmlutil.Attr(ip, "ИННФЛ"),
			Name: proprietorName(ip.FindElement("ФИО")),
		}
		if org.INN != "" {
			return org, nil
		}
	}

	return document.Organization{}, fmt.Errorf("%w: %s", document.ErrOrganizationNotResolved, role)
}

// proprietorName assembles a sole proprietor's display name from the name
// parts, skipping blanks.
func proprietorName(fio *etree.Element) string {
	if fio == nil {
		return document.PlaceholderName
	}
	var parts []string
	for _, attr := range []string{"Фамилия", "Имя", "Отчество"} {
		if v := xmlutil.Attr(fio, attr); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return document.PlaceholderName
	}
	name := parts[0]
	for _, part := range parts[1:] {
		name += " " + part
	}
	return name
}

// parseItems reads the goods table. Broken lines are skipped, not fatal.
func (p *Parser) parseItems(root *etree.Element) []document.Item {
	table := root.FindElement("//ТаблСчФакт")
	if table == nil {
		p.logger.Warn("goods table not found in document body")
		return nil
	}

	var items []document.Item
	for i, el := range table.FindElements("СведТов") {
		line := i + 1
		item := document.Item{
			LineNumber:       line,
			Name:             xmlutil.Attr(el, "НаимТов"),
			Quantity:         document.ParseAmount(xmlutil.Attr(el, "КолТов")),
			Price:            document.ParseAmount(xmlutil.Attr(el, "ЦенаТов")),
			AmountWithoutVAT: document.ParseAmount(xmlutil.Attr(el, "СтТовБезНДС")),
			VATRate:          xmlutil.Attr(el, "НалСт"),
			AmountWithVAT:    document.ParseAmount(xmlutil.Attr(el, "СтТовУчНал")),
			Article:          xmlutil.Attr(el.FindElement("ДопСведТов"), "КодТов"),
		}
		if item.Name == "" {
			item.Name = fmt.Sprintf("Товар %d", line)
		}
		if item.Quantity.IsZero() {
			item.Quantity = decimal.NewFromInt(1)
		}
		if item.VATRate == "" {
			item.VATRate = "20%"
		}
		item.VATAmount = document.ParseAmount(xmlutil.ChildText(el, "СумНал/СумНал", ".//СумНал"))
		if item.AmountWithVAT.IsZero() {
			item.AmountWithVAT = item.AmountWithoutVAT.Add(item.VATAmount)
		}

		items = append(items, item)
	}
	return items
}

// parseTotals reads the document-level sums.
func parseTotals(root *etree.Element) document.Totals {
	el := root.FindElement("//ВсегоОпл")
	if el == nil {
		return document.Totals{}
	}
	return document.Totals{
		WithoutVAT: document.ParseAmount(xmlutil.AttrOrChildText(el, "СтТовБезНДСВсего")),
		WithVAT:    document.ParseAmount(xmlutil.AttrOrChildText(el, "СтТовУчНалВсего")),
		VAT:        document.ParseAmount(xmlutil.ChildText(el, "СумНал/СумНал", ".//СумНал")),
	}
}
