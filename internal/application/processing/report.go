package processing

import (
	"fmt"
	"strings"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
	"github.com/docbridge/backend/internal/infrastructure/parse/upd"
)

// ItemsComment renders the audit-trail description attached to created
// documents: one "<article-or-name> - <quantity>" line per item.
func ItemsComment(items []document.Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s - %s", item.Label(), item.Quantity.String()))
	}
	return strings.Join(lines, "\n")
}

// partyLine renders a party with its tax ID when one is known.
func partyLine(icon, role string, org document.Organization) string {
	line := fmt.Sprintf("%s %s: %s", icon, role, org.Name)
	if org.INN != "" {
		line += fmt.Sprintf(" (ИНН: %s)", org.INN)
	}
	return line + "\n"
}

// transferReport builds the operator message for a processed transfer
// document.
func transferReport(parsed *upd.Result, facture *moysklad.FactureOut, demand *moysklad.Demand, factureURL, demandURL string) string {
	doc := parsed.Doc

	var b strings.Builder
	b.WriteString("✅ УПД успешно обработан и загружен в МойСклад!\n\n")

	fmt.Fprintf(&b, "📄 Счет-фактура: %s\n", facture.Name)
	fmt.Fprintf(&b, "📦 Отгрузка: %s\n", demand.Name)
	fmt.Fprintf(&b, "📅 Дата: %s\n\n", doc.Date.Format("02.01.2006"))

	b.WriteString(partyLine("🏢", "Поставщик", doc.Seller))
	b.WriteString(partyLine("🏪", "Покупатель", doc.Buyer))
	b.WriteString("\n")

	if doc.Totals.WithVAT.IsPositive() {
		fmt.Fprintf(&b, "💰 Сумма без НДС: %s ₽\n", doc.Totals.WithoutVAT.StringFixed(2))
		fmt.Fprintf(&b, "🧾 НДС: %s ₽\n", doc.Totals.VAT.StringFixed(2))
		fmt.Fprintf(&b, "💵 Итого с НДС: %s ₽\n\n", doc.Totals.WithVAT.StringFixed(2))
	}

	b.WriteString("🔗 Ссылки в МойСклад:\n")
	fmt.Fprintf(&b, "• Счет-фактура: %s\n", factureURL)
	fmt.Fprintf(&b, "• Отгрузка: %s\n", demandURL)

	if parsed.Manifest.FlowID != "" {
		fmt.Fprintf(&b, "\n🆔 ID документооборота: %s", parsed.Manifest.FlowID)
	}
	return b.String()
}

// commerceReport builds the operator message for a processed commerce
// invoice, including the per-item warehouse and project assignment.
func commerceReport(doc *document.Document, order *moysklad.CustomerOrder, invoice *moysklad.InvoiceOut, orderURL, invoiceURL string) string {
	var b strings.Builder
	b.WriteString("✅ Счет покупателю успешно обработан и загружен в МойСклад!\n\n")

	fmt.Fprintf(&b, "📋 Заказ покупателя: %s\n", order.Name)
	fmt.Fprintf(&b, "💰 Счет покупателю: %s\n", invoice.Name)
	fmt.Fprintf(&b, "📅 Дата: %s\n\n", doc.Date.Format("02.01.2006"))

	b.WriteString(partyLine("🏢", "Продавец", doc.Seller))
	b.WriteString(partyLine("🏪", "Покупатель", doc.Buyer))
	b.WriteString("\n")

	fmt.Fprintf(&b, "💵 Общая сумма: %s ₽\n", doc.Totals.WithVAT.StringFixed(2))
	fmt.Fprintf(&b, "📦 Товарных позиций: %d\n\n", len(doc.Items))

	b.WriteString("🎯 Распределение товаров:\n")
	for _, item := range doc.Items {
		group := ClassifyProduct("", item.Name, item.Article)
		store, project := GroupAssignment(group)

		fmt.Fprintf(&b, "• %s", item.Name)
		if item.Article != "" {
			fmt.Fprintf(&b, " (арт. %s)", item.Article)
		}
		fmt.Fprintf(&b, "\n  └ Группа: %s → Склад: %s, Проект: %s\n", group, store, project)
	}
	b.WriteString("\n")

	b.WriteString("🔗 Ссылки в МойСклад:\n")
	fmt.Fprintf(&b, "• Заказ покупателя: %s\n", orderURL)
	fmt.Fprintf(&b, "• Счет покупателю: %s\n", invoiceURL)
	return b.String()
}
