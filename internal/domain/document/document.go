package document

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies which supplier schema an archive carries.
type Type int

const (
	TypeUnknown Type = iota
	TypeTransfer
	TypeCommerce
)

// String implements fmt.Stringer
func (t Type) String() string {
	switch t {
	case TypeTransfer:
		return "transfer"
	case TypeCommerce:
		return "commerce"
	default:
		return "unknown"
	}
}

// Organization is a party to a document (seller or buyer)
type Organization struct {
	Name    string
	INN     string
	KPP     string
	Address string
}

// IsSoleProprietor reports whether the tax ID identifies an individual
// entrepreneur (12 digits) rather than a legal entity (10 digits).
func (o Organization) IsSoleProprietor() bool {
	return len(o.INN) == 12
}

// Item is one goods line of a parsed document.
// Monetary fields are in major currency units.
type Item struct {
	LineNumber       int
	Name             string
	Article          string
	Quantity         decimal.Decimal
	Price            decimal.Decimal
	AmountWithoutVAT decimal.Decimal
	VATRate          string
	VATAmount        decimal.Decimal
	AmountWithVAT    decimal.Decimal
}

// Label returns the article when present, otherwise the item name.
func (i Item) Label() string {
	if strings.TrimSpace(i.Article) != "" {
		return i.Article
	}
	return i.Name
}

// Totals holds document-level sums.
type Totals struct {
	WithoutVAT decimal.Decimal
	VAT        decimal.Decimal
	WithVAT    decimal.Decimal
}

// Manifest is the archive-level manifest of a transfer document flow.
type Manifest struct {
	FlowID        string
	MainImagePath string
	CardPath      string
}

// Card carries the operator card accompanying a transfer document.
type Card struct {
	ExternalID string
	Title      string
	Date       time.Time
	Sender     Organization
}

// Document is the canonical parsed form both schemas converge to.
type Document struct {
	Type   Type
	Number string
	Date   time.Time

	// RequisiteNumber is the number of the prior sales invoice the
	// document refers to (digits only). Empty for commerce documents.
	RequisiteNumber string

	Seller Organization
	Buyer  Organization
	Items  []Item
	Totals Totals
}

// ParseAmount parses a human-entered numeric string into a decimal.
// Comma decimal separators and grouping spaces are tolerated; anything
// unparseable yields zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Placeholder values used when a degraded transfer document body cannot be
// parsed. Downstream treats them as ordinary field values.
const (
	PlaceholderNumber = "Не указан"
	PlaceholderName   = "Не указано"
	PlaceholderINN    = "0000000000"
)

// Degraded returns the sentinel document produced when the main body of a
// transfer flow is unusable. The manifest and card remain authoritative.
func Degraded(date time.Time) *Document {
	org := Organization{Name: PlaceholderName, INN: PlaceholderINN}
	return &Document{
		Type:   TypeTransfer,
		Number: PlaceholderNumber,
		Date:   date,
		Seller: org,
		Buyer:  org,
	}
}
