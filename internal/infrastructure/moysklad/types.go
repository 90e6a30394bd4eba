package moysklad

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Meta identifies an entity inside the accounting service. Every reference
// between documents travels as a meta block.
type Meta struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// Ref wraps a Meta for linking one entity to another in request payloads.
type Ref struct {
	Meta Meta `json:"meta"`
}

// Employee is the API user resolved from the access context.
type Employee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Organization is an own legal entity documents are issued from.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	INN  string `json:"inn"`
	Meta Meta   `json:"meta"`
}

// Counterparty is a customer or supplier record.
type Counterparty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	INN         string `json:"inn"`
	KPP         string `json:"kpp,omitempty"`
	CompanyType string `json:"companyType,omitempty"`
	Meta        Meta   `json:"meta"`
}

// Product is a catalog item. PathName carries the folder path when the
// listing endpoint expands it.
type Product struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Article       string `json:"article,omitempty"`
	PathName      string `json:"pathName,omitempty"`
	Meta          Meta   `json:"meta"`
	ProductFolder *Ref   `json:"productFolder,omitempty"`
}

// Service is a non-goods catalog entry (услуга).
type Service struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// Store is a warehouse.
type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// Project is an analytics dimension attached to created documents.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// InvoiceOut is a sales invoice. Positions stay raw: the service returns
// them as an inline array, a rows envelope, or a bare collection reference
// depending on the expand settings of the query that produced the entity.
type InvoiceOut struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Meta        Meta            `json:"meta"`
	Agent       *Counterparty   `json:"agent,omitempty"`
	Store       *Ref            `json:"store,omitempty"`
	Positions   json.RawMessage `json:"positions,omitempty"`
}

// Demand is a shipment document.
type Demand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// FactureOut is an issued tax invoice.
type FactureOut struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// CustomerOrder is a sales order.
type CustomerOrder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// Position is one line of a created document. Price is in kopecks.
type Position struct {
	Quantity   float64 `json:"quantity"`
	Price      int64   `json:"price"`
	Assortment Ref     `json:"assortment"`
	Vat        int     `json:"vat"`
}

// AccessSummary reports what the configured token can reach.
type AccessSummary struct {
	Employee                Employee
	Organization            Organization
	Organizations           int
	CanCreateInvoices       bool
	CanAccessCounterparties bool
	CanAccessStores         bool
	CanAccessCustomerOrders bool
	Stores                  int
	CustomerOrders          int
}

// rowsEnvelope is the standard collection response shape.
type rowsEnvelope[T any] struct {
	Rows []T `json:"rows"`
}

var vatDigits = regexp.MustCompile(`\d+`)

// VatPercent converts a textual tax rate ("20%", "Без НДС") into the integer
// percentage the API expects. Rates without digits default to 18.
func VatPercent(rate string) int {
	digits := vatDigits.FindString(rate)
	if digits == "" {
		return 18
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 18
	}
	return n
}

// Kopecks converts a ruble amount to the integer kopeck representation the
// API uses for monetary fields. Fractions beyond kopecks are truncated.
func Kopecks(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}
