package moysklad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
)

// DemandInput describes a shipment to create.
type DemandInput struct {
	Name         string
	Moment       time.Time
	Organization Meta
	Agent        Meta
	Store        Meta
	InvoiceOut   *Meta
	Positions    []Position
	Description  string
}

// CreateDemand creates a shipment linked to the sales invoice it fulfils.
func (c *Client) CreateDemand(ctx context.Context, in DemandInput) (*Demand, error) {
	payload := map[string]any{
		"name":         in.Name,
		"moment":       Moment(in.Moment),
		"organization": Ref{Meta: in.Organization},
		"agent":        Ref{Meta: in.Agent},
		"store":        Ref{Meta: in.Store},
		"vatEnabled":   true,
		"vatIncluded":  true,
	}
	if in.InvoiceOut != nil {
		payload["invoicesOut"] = []Ref{{Meta: *in.InvoiceOut}}
	}
	if len(in.Positions) > 0 {
		payload["positions"] = in.Positions
	}
	if in.Description != "" {
		payload["description"] = in.Description
	}

	var created Demand
	if err := c.post(ctx, "entity/demand", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("demand created", zap.String("name", created.Name))
	return &created, nil
}

// FactureOutInput describes an issued tax invoice to create.
type FactureOutInput struct {
	Name         string
	Moment       time.Time
	Organization Meta
	Agent        Meta
	Demand       Meta
}

// CreateFactureOut issues a tax invoice against the shipment.
func (c *Client) CreateFactureOut(ctx context.Context, in FactureOutInput) (*FactureOut, error) {
	payload := map[string]any{
		"name":         in.Name,
		"moment":       Moment(in.Moment),
		"organization": Ref{Meta: in.Organization},
		"agent":        Ref{Meta: in.Agent},
		"demands":      []Ref{{Meta: in.Demand}},
	}

	var created FactureOut
	if err := c.post(ctx, "entity/factureout", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("facture created", zap.String("name", created.Name))
	return &created, nil
}

// CustomerOrderInput describes a sales order to create.
type CustomerOrderInput struct {
	Name         string
	Moment       time.Time
	Organization Meta
	Agent        Meta
	Store        Meta
	Project      *Meta
	Positions    []Position
	Description  string
}

// CreateCustomerOrder creates a sales order.
func (c *Client) CreateCustomerOrder(ctx context.Context, in CustomerOrderInput) (*CustomerOrder, error) {
	payload := map[string]any{
		"name":         in.Name,
		"moment":       Moment(in.Moment),
		"organization": Ref{Meta: in.Organization},
		"agent":        Ref{Meta: in.Agent},
		"store":        Ref{Meta: in.Store},
		"vatEnabled":   true,
		"vatIncluded":  true,
	}
	if in.Project != nil {
		payload["project"] = Ref{Meta: *in.Project}
	}
	if len(in.Positions) > 0 {
		payload["positions"] = in.Positions
	}
	if in.Description != "" {
		payload["description"] = in.Description
	}

	var created CustomerOrder
	if err := c.post(ctx, "entity/customerorder", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("customer order created", zap.String("name", created.Name))
	return &created, nil
}

// InvoiceOutInput describes a sales invoice to create.
type InvoiceOutInput struct {
	Name          string
	Moment        time.Time
	Organization  Meta
	Agent         Meta
	Store         Meta
	Project       *Meta
	CustomerOrder *Meta
	Positions     []Position
	Description   string
}

// CreateInvoiceOut creates a sales invoice, optionally linked to the order
// it bills.
func (c *Client) CreateInvoiceOut(ctx context.Context, in InvoiceOutInput) (*InvoiceOut, error) {
	payload := map[string]any{
		"name":         in.Name,
		"moment":       Moment(in.Moment),
		"organization": Ref{Meta: in.Organization},
		"agent":        Ref{Meta: in.Agent},
		"store":        Ref{Meta: in.Store},
		"vatEnabled":   true,
		"vatIncluded":  true,
	}
	if in.Project != nil {
		payload["project"] = Ref{Meta: *in.Project}
	}
	if in.CustomerOrder != nil {
		payload["customerOrder"] = Ref{Meta: *in.CustomerOrder}
	}
	if len(in.Positions) > 0 {
		payload["positions"] = in.Positions
	}
	if in.Description != "" {
		payload["description"] = in.Description
	}

	var created InvoiceOut
	if err := c.post(ctx, "entity/invoiceout", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("sales invoice created", zap.String("name", created.Name))
	return &created, nil
}

// InvoiceStore extracts the warehouse reference from a sales invoice. A
// shallow entity is re-fetched once by href. An invoice without a store is a
// hard error: shipments cannot be created without one.
func (c *Client) InvoiceStore(ctx context.Context, inv *InvoiceOut) (Meta, error) {
	if inv.Store != nil && inv.Store.Meta.Href != "" {
		return inv.Store.Meta, nil
	}

	if inv.Meta.Href != "" {
		var full InvoiceOut
		if err := c.GetByHref(ctx, inv.Meta.Href, &full); err != nil {
			return Meta{}, err
		}
		if full.Store != nil && full.Store.Meta.Href != "" {
			return full.Store.Meta, nil
		}
	}

	return Meta{}, fmt.Errorf("%w: invoice %s carries no store",
		document.ErrExternalService, inv.Name)
}

// invoicePositionRow is one position as returned inside an invoice entity.
type invoicePositionRow struct {
	Price      float64 `json:"price"`
	Assortment struct {
		Meta    Meta   `json:"meta"`
		Name    string `json:"name"`
		Article string `json:"article"`
	} `json:"assortment"`
}

// InvoicePositionPrices builds a price index from the invoice positions,
// keyed by "article:<code>" and "name:<name>". Prices are kopecks; zero
// entries are kept, the caller decides whether an unpriced line is
// trustworthy. The positions field arrives in one of three shapes: an
// inline array, a rows envelope, or a bare collection reference to
// dereference.
func (c *Client) InvoicePositionPrices(ctx context.Context, inv *InvoiceOut) (map[string]int64, error) {
	rows, err := c.invoicePositionRows(ctx, inv.Positions)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]int64)
	for _, row := range rows {
		assortment := row.Assortment
		if assortment.Name == "" && assortment.Meta.Href != "" {
			if err := c.GetByHref(ctx, assortment.Meta.Href, &assortment); err != nil {
				c.logger.Warn("assortment dereference failed, skipping position", zap.Error(err))
				continue
			}
		}

		price := int64(row.Price)
		if price < 0 {
			continue
		}
		if assortment.Article != "" {
			prices["article:"+assortment.Article] = price
		}
		if assortment.Name != "" {
			prices["name:"+assortment.Name] = price
		}
	}

	c.logger.Debug("invoice price index built", zap.Int("entries", len(prices)))
	return prices, nil
}

func (c *Client) invoicePositionRows(ctx context.Context, raw json.RawMessage) ([]invoicePositionRow, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var inline []invoicePositionRow
	if err := json.Unmarshal(raw, &inline); err == nil {
		return inline, nil
	}

	var envelope struct {
		Rows []invoicePositionRow `json:"rows"`
		Meta Meta                 `json:"meta"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: unrecognized positions shape: %v", document.ErrExternalService, err)
	}
	if envelope.Rows != nil {
		return envelope.Rows, nil
	}
	if envelope.Meta.Href == "" {
		return nil, nil
	}

	var fetched rowsEnvelope[invoicePositionRow]
	if err := c.get(ctx, envelope.Meta.Href, nil, &fetched); err != nil {
		return nil, err
	}
	return fetched.Rows, nil
}
