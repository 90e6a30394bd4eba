package moysklad

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
)

// findOne runs a filtered collection query and returns the first row.
func findOne[T any](ctx context.Context, c *Client, path, filter string) (*T, error) {
	query := url.Values{}
	query.Set("filter", filter)

	var envelope rowsEnvelope[T]
	if err := c.get(ctx, path, query, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s [%s]", ErrNotFound, path, filter)
	}
	return &envelope.Rows[0], nil
}

// FindOrganizationByINN looks up an own legal entity by tax ID.
func (c *Client) FindOrganizationByINN(ctx context.Context, inn string) (*Organization, error) {
	return findOne[Organization](ctx, c, "entity/organization", "inn="+inn)
}

// FindCounterpartyByINN looks up a counterparty by tax ID.
func (c *Client) FindCounterpartyByINN(ctx context.Context, inn string) (*Counterparty, error) {
	return findOne[Counterparty](ctx, c, "entity/counterparty", "inn="+inn)
}

// CreateCounterparty registers a counterparty from document requisites. The
// company type follows the tax ID length: 12 digits is a sole proprietor,
// which carries no sub-division code.
func (c *Client) CreateCounterparty(ctx context.Context, org document.Organization) (*Counterparty, error) {
	payload := map[string]any{
		"name": org.Name,
		"inn":  org.INN,
	}
	if org.IsSoleProprietor() {
		payload["companyType"] = "individual"
	} else {
		payload["companyType"] = "legal"
		if org.KPP != "" {
			payload["kpp"] = org.KPP
		}
	}
	if org.Address != "" {
		payload["legalAddress"] = org.Address
	}

	var created Counterparty
	if err := c.post(ctx, "entity/counterparty", payload, &created); err != nil {
		return nil, err
	}
	c.logger.Info("counterparty created",
		zap.String("name", created.Name),
		zap.String("inn", org.INN),
	)
	return &created, nil
}

// FindProductByArticle looks up a catalog product by article code.
func (c *Client) FindProductByArticle(ctx context.Context, article string) (*Product, error) {
	return findOne[Product](ctx, c, "entity/product", "article="+article)
}

// FindProductByName looks up a catalog product by exact name.
func (c *Client) FindProductByName(ctx context.Context, name string) (*Product, error) {
	return findOne[Product](ctx, c, "entity/product", "name="+name)
}

// FindAnyService returns the first service catalog entry. A document whose
// goods lines could not be parsed is shipped as one service position carrying
// the document total.
func (c *Client) FindAnyService(ctx context.Context) (*Service, error) {
	query := url.Values{}
	query.Set("limit", "1")

	var envelope rowsEnvelope[Service]
	if err := c.get(ctx, "entity/service", query, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Rows) == 0 {
		return nil, fmt.Errorf("%w: entity/service", ErrNotFound)
	}
	return &envelope.Rows[0], nil
}

// FindStoreByName looks up a warehouse by exact name.
func (c *Client) FindStoreByName(ctx context.Context, name string) (*Store, error) {
	return findOne[Store](ctx, c, "entity/store", "name="+name)
}

// FindProjectByName looks up a project by exact name.
func (c *Client) FindProjectByName(ctx context.Context, name string) (*Project, error) {
	return findOne[Project](ctx, c, "entity/project", "name="+name)
}

// FindInvoiceOutByNumber searches for a sales invoice by the number pulled
// from transfer-document requisites. The number lands in different fields
// depending on how the invoice was registered, so exact name match is tried
// first, then partial name, then the description.
func (c *Client) FindInvoiceOutByNumber(ctx context.Context, number string) (*InvoiceOut, error) {
	if number == "" {
		return nil, fmt.Errorf("%w: entity/invoiceout [no number]", ErrNotFound)
	}

	patterns := []string{
		"name=" + number,
		"name~" + number,
		"description~" + number,
	}
	for _, pattern := range patterns {
		found, err := findOne[InvoiceOut](ctx, c, "entity/invoiceout", pattern)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}

		// Shallow row: fetch the full entity for agent, store and positions.
		var full InvoiceOut
		if err := c.GetByHref(ctx, found.Meta.Href, &full); err != nil {
			return nil, err
		}
		c.logger.Info("sales invoice located",
			zap.String("name", full.Name),
			zap.String("filter", pattern),
		)
		return &full, nil
	}
	return nil, fmt.Errorf("%w: entity/invoiceout [number %s]", ErrNotFound, number)
}

// ProductFolderPath returns the folder path a product belongs to,
// dereferencing the folder entity when the listing did not expand it.
func (c *Client) ProductFolderPath(ctx context.Context, product *Product) (string, error) {
	if product.PathName != "" {
		return product.PathName, nil
	}
	if product.ProductFolder == nil || product.ProductFolder.Meta.Href == "" {
		return "", nil
	}

	var folder struct {
		Name     string `json:"name"`
		PathName string `json:"pathName,omitempty"`
	}
	if err := c.GetByHref(ctx, product.ProductFolder.Meta.Href, &folder); err != nil {
		return "", err
	}
	if folder.PathName != "" {
		return folder.PathName + "/" + folder.Name, nil
	}
	return folder.Name, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
