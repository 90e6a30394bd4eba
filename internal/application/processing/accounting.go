package processing

import (
	"context"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
)

// Accounting is the slice of the external accounting service the document
// flows depend on.
type Accounting interface {
	VerifyCredentials(ctx context.Context) error

	FindOrganizationByINN(ctx context.Context, inn string) (*moysklad.Organization, error)
	FindCounterpartyByINN(ctx context.Context, inn string) (*moysklad.Counterparty, error)
	CreateCounterparty(ctx context.Context, org document.Organization) (*moysklad.Counterparty, error)

	FindProductByArticle(ctx context.Context, article string) (*moysklad.Product, error)
	FindProductByName(ctx context.Context, name string) (*moysklad.Product, error)
	FindAnyService(ctx context.Context) (*moysklad.Service, error)
	ProductFolderPath(ctx context.Context, product *moysklad.Product) (string, error)

	FindStoreByName(ctx context.Context, name string) (*moysklad.Store, error)
	FindProjectByName(ctx context.Context, name string) (*moysklad.Project, error)

	FindInvoiceOutByNumber(ctx context.Context, number string) (*moysklad.InvoiceOut, error)
	InvoiceStore(ctx context.Context, inv *moysklad.InvoiceOut) (moysklad.Meta, error)
	InvoicePositionPrices(ctx context.Context, inv *moysklad.InvoiceOut) (map[string]int64, error)

	CreateDemand(ctx context.Context, in moysklad.DemandInput) (*moysklad.Demand, error)
	CreateFactureOut(ctx context.Context, in moysklad.FactureOutInput) (*moysklad.FactureOut, error)
	CreateCustomerOrder(ctx context.Context, in moysklad.CustomerOrderInput) (*moysklad.CustomerOrder, error)
	CreateInvoiceOut(ctx context.Context, in moysklad.InvoiceOutInput) (*moysklad.InvoiceOut, error)

	FactureOutURL(id string) string
	DemandURL(id string) string
	CustomerOrderURL(id string) string
	InvoiceOutURL(id string) string
}

var _ Accounting = (*moysklad.Client)(nil)
