package processing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
)

// processCommerce runs the commerce-invoice flow: create a sales order and
// the sales invoice billing it, routed to the warehouse and project of the
// dominant product group.
func (s *Service) processCommerce(ctx context.Context, dir string) *ProcessingResult {
	doc, err := s.commerce.Parse(dir)
	if err != nil {
		return s.failureFromError(err)
	}

	if err := s.accounting.VerifyCredentials(ctx); err != nil {
		return s.failureFromError(err)
	}

	org, err := s.accounting.FindOrganizationByINN(ctx, doc.Seller.INN)
	if err != nil {
		if errors.Is(err, moysklad.ErrNotFound) {
			return s.failure(document.CodeOrganization,
				fmt.Sprintf("❌ Организация с ИНН %s не найдена в МойСклад", doc.Seller.INN))
		}
		return s.failureFromError(err)
	}

	agent, err := s.resolveCounterparty(ctx, doc.Buyer)
	if err != nil {
		return s.failureFromError(err)
	}

	positions, products, err := s.resolvePositions(ctx, doc.Items, nil)
	if err != nil {
		return s.failureFromError(err)
	}

	group := s.dominantGroup(ctx, doc.Items, products)
	storeName, projectName := GroupAssignment(group)

	store, err := s.accounting.FindStoreByName(ctx, storeName)
	if err != nil {
		if errors.Is(err, moysklad.ErrNotFound) {
			return s.failure(document.CodeExternalService,
				fmt.Sprintf("❌ Склад %q не найден в МойСклад", storeName))
		}
		return s.failureFromError(err)
	}

	var projectMeta *moysklad.Meta
	project, err := s.accounting.FindProjectByName(ctx, projectName)
	if err != nil {
		// The documents are still valid without the analytics dimension.
		s.logger.Warn("project not resolved, creating documents without it",
			zap.String("project", projectName), zap.Error(err))
	} else {
		projectMeta = &project.Meta
	}

	comment := ItemsComment(doc.Items)

	order, err := s.accounting.CreateCustomerOrder(ctx, moysklad.CustomerOrderInput{
		Name:         "П" + doc.Number,
		Moment:       doc.Date,
		Organization: org.Meta,
		Agent:        agent.Meta,
		Store:        store.Meta,
		Project:      projectMeta,
		Positions:    positions,
		Description:  comment,
	})
	if err != nil {
		return s.failureFromError(err)
	}

	invoice, err := s.accounting.CreateInvoiceOut(ctx, moysklad.InvoiceOutInput{
		Name:          doc.Number,
		Moment:        doc.Date,
		Organization:  org.Meta,
		Agent:         agent.Meta,
		Store:         store.Meta,
		Project:       projectMeta,
		CustomerOrder: &order.Meta,
		Positions:     positions,
		Description:   comment,
	})
	if err != nil {
		return s.failureFromError(err)
	}

	s.logger.Info("commerce invoice processed",
		zap.String("order", order.Name),
		zap.String("invoice", invoice.Name),
		zap.String("group", string(group)),
	)

	return &ProcessingResult{
		Success:      true,
		DocumentType: document.TypeCommerce,
		DocumentID:   invoice.ID,
		DocumentURL:  s.accounting.InvoiceOutURL(invoice.ID),
		Message: commerceReport(doc, order, invoice,
			s.accounting.CustomerOrderURL(order.ID),
			s.accounting.InvoiceOutURL(invoice.ID)),
	}
}

// dominantGroup classifies every resolved product and picks the majority
// bucket. The catalog folder path decides when available; the parsed item
// fields are the fallback.
func (s *Service) dominantGroup(ctx context.Context, items []document.Item, products []*moysklad.Product) ProductGroup {
	groups := make([]ProductGroup, 0, len(items))
	for i, item := range items {
		var folderPath string
		if i < len(products) {
			path, err := s.accounting.ProductFolderPath(ctx, products[i])
			if err != nil {
				s.logger.Warn("product folder lookup failed", zap.Error(err))
			} else {
				folderPath = path
			}
		}
		groups = append(groups, ClassifyProduct(folderPath, item.Name, item.Article))
	}

	group := MajorityGroup(groups)
	s.logger.Debug("product group majority decided",
		zap.String("group", string(group)),
		zap.Int("items", len(groups)),
	)
	return group
}
