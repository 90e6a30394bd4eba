package processing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
)

// processTransfer runs the transfer-document flow: issue a shipment against
// the previously created sales invoice, then the tax invoice against the
// shipment.
func (s *Service) processTransfer(ctx context.Context, dir string) *ProcessingResult {
	parsed, err := s.transfer.Parse(dir)
	if err != nil {
		return s.failureFromError(err)
	}
	doc := parsed.Doc

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

	invoice, err := s.accounting.FindInvoiceOutByNumber(ctx, doc.RequisiteNumber)
	if err != nil {
		if errors.Is(err, moysklad.ErrNotFound) {
			return s.failure(document.CodeExternalService,
				fmt.Sprintf("❌ Счет с номером %q не найден в МойСклад, отгрузку не к чему привязать",
					doc.RequisiteNumber))
		}
		return s.failureFromError(err)
	}

	store, err := s.accounting.InvoiceStore(ctx, invoice)
	if err != nil {
		return s.failureFromError(err)
	}

	prices, err := s.accounting.InvoicePositionPrices(ctx, invoice)
	if err != nil {
		// The parsed prices carry the flow when the index cannot be built.
		s.logger.Warn("invoice price index unavailable", zap.Error(err))
		prices = nil
	}

	positions, _, err := s.resolvePositions(ctx, doc.Items, prices)
	if err != nil {
		return s.failureFromError(err)
	}
	if len(positions) == 0 {
		positions, err = s.totalAsServicePosition(ctx, doc)
		if err != nil {
			return s.failureFromError(err)
		}
	}

	demand, err := s.accounting.CreateDemand(ctx, moysklad.DemandInput{
		Name:         "О" + doc.Number,
		Moment:       doc.Date,
		Organization: org.Meta,
		Agent:        agent.Meta,
		Store:        store,
		InvoiceOut:   &invoice.Meta,
		Positions:    positions,
		Description:  ItemsComment(doc.Items),
	})
	if err != nil {
		return s.failureFromError(err)
	}

	facture, err := s.accounting.CreateFactureOut(ctx, moysklad.FactureOutInput{
		Name:         doc.Number,
		Moment:       doc.Date,
		Organization: org.Meta,
		Agent:        agent.Meta,
		Demand:       demand.Meta,
	})
	if err != nil {
		return s.failureFromError(err)
	}

	s.logger.Info("transfer document processed",
		zap.String("facture", facture.Name),
		zap.String("demand", demand.Name),
	)

	return &ProcessingResult{
		Success:      true,
		DocumentType: document.TypeTransfer,
		DocumentID:   facture.ID,
		DocumentURL:  s.accounting.FactureOutURL(facture.ID),
		Message: transferReport(parsed, facture, demand,
			s.accounting.FactureOutURL(facture.ID),
			s.accounting.DemandURL(demand.ID)),
	}
}

// totalAsServicePosition covers documents without usable goods lines, the
// degraded-body case included: the shipment still has to carry the document
// amount, so it goes out as a single service position at the tax-inclusive
// total. Without a single service in the catalog the document cannot be
// represented at all.
func (s *Service) totalAsServicePosition(ctx context.Context, doc *document.Document) ([]moysklad.Position, error) {
	svc, err := s.accounting.FindAnyService(ctx)
	if err != nil {
		if errors.Is(err, moysklad.ErrNotFound) {
			return nil, fmt.Errorf("%w: в документе нет товарных позиций, а в МойСклад нет ни одной услуги, чтобы провести сумму документа. Создайте услугу и повторите загрузку", document.ErrExternalService)
		}
		return nil, err
	}

	s.logger.Warn("no goods lines parsed, shipping the document total as a service position",
		zap.String("service", svc.Name),
		zap.String("total", doc.Totals.WithVAT.String()),
	)
	return []moysklad.Position{{
		Quantity:   1,
		Price:      moysklad.Kopecks(doc.Totals.WithVAT),
		Assortment: moysklad.Ref{Meta: svc.Meta},
		Vat:        moysklad.VatPercent(""),
	}}, nil
}
