// Package processing orchestrates the archive-to-ledger flow: extract,
// detect, parse, then create the linked records in the accounting service.
package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/archive"
	"github.com/docbridge/backend/internal/infrastructure/config"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
	"github.com/docbridge/backend/internal/infrastructure/parse/commerceml"
	"github.com/docbridge/backend/internal/infrastructure/parse/upd"
)

// ProcessingResult is the terminal outcome of one archive. Message is the
// operator-facing report relayed verbatim by the front-end adapter.
type ProcessingResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	ErrorCode    string        `json:"error_code,omitempty"`
	DocumentType document.Type `json:"-"`
	DocumentID   string        `json:"document_id,omitempty"`
	DocumentURL  string        `json:"document_url,omitempty"`
}

// Service processes uploaded supplier archives end to end.
type Service struct {
	cfg        *config.Config
	logger     *zap.Logger
	extractor  *archive.Extractor
	transfer   *upd.Parser
	commerce   *commerceml.Parser
	accounting Accounting
}

// NewService creates the archive processing service.
func NewService(cfg *config.Config, accounting Accounting, logger *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		extractor:  archive.NewExtractor(cfg.Archive.TempDir, logger),
		transfer:   upd.NewParser(logger),
		commerce:   commerceml.NewParser(logger),
		accounting: accounting,
	}
}

// ProcessArchive runs one archive through the full flow. It always returns
// a result, never panics outward, and removes every scratch artifact on all
// exit paths.
func (s *Service) ProcessArchive(ctx context.Context, content []byte, filename string) (result *ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing archive", zap.Any("panic", r))
			result = s.failure(document.CodeUnexpected,
				fmt.Sprintf("❌ Неожиданная ошибка:\n%v", r))
		}
	}()

	s.logger.Info("processing archive",
		zap.String("filename", filename),
		zap.Int("size", len(content)),
	)

	if int64(len(content)) > s.cfg.Archive.MaxFileSize {
		return s.failure(document.CodeFileTooLarge,
			fmt.Sprintf("❌ Файл слишком большой. Максимальный размер: %d МБ",
				s.cfg.Archive.MaxFileSize/1024/1024))
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return s.failure(document.CodeInvalidFileType,
			"❌ Поддерживаются только ZIP архивы с документами")
	}

	scratch, err := s.saveScratch(content)
	if err != nil {
		return s.failureFromError(err)
	}
	defer os.Remove(scratch)

	dir, err := s.extractor.Extract(scratch, filename)
	if err != nil {
		return s.failureFromError(err)
	}
	defer os.RemoveAll(dir)

	docType, err := archive.Detect(dir)
	if err != nil {
		return s.failureFromError(err)
	}
	s.logger.Info("document type detected", zap.String("type", docType.String()))

	switch docType {
	case document.TypeCommerce:
		return s.processCommerce(ctx, dir)
	default:
		// Unknown leans on the transfer parser: its manifest checks reject
		// foreign archives with a precise error.
		return s.processTransfer(ctx, dir)
	}
}

// saveScratch writes the upload to a uniquely named file under the temp
// root so the zip reader can seek it.
func (s *Service) saveScratch(content []byte) (string, error) {
	if err := os.MkdirAll(s.cfg.Archive.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("processing: create temp dir: %w", err)
	}
	f, err := os.CreateTemp(s.cfg.Archive.TempDir, "upload-*.zip")
	if err != nil {
		return "", fmt.Errorf("processing: create scratch file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("processing: write scratch file: %w", err)
	}
	s.logger.Debug("upload saved", zap.String("path", f.Name()))
	return f.Name(), nil
}

// resolveCounterparty finds the buyer by tax ID, creating the record from
// document requisites when absent.
func (s *Service) resolveCounterparty(ctx context.Context, org document.Organization) (*moysklad.Counterparty, error) {
	found, err := s.accounting.FindCounterpartyByINN(ctx, org.INN)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, moysklad.ErrNotFound) {
		return nil, err
	}

	s.logger.Info("counterparty absent, creating",
		zap.String("inn", org.INN),
		zap.String("name", org.Name),
	)
	return s.accounting.CreateCounterparty(ctx, org)
}

// resolvePositions turns canonical line items into document positions. Every
// line must resolve to a catalog product; unresolved lines are collected and
// reported together so a partially uploaded document never reaches the
// ledger.
func (s *Service) resolvePositions(ctx context.Context, items []document.Item, prices map[string]int64) ([]moysklad.Position, []*moysklad.Product, error) {
	var (
		positions []moysklad.Position
		products  []*moysklad.Product
		missing   []string
	)

	for _, item := range items {
		product, err := s.findProduct(ctx, item)
		if err != nil {
			if errors.Is(err, moysklad.ErrNotFound) {
				missing = append(missing, item.Label())
				continue
			}
			return nil, nil, err
		}

		positions = append(positions, moysklad.Position{
			Quantity:   item.Quantity.InexactFloat64(),
			Price:      s.positionPrice(item, prices),
			Assortment: moysklad.Ref{Meta: product.Meta},
			Vat:        moysklad.VatPercent(item.VATRate),
		})
		products = append(products, product)
	}

	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: товары не найдены в МойСклад:\n• %s",
			document.ErrExternalService, strings.Join(missing, "\n• "))
	}
	return positions, products, nil
}

// findProduct looks up a catalog product by article first, then by exact
// name.
func (s *Service) findProduct(ctx context.Context, item document.Item) (*moysklad.Product, error) {
	if item.Article != "" {
		product, err := s.accounting.FindProductByArticle(ctx, item.Article)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, moysklad.ErrNotFound) {
			return nil, err
		}
	}
	return s.accounting.FindProductByName(ctx, item.Name)
}

// positionPrice prefers the price stored on the previously issued invoice:
// once an invoice exists its negotiated pricing is authoritative. A zero
// invoice price counts as missing unless configured otherwise.
func (s *Service) positionPrice(item document.Item, prices map[string]int64) int64 {
	keys := make([]string, 0, 2)
	if item.Article != "" {
		keys = append(keys, "article:"+item.Article)
	}
	if item.Name != "" {
		keys = append(keys, "name:"+item.Name)
	}
	for _, key := range keys {
		price, ok := prices[key]
		if !ok {
			continue
		}
		if price > 0 || s.cfg.Pricing.TrustZeroInvoicePrice {
			return price
		}
	}
	return moysklad.Kopecks(item.Price)
}

func (s *Service) failure(code, message string) *ProcessingResult {
	return &ProcessingResult{
		Success:   false,
		Message:   message,
		ErrorCode: code,
	}
}

// failureFromError maps the error taxonomy onto result codes and operator
// messages.
func (s *Service) failureFromError(err error) *ProcessingResult {
	s.logger.Error("archive processing failed", zap.Error(err))

	switch {
	case errors.Is(err, document.ErrInvalidContainer):
		return s.failure(document.CodeInvalidContainer,
			fmt.Sprintf("❌ Не удалось открыть архив:\n%v", err))
	case errors.Is(err, document.ErrManifestMissing),
		errors.Is(err, document.ErrManifestIncomplete),
		errors.Is(err, document.ErrPrincipalNotFound),
		errors.Is(err, document.ErrDocumentParsing),
		errors.Is(err, document.ErrRequiredField),
		errors.Is(err, document.ErrSellerNotFound),
		errors.Is(err, document.ErrBuyerNotFound):
		return s.failure(document.CodeParsing,
			fmt.Sprintf("❌ Ошибка обработки документа:\n%v", err))
	case errors.Is(err, document.ErrOrganizationNotResolved):
		return s.failure(document.CodeOrganization,
			fmt.Sprintf("❌ Организация не распознана:\n%v", err))
	case errors.Is(err, document.ErrTransport),
		errors.Is(err, document.ErrExternalService),
		errors.Is(err, moysklad.ErrNotFound):
		return s.failure(document.CodeExternalService,
			fmt.Sprintf("❌ Ошибка загрузки в МойСклад:\n%v", err))
	default:
		return s.failure(document.CodeUnexpected,
			fmt.Sprintf("❌ Неожиданная ошибка:\n%v", err))
	}
}
