// Package moysklad is the HTTP client for the MoySklad JSON API 1.2.
package moysklad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/config"
)

// maxResponseSize caps how much of an API response is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// momentLayout is the timestamp format the API expects on document fields.
const momentLayout = "2006-01-02 15:04:05.000"

// ErrNotFound reports that a lookup matched no entity. Callers decide
// whether that is fatal for their flow.
var ErrNotFound = errors.New("moysklad: entity not found")

// Client talks to the accounting service. Lookups run on a short timeout,
// document creation on a longer one.
type Client struct {
	cfg    config.MoySkladConfig
	logger *zap.Logger

	readClient   *http.Client
	createClient *http.Client
}

// NewClient creates a MoySklad API client.
func NewClient(cfg config.MoySkladConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:          cfg,
		logger:       logger,
		readClient:   &http.Client{Timeout: cfg.Timeout},
		createClient: &http.Client{Timeout: cfg.CreateTimeout},
	}
}

// do executes one API call. path may be a relative entity path or an
// absolute href returned in a meta block. The response body is decoded into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, payload, out any) error {
	endpoint := path
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("moysklad: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("moysklad: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("Accept", "application/json;charset=utf-8")

	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("moysklad request failed",
			zap.String("method", method),
			zap.String("path", c.trimPath(endpoint)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", document.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("moysklad: read response: %w", err)
	}

	logFields := []zap.Field{
		zap.String("method", method),
		zap.String("path", c.trimPath(endpoint)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("moysklad authorization rejected", logFields...)
	case resp.StatusCode >= 500:
		c.logger.Error("moysklad server error", logFields...)
	case resp.StatusCode >= 400:
		c.logger.Warn("moysklad request rejected", logFields...)
	default:
		c.logger.Info("moysklad request", logFields...)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", document.ErrExternalService,
			resp.StatusCode, truncate(string(data), 200))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", document.ErrExternalService, err)
		}
	}
	return nil
}

// get runs a lookup on the read timeout.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, c.readClient, http.MethodGet, path, query, nil, out)
}

// post creates a document on the longer create timeout.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, c.createClient, http.MethodPost, path, nil, payload, out)
}

// trimPath strips the base URL so logs stay short. Tokens never appear in
// paths or query strings of this API.
func (c *Client) trimPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, strings.TrimRight(c.cfg.BaseURL, "/"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// VerifyCredentials checks the token against the access context endpoint.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	return c.get(ctx, "context/employee", nil, nil)
}

// GetByHref fetches an entity by the absolute href from its meta block.
func (c *Client) GetByHref(ctx context.Context, href string, out any) error {
	return c.get(ctx, href, nil, out)
}

// AccessSummary probes the endpoints the document flows depend on and
// reports what the configured token can reach.
func (c *Client) AccessSummary(ctx context.Context) (*AccessSummary, error) {
	var employee Employee
	if err := c.get(ctx, "context/employee", nil, &employee); err != nil {
		return nil, err
	}

	var orgs rowsEnvelope[Organization]
	if err := c.get(ctx, "entity/organization", nil, &orgs); err != nil {
		return nil, err
	}
	if len(orgs.Rows) == 0 {
		return nil, fmt.Errorf("%w: no organizations in the account", document.ErrExternalService)
	}

	summary := &AccessSummary{
		Employee:      employee,
		Organization:  orgs.Rows[0],
		Organizations: len(orgs.Rows),
	}

	summary.CanCreateInvoices = c.get(ctx, "entity/factureout", nil, nil) == nil
	summary.CanAccessCounterparties = c.get(ctx, "entity/counterparty", nil, nil) == nil

	var stores rowsEnvelope[Store]
	if err := c.get(ctx, "entity/store", nil, &stores); err == nil {
		summary.CanAccessStores = true
		summary.Stores = len(stores.Rows)
	}

	var orders rowsEnvelope[CustomerOrder]
	if err := c.get(ctx, "entity/customerorder", nil, &orders); err == nil {
		summary.CanAccessCustomerOrders = true
		summary.CustomerOrders = len(orders.Rows)
	}

	c.logger.Info("moysklad access verified",
		zap.String("organization", summary.Organization.Name),
		zap.Int("stores", summary.Stores),
	)
	return summary, nil
}

// Moment formats a document timestamp the way the API expects.
func Moment(t time.Time) string {
	return t.Format(momentLayout)
}

// FactureOutURL builds the web-UI link for an issued tax invoice.
func (c *Client) FactureOutURL(id string) string {
	return c.cfg.WebBaseURL + "/app/#factureout/edit?id=" + id
}

// DemandURL builds the web-UI link for a shipment.
func (c *Client) DemandURL(id string) string {
	return c.cfg.WebBaseURL + "/app/#demand/edit?id=" + id
}

// CustomerOrderURL builds the web-UI link for a sales order.
func (c *Client) CustomerOrderURL(id string) string {
	return c.cfg.WebBaseURL + "/app/#customerorder/edit?id=" + id
}

// InvoiceOutURL builds the web-UI link for a sales invoice.
func (c *Client) InvoiceOutURL(id string) string {
	return c.cfg.WebBaseURL + "/app/#invoiceout/edit?id=" + id
}
