package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/infrastructure/moysklad"
	"github.com/docbridge/backend/internal/interfaces/http/dto"
)

// StatusProvider reports the accounting-service connection state.
type StatusProvider interface {
	VerifyCredentials(ctx context.Context) error
	AccessSummary(ctx context.Context) (*moysklad.AccessSummary, error)
}

// SystemHandler handles service health and status endpoints
type SystemHandler struct {
	BaseHandler
	status    StatusProvider
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(status StatusProvider) *SystemHandler {
	return &SystemHandler{
		status:    status,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
}

// Healthz reports process liveness; it runs outside the API group so load
// balancers can reach it unversioned.
func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"go_version": runtime.Version(),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	})
}

// StatusResponse describes the accounting-service access state.
type StatusResponse struct {
	Connected               bool   `json:"connected"`
	Employee                string `json:"employee,omitempty"`
	Organization            string `json:"organization,omitempty"`
	OrganizationINN         string `json:"organization_inn,omitempty"`
	CanCreateInvoices       bool   `json:"can_create_invoices"`
	CanAccessCounterparties bool   `json:"can_access_counterparties"`
	CanAccessStores         bool   `json:"can_access_stores"`
	CanAccessCustomerOrders bool   `json:"can_access_customer_orders"`
	Stores                  int    `json:"stores"`
	CustomerOrders          int    `json:"customer_orders"`
}

// Status probes the accounting service and reports what the configured
// token can reach.
func (h *SystemHandler) Status(c *gin.Context) {
	summary, err := h.status.AccessSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, dto.NewErrorResponse(
			document.CodeExternalService, err.Error()))
		return
	}

	h.Success(c, StatusResponse{
		Connected:               true,
		Employee:                summary.Employee.Name,
		Organization:            summary.Organization.Name,
		OrganizationINN:         summary.Organization.INN,
		CanCreateInvoices:       summary.CanCreateInvoices,
		CanAccessCounterparties: summary.CanAccessCounterparties,
		CanAccessStores:         summary.CanAccessStores,
		CanAccessCustomerOrders: summary.CanAccessCustomerOrders,
		Stores:                  summary.Stores,
		CustomerOrders:          summary.CustomerOrders,
	})
}
