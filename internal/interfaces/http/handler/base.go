// Package handler contains the gin HTTP handlers of the service.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docbridge/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status mapped from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.StatusForCode(code), dto.NewErrorResponse(code, message))
}
