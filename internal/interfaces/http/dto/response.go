package dto

import (
	"github.com/docbridge/backend/internal/domain/document"
)

// Response represents a standard API response
type Response struct {
	Success bool                      `json:"success"`
	Data    any                       `json:"data,omitempty"`
	Error   *document.ProcessingError `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   document.NewProcessingError(code, message),
	}
}
