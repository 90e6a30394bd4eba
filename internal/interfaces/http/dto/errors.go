package dto

import (
	"net/http"

	"github.com/docbridge/backend/internal/domain/document"
)

// statusByCode maps processing result codes onto HTTP statuses. Input-level
// rejections are client errors, upstream failures surface as gateway
// errors.
var statusByCode = map[string]int{
	document.CodeFileTooLarge:     http.StatusRequestEntityTooLarge,
	document.CodeInvalidFileType:  http.StatusBadRequest,
	document.CodeInvalidContainer: http.StatusBadRequest,
	document.CodeParsing:          http.StatusUnprocessableEntity,
	document.CodeOrganization:     http.StatusUnprocessableEntity,
	document.CodeExternalService:  http.StatusBadGateway,
	document.CodeUnexpected:       http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status for a processing result code.
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
