package document

import "errors"

// ProcessingError carries a stable machine-readable code alongside the
// operator-facing message.
type ProcessingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ProcessingError) Error() string {
	return e.Message
}

// NewProcessingError creates a new processing error
func NewProcessingError(code, message string) *ProcessingError {
	return &ProcessingError{
		Code:    code,
		Message: message,
	}
}

// Error codes reported on processing results
const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodeInvalidContainer = "INVALID_CONTAINER"
	CodeParsing          = "PARSING_ERROR"
	CodeOrganization     = "ORGANIZATION_NOT_RESOLVED"
	CodeExternalService  = "MOYSKLAD_API_ERROR"
	CodeUnexpected       = "UNEXPECTED_ERROR"
)

// Structural parsing and integration errors. Content-level gaps never raise
// these: missing values degrade to placeholders instead.
var (
	ErrInvalidContainer        = errors.New("archive is not a valid zip container")
	ErrManifestMissing         = errors.New("archive manifest not found")
	ErrManifestIncomplete      = errors.New("archive manifest lacks required references")
	ErrPrincipalNotFound       = errors.New("principal document not found in archive")
	ErrDocumentParsing         = errors.New("document could not be parsed")
	ErrRequiredField           = errors.New("required field missing")
	ErrSellerNotFound          = errors.New("seller section not found")
	ErrBuyerNotFound           = errors.New("buyer section not found")
	ErrOrganizationNotResolved = errors.New("organization has no usable requisites")

	ErrTransport       = errors.New("external service unreachable")
	ErrExternalService = errors.New("external service request failed")
)
