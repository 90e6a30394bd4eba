package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/application/processing"
	"github.com/docbridge/backend/internal/domain/document"
	"github.com/docbridge/backend/internal/interfaces/http/dto"
)

// Processor runs one uploaded archive through the document flow.
type Processor interface {
	ProcessArchive(ctx context.Context, content []byte, filename string) *processing.ProcessingResult
}

// DocumentHandler handles supplier document uploads
type DocumentHandler struct {
	BaseHandler
	processor Processor
	logger    *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(processor Processor, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		logger:    logger,
	}
}

// RegisterRoutes registers document routes
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.Process)
}

// Process accepts a zip archive, as a multipart "file" part or as the raw
// request body with an X-Filename header, and runs it through the flow. The
// processing result is returned whether it succeeded or not.
func (h *DocumentHandler) Process(c *gin.Context) {
	content, filename, err := h.readUpload(c)
	if err != nil {
		h.logger.Warn("upload not readable", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			document.CodeInvalidFileType, "archive upload is missing or unreadable"))
		return
	}

	result := h.processor.ProcessArchive(c.Request.Context(), content, filename)
	if !result.Success {
		c.JSON(dto.StatusForCode(result.ErrorCode), dto.NewErrorResponse(result.ErrorCode, result.Message))
		return
	}
	h.Success(c, result)
}

func (h *DocumentHandler) readUpload(c *gin.Context) ([]byte, string, error) {
	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer src.Close()

		content, err := io.ReadAll(src)
		if err != nil {
			return nil, "", err
		}
		return content, file.Filename, nil
	}

	content, err := io.ReadAll(c.Request.Body)
	if err != nil || len(content) == 0 {
		return nil, "", io.ErrUnexpectedEOF
	}
	filename := c.GetHeader("X-Filename")
	if filename == "" {
		filename = "upload.zip"
	}
	return content, filename, nil
}
