package handlers

import (
	"context"
	"io"
	"net/http"

	apperrors "github.com/LedgerLens/ledgerlens-backend/errors"
	"github.com/LedgerLens/ledgerlens-backend/services"
	"github.com/LedgerLens/ledgerlens-backend/types"
	"github.com/gin-gonic/gin"
)

// UploadQueueInterface defines the queue operations used by DocumentHandler,
// allowing the handler to be tested with mocks.
type UploadQueueInterface interface {
	Accept(fileName string, payload []byte) (types.QueuedItem, error)
	List() []types.QueuedItem
	Get(id string) (types.QueuedItem, error)
	Result(id string) (*types.DocumentResult, error)
	Remove(id string) error
	Retry(id string) error
	Cancel(id string) error
	Shutdown(ctx context.Context) error
}

// Ensure the concrete service satisfies the interface at compile time.
var _ UploadQueueInterface = (*services.UploadQueueService)(nil)

type DocumentHandler struct {
	queue UploadQueueInterface
}

func NewDocumentHandler(queue UploadQueueInterface) *DocumentHandler {
	return &DocumentHandler{queue: queue}
}

// UploadDocumentHandler accepts a document into the upload queue
// POST /v1/documents (multipart, field "file")
func (h *DocumentHandler) UploadDocumentHandler(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("Missing file", "multipart field 'file' is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(apperrors.InternalServerError("Failed to open uploaded file"))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		_ = c.Error(apperrors.InternalServerError("Failed to read uploaded file"))
		return
	}

	item, err := h.queue.Accept(fileHeader.Filename, payload)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, item)
}

// ListDocumentsHandler returns all queued items in insertion order
// GET /v1/documents
func (h *DocumentHandler) ListDocumentsHandler(c *gin.Context) {
	items := h.queue.List()
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// GetDocumentHandler returns a single queued item
// GET /v1/documents/:id
func (h *DocumentHandler) GetDocumentHandler(c *gin.Context) {
	item, err := h.queue.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteDocumentHandler removes an item, cancelling its transfer if in flight
// DELETE /v1/documents/:id
func (h *DocumentHandler) DeleteDocumentHandler(c *gin.Context) {
	if err := h.queue.Remove(c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RetryDocumentHandler re-queues an item that ended in an error state
// POST /v1/documents/:id/retry
func (h *DocumentHandler) RetryDocumentHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Retry(id); err != nil {
		_ = c.Error(err)
		return
	}
	item, err := h.queue.Get(id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// CancelDocumentHandler cancels an in-flight transfer
// POST /v1/documents/:id/cancel
func (h *DocumentHandler) CancelDocumentHandler(c *gin.Context) {
	id := c.Param("id")
	if err := h.queue.Cancel(id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetDocumentResultHandler returns the processing output for a completed item
// GET /v1/documents/:id/result
func (h *DocumentHandler) GetDocumentResultHandler(c *gin.Context) {
	result, err := h.queue.Result(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
