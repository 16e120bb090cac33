package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	apperrors "github.com/LedgerLens/ledgerlens-backend/errors"
	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/LedgerLens/ledgerlens-backend/middleware"
	"github.com/LedgerLens/ledgerlens-backend/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// MockUploadQueue implements UploadQueueInterface
type MockUploadQueue struct{ mock.Mock }

func (m *MockUploadQueue) Accept(fileName string, payload []byte) (types.QueuedItem, error) {
	args := m.Called(fileName, payload)
	return args.Get(0).(types.QueuedItem), args.Error(1)
}
func (m *MockUploadQueue) List() []types.QueuedItem {
	args := m.Called()
	return args.Get(0).([]types.QueuedItem)
}
func (m *MockUploadQueue) Get(id string) (types.QueuedItem, error) {
	args := m.Called(id)
	return args.Get(0).(types.QueuedItem), args.Error(1)
}
func (m *MockUploadQueue) Result(id string) (*types.DocumentResult, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DocumentResult), args.Error(1)
}
func (m *MockUploadQueue) Remove(id string) error {
	return m.Called(id).Error(0)
}
func (m *MockUploadQueue) Retry(id string) error {
	return m.Called(id).Error(0)
}
func (m *MockUploadQueue) Cancel(id string) error {
	return m.Called(id).Error(0)
}
func (m *MockUploadQueue) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func setupTestRouter(queue UploadQueueInterface) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())

	h := NewDocumentHandler(queue)
	r.POST("/v1/documents", h.UploadDocumentHandler)
	r.GET("/v1/documents", h.ListDocumentsHandler)
	r.GET("/v1/documents/:id", h.GetDocumentHandler)
	r.DELETE("/v1/documents/:id", h.DeleteDocumentHandler)
	r.POST("/v1/documents/:id/retry", h.RetryDocumentHandler)
	r.POST("/v1/documents/:id/cancel", h.CancelDocumentHandler)
	r.GET("/v1/documents/:id/result", h.GetDocumentResultHandler)
	return r
}

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadDocumentHandler_Accepted(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Accept", "receipt.jpg", []byte("payload")).Return(types.QueuedItem{
		ID:       "item-1",
		FileName: "receipt.jpg",
		Status:   types.UploadStatusQueued,
	}, nil)

	body, contentType := multipartBody(t, "file", "receipt.jpg", []byte("payload"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var item types.QueuedItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, "item-1", item.ID)
	queue.AssertExpectations(t)
}

func TestUploadDocumentHandler_MissingFile(t *testing.T) {
	queue := new(MockUploadQueue)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString(""))
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	queue.AssertNotCalled(t, "Accept")
}

func TestUploadDocumentHandler_QueueFull(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Accept", mock.Anything, mock.Anything).Return(types.QueuedItem{}, apperrors.QueueFull(5))

	body, contentType := multipartBody(t, "file", "receipt.jpg", []byte("payload"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(apperrors.QueueFullError), resp["type"])
}

func TestListDocumentsHandler(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("List").Return([]types.QueuedItem{
		{ID: "a", Status: types.UploadStatusQueued},
		{ID: "b", Status: types.UploadStatusCompleted},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []types.QueuedItem `json:"items"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a", resp.Items[0].ID)
}

func TestGetDocumentHandler_NotFound(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Get", "missing").Return(types.QueuedItem{}, apperrors.NotFound("Queued item", "missing"))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentHandler(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Remove", "item-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/item-1", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	queue.AssertExpectations(t)
}

func TestRetryDocumentHandler_InvalidTransition(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Retry", "item-1").Return(apperrors.InvalidStatusTransition("completed", "queued"))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/item-1/retry", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelDocumentHandler(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Cancel", "item-1").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/item-1/cancel", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	queue.AssertExpectations(t)
}

func TestGetDocumentResultHandler(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Result", "item-1").Return(&types.DocumentResult{
		ItemID: "item-1",
		Record: types.StructuredRecord{VendorName: "Acme"},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/item-1/result", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result types.DocumentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "item-1", result.ItemID)
	assert.Equal(t, "Acme", result.Record.VendorName)
}

func TestGetDocumentResultHandler_NotReady(t *testing.T) {
	queue := new(MockUploadQueue)
	queue.On("Result", "item-1").Return(nil, apperrors.New(apperrors.NotFoundError,
		"Result not available", fmt.Sprintf("Item %s has status %s", "item-1", types.UploadStatusUploading)))

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/item-1/result", nil)
	w := httptest.NewRecorder()

	setupTestRouter(queue).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
