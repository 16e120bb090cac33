package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New(ValidationError, "bad input", "field x is required")
	assert.Equal(t, "VALIDATION_ERROR: bad input (field x is required)", err.Error())

	noDetail := New(ServerError, "boom", "")
	assert.Equal(t, "SERVER_ERROR: boom", noDetail.Error())
}

func TestHelpers_HTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
	}{
		{"queue full", QueueFull(5), http.StatusConflict},
		{"file too large", FileTooLarge(100, 10), http.StatusRequestEntityTooLarge},
		{"unsupported type", UnsupportedType("text/plain", []string{"image/jpeg"}), http.StatusUnsupportedMediaType},
		{"not found", NotFound("Queued item", "abc"), http.StatusNotFound},
		{"validation", ValidationFailed("bad", "detail"), http.StatusBadRequest},
		{"transition", InvalidStatusTransition("completed", "queued"), http.StatusBadRequest},
		{"transfer", NewTransferError(fmt.Errorf("socket closed")), http.StatusBadGateway},
		{"recognition", NewRecognitionError(fmt.Errorf("engine down")), http.StatusBadGateway},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.GetHTTPStatus())
		})
	}
}

func TestWrap(t *testing.T) {
	raw := fmt.Errorf("underlying")
	err := Wrap(raw, TransferError, "transfer failed")
	assert.Equal(t, TransferError, err.Type)
	assert.Equal(t, "underlying", err.Detail)
	assert.Equal(t, raw, err.Raw)
	assert.Equal(t, http.StatusBadGateway, err.GetHTTPStatus())

	assert.Nil(t, Wrap(nil, TransferError, "no-op"))
}
