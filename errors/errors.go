package errors

import (
	"fmt"
	"net/http"

	"github.com/LedgerLens/ledgerlens-backend/logger"
)

type ErrorType string

const (
	ValidationError              ErrorType = "VALIDATION_ERROR"
	NotFoundError                ErrorType = "NOT_FOUND"
	ServerError                  ErrorType = "SERVER_ERROR"
	QueueFullError               ErrorType = "QUEUE_FULL"
	FileTooLargeError            ErrorType = "FILE_TOO_LARGE"
	UnsupportedTypeError         ErrorType = "UNSUPPORTED_TYPE"
	InvalidStatusTransitionError ErrorType = "INVALID_STATUS_TRANSITION"
	TransferError                ErrorType = "TRANSFER_FAILED"
	RecognitionError             ErrorType = "RECOGNITION_FAILED"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// GetHTTPStatus returns the HTTP status code associated with the error.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// Helper functions for common errors

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// QueueFull signals that the upload queue has reached its configured capacity.
func QueueFull(maxItems int) *AppError {
	return &AppError{
		Type:       QueueFullError,
		Message:    "Upload queue is full",
		Detail:     fmt.Sprintf("Queue capacity: %d items", maxItems),
		HTTPStatus: http.StatusConflict,
	}
}

// FileTooLarge signals that a submitted payload exceeds the per-item size cap.
func FileTooLarge(size, maxSize int64) *AppError {
	return &AppError{
		Type:       FileTooLargeError,
		Message:    "File exceeds maximum allowed size",
		Detail:     fmt.Sprintf("Size %d exceeds maximum of %d bytes", size, maxSize),
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// UnsupportedType signals a payload whose sniffed MIME type is not allowed.
func UnsupportedType(mimeType string, allowed []string) *AppError {
	return &AppError{
		Type:       UnsupportedTypeError,
		Message:    "File type is not supported",
		Detail:     fmt.Sprintf("Detected type %s; allowed: %v", mimeType, allowed),
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
}

func InvalidStatusTransition(current, next string) *AppError {
	return &AppError{
		Type:       InvalidStatusTransitionError,
		Message:    "Invalid status transition",
		Detail:     fmt.Sprintf("Cannot transition from %s to %s", current, next),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewTransferError wraps a transfer collaborator failure. Transfer errors are
// retryable per item and never abort queue processing.
func NewTransferError(err error) *AppError {
	logger.GetLogger().Errorw("Transfer error", "error", err)
	return &AppError{
		Type:       TransferError,
		Message:    "Document transfer failed",
		Detail:     err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

// NewRecognitionError wraps a recognition collaborator failure.
func NewRecognitionError(err error) *AppError {
	logger.GetLogger().Errorw("Recognition error", "error", err)
	return &AppError{
		Type:       RecognitionError,
		Message:    "Document recognition failed",
		Detail:     err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case QueueFullError:
		return http.StatusConflict
	case FileTooLargeError:
		return http.StatusRequestEntityTooLarge
	case UnsupportedTypeError:
		return http.StatusUnsupportedMediaType
	case InvalidStatusTransitionError:
		return http.StatusBadRequest
	case TransferError, RecognitionError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
