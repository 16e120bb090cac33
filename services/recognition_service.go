package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LedgerLens/ledgerlens-backend/config"
	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/LedgerLens/ledgerlens-backend/types"
)

// Recognizer is the external recognition collaborator: it turns a document
// payload into raw text and an opaque region payload. Implementations are
// expected to honor context cancellation.
type Recognizer interface {
	Recognize(ctx context.Context, payload []byte, contentType string) (*types.RecognitionResult, error)
}

// HTTPRecognizer calls a remote recognition endpoint over HTTP.
type HTTPRecognizer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPRecognizer creates a recognizer client from configuration.
func NewHTTPRecognizer(cfg config.RecognitionConfig) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Recognize posts the payload to the recognition endpoint and decodes the
// result. The region payload stays opaque here; the geometry normalizer
// probes its shape downstream.
func (r *HTTPRecognizer) Recognize(ctx context.Context, payload []byte, contentType string) (*types.RecognitionResult, error) {
	log := logger.GetLogger()
	log.Debugw("Submitting document for recognition", "size", len(payload), "contentType", contentType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnw("Recognition API returned non-OK status", "statusCode", resp.StatusCode)
		return nil, fmt.Errorf("recognition API returned status: %d", resp.StatusCode)
	}

	var result types.RecognitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode recognition response: %w", err)
	}

	log.Debugw("Recognition response decoded",
		"textLength", len(result.Text),
		"rawPayloadBytes", len(result.Raw),
		"pageCount", result.PageCount)
	return &result, nil
}
