package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/LedgerLens/ledgerlens-backend/config"
	apperrors "github.com/LedgerLens/ledgerlens-backend/errors"
	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/LedgerLens/ledgerlens-backend/store/objectstore"
	"github.com/LedgerLens/ledgerlens-backend/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// UploadQueueService manages the bounded document upload queue. It owns the
// item lifecycle (queued -> uploading -> completed/error/cancelled), runs one
// transfer goroutine per in-flight item, and hands completed payloads to the
// processing pipeline.
//
// All reads return copies; the internal item list is replaced wholesale on
// every mutation so concurrent readers never observe a partial update.
type UploadQueueService struct {
	cfg       config.QueueConfig
	uploader  objectstore.Uploader
	images    *ImageService
	processor *DocumentProcessor
	logger    *zap.SugaredLogger
	metrics   *uploadQueueMetrics

	mu       sync.Mutex
	items    []types.QueuedItem
	payloads map[string][]byte
	cancels  map[string]context.CancelFunc
	results  map[string]*types.DocumentResult
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// uploadQueueMetrics holds Prometheus metrics for the upload queue.
type uploadQueueMetrics struct {
	queueDepth       prometheus.Gauge
	activeUploads    prometheus.Gauge
	completedUploads prometheus.Counter
	failedUploads    prometheus.Counter
	cancelledUploads prometheus.Counter
	rejectedUploads  prometheus.Counter
	uploadDuration   prometheus.Histogram
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	uqMetricsInstance *uploadQueueMetrics
	uqMetricsOnce     sync.Once
	uqDefaultRegistry = prometheus.DefaultRegisterer
)

// newUploadQueueMetrics initializes and registers Prometheus metrics using singleton pattern.
func newUploadQueueMetrics() *uploadQueueMetrics {
	uqMetricsOnce.Do(func() {
		uqMetricsInstance = &uploadQueueMetrics{
			queueDepth: promauto.With(uqDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "upload_queue_depth",
				Help: "Current number of items held in the upload queue",
			}),
			activeUploads: promauto.With(uqDefaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "upload_queue_active_uploads",
				Help: "Current number of in-flight transfers",
			}),
			completedUploads: promauto.With(uqDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "upload_queue_completed_total",
				Help: "Total number of documents transferred and processed",
			}),
			failedUploads: promauto.With(uqDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "upload_queue_failed_total",
				Help: "Total number of transfers that ended in an error state",
			}),
			cancelledUploads: promauto.With(uqDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "upload_queue_cancelled_total",
				Help: "Total number of transfers cancelled by the user",
			}),
			rejectedUploads: promauto.With(uqDefaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "upload_queue_rejected_total",
				Help: "Total number of submissions rejected at acceptance",
			}),
			uploadDuration: promauto.With(uqDefaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "upload_queue_transfer_duration_seconds",
				Help:    "Time from transfer start to terminal state",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			}),
		}
	})
	return uqMetricsInstance
}

// resetUploadQueueMetricsForTesting resets the metrics singleton for test isolation.
// This should only be called from tests.
func resetUploadQueueMetricsForTesting() {
	reg := prometheus.NewRegistry()
	uqDefaultRegistry = reg
	uqMetricsInstance = nil
	uqMetricsOnce = sync.Once{}
}

// NewUploadQueueService creates the queue manager. Transfers start as soon as
// items are accepted; there is no separate Start step.
func NewUploadQueueService(
	cfg config.QueueConfig,
	uploader objectstore.Uploader,
	images *ImageService,
	processor *DocumentProcessor,
) *UploadQueueService {
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadQueueService{
		cfg:       cfg,
		uploader:  uploader,
		images:    images,
		processor: processor,
		logger:    logger.GetLogger().Named("upload-queue"),
		metrics:   newUploadQueueMetrics(),
		payloads:  make(map[string][]byte),
		cancels:   make(map[string]context.CancelFunc),
		results:   make(map[string]*types.DocumentResult),
		ctx:       ctx,
		cancel:    cancel,
	}
}

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename strips path components and unsafe characters so the name
// is usable as a storage key segment.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = filenameSanitizer.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "document"
	}
	return name
}

// Accept validates a submission against the queue's capacity, size and type
// policy, enqueues it, and starts its transfer. The content type is sniffed
// from the payload bytes; the client-declared type is ignored.
func (q *UploadQueueService) Accept(fileName string, payload []byte) (types.QueuedItem, error) {
	size := int64(len(payload))
	if size > q.cfg.MaxSizeBytes {
		q.metrics.rejectedUploads.Inc()
		return types.QueuedItem{}, apperrors.FileTooLarge(size, q.cfg.MaxSizeBytes)
	}

	detected := mimetype.Detect(payload)
	contentType := detected.String()
	if !q.isAllowedType(detected) {
		q.metrics.rejectedUploads.Inc()
		return types.QueuedItem{}, apperrors.UnsupportedType(contentType, q.cfg.AllowedTypes)
	}

	item := types.QueuedItem{
		ID:          uuid.New().String(),
		FileName:    sanitizeFilename(fileName),
		Size:        size,
		ContentType: contentType,
		Status:      types.UploadStatusQueued,
		CreatedAt:   time.Now(),
	}

	// Preview generation is best effort and must never block acceptance.
	if q.images.IsRaster(contentType) {
		if thumb, err := q.images.Thumbnail(payload); err == nil {
			item.Thumbnail = base64.StdEncoding.EncodeToString(thumb)
		} else {
			q.logger.Debugw("Thumbnail generation failed", "fileName", item.FileName, "error", err)
		}
	}

	q.mu.Lock()
	if len(q.items) >= q.cfg.MaxItems {
		q.mu.Unlock()
		q.metrics.rejectedUploads.Inc()
		return types.QueuedItem{}, apperrors.QueueFull(q.cfg.MaxItems)
	}
	next := make([]types.QueuedItem, len(q.items), len(q.items)+1)
	copy(next, q.items)
	q.items = append(next, item)
	q.payloads[item.ID] = payload
	q.metrics.queueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	q.logger.Infow("Document accepted",
		"itemId", item.ID,
		"fileName", item.FileName,
		"size", size,
		"contentType", contentType)

	q.startTransfer(item.ID)
	return item, nil
}

// isAllowedType matches the sniffed type against the acceptance list,
// following MIME aliases (e.g. image/jpg for image/jpeg).
func (q *UploadQueueService) isAllowedType(detected *mimetype.MIME) bool {
	for _, allowed := range q.cfg.AllowedTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

// List returns a snapshot of all queued items in insertion order.
func (q *UploadQueueService) List() []types.QueuedItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.QueuedItem, len(q.items))
	copy(out, q.items)
	return out
}

// Get returns a copy of the item with the given ID.
func (q *UploadQueueService) Get(id string) (types.QueuedItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			return item, nil
		}
	}
	return types.QueuedItem{}, apperrors.NotFound("Queued item", id)
}

// Result returns the processing output for a completed item.
func (q *UploadQueueService) Result(id string) (*types.DocumentResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if result, ok := q.results[id]; ok {
		resultCopy := *result
		return &resultCopy, nil
	}
	for _, item := range q.items {
		if item.ID == id {
			return nil, apperrors.New(apperrors.NotFoundError,
				"Result not available",
				fmt.Sprintf("Item %s has status %s", id, item.Status))
		}
	}
	return nil, apperrors.NotFound("Queued item", id)
}

// Remove deletes an item from the queue, cancelling its transfer first if it
// is in flight. Its result, payload and cancel handle are released with it.
func (q *UploadQueueService) Remove(id string) error {
	q.mu.Lock()
	cancelFn := q.cancels[id]
	found := false
	next := make([]types.QueuedItem, 0, len(q.items))
	for _, item := range q.items {
		if item.ID == id {
			found = true
			continue
		}
		next = append(next, item)
	}
	if found {
		q.items = next
		delete(q.payloads, id)
		delete(q.results, id)
		q.metrics.queueDepth.Set(float64(len(q.items)))
	}
	q.mu.Unlock()

	if !found {
		return apperrors.NotFound("Queued item", id)
	}
	if cancelFn != nil {
		cancelFn()
	}
	q.logger.Infow("Item removed", "itemId", id)
	return nil
}

// Cancel stops an in-flight transfer, freezing its progress and marking it
// cancelled. A queued item is removed instead. Terminal items are unaffected.
func (q *UploadQueueService) Cancel(id string) error {
	q.mu.Lock()
	var status types.UploadStatus
	found := false
	for _, item := range q.items {
		if item.ID == id {
			status = item.Status
			found = true
			break
		}
	}
	cancelFn := q.cancels[id]
	q.mu.Unlock()

	if !found {
		return apperrors.NotFound("Queued item", id)
	}

	switch status {
	case types.UploadStatusUploading:
		if cancelFn != nil {
			cancelFn()
		}
		q.logger.Infow("Cancellation requested", "itemId", id)
		return nil
	case types.UploadStatusQueued:
		return q.Remove(id)
	default:
		// Terminal states are left untouched.
		return nil
	}
}

// Retry re-queues an item that ended in an error state and restarts its
// transfer. Any other state is rejected.
func (q *UploadQueueService) Retry(id string) error {
	item, err := q.Get(id)
	if err != nil {
		return err
	}
	if !item.Status.CanTransitionTo(types.UploadStatusQueued) {
		return apperrors.InvalidStatusTransition(string(item.Status), string(types.UploadStatusQueued))
	}

	q.mutateItem(id, func(it *types.QueuedItem) {
		it.Status = types.UploadStatusQueued
		it.Progress = 0
		it.Error = ""
	})
	q.logger.Infow("Item re-queued for retry", "itemId", id)
	q.startTransfer(id)
	return nil
}

// Shutdown cancels all in-flight transfers and waits for their goroutines to
// drain, up to the context deadline.
func (q *UploadQueueService) Shutdown(ctx context.Context) error {
	q.logger.Info("Shutting down upload queue")
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Upload queue shut down cleanly")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Upload queue shutdown timed out with transfers still draining")
		return ctx.Err()
	}
}

// mutateItem applies fn to the item with the given ID under the lock,
// replacing the item list wholesale. Returns false if the item is gone.
func (q *UploadQueueService) mutateItem(id string, fn func(*types.QueuedItem)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			next := make([]types.QueuedItem, len(q.items))
			copy(next, q.items)
			fn(&next[i])
			q.items = next
			return true
		}
	}
	return false
}

// transition moves an item to the next status if the lifecycle allows it.
// Late writers (e.g. a transfer goroutine finishing after cancellation) lose
// here instead of clobbering a terminal state.
func (q *UploadQueueService) transition(id string, next types.UploadStatus, fn func(*types.QueuedItem)) bool {
	moved := false
	q.mutateItem(id, func(it *types.QueuedItem) {
		if !it.Status.CanTransitionTo(next) {
			return
		}
		it.Status = next
		if fn != nil {
			fn(it)
		}
		moved = true
	})
	return moved
}

// startTransfer launches the transfer goroutine for a queued item.
func (q *UploadQueueService) startTransfer(id string) {
	q.mu.Lock()
	payload, ok := q.payloads[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	itemCtx, itemCancel := context.WithCancel(q.ctx)
	q.cancels[id] = itemCancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.runTransfer(itemCtx, id, payload)
}

// runTransfer drives one item through compression, transfer and processing.
func (q *UploadQueueService) runTransfer(ctx context.Context, id string, payload []byte) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		if cancelFn, ok := q.cancels[id]; ok {
			cancelFn()
			delete(q.cancels, id)
		}
		q.mu.Unlock()
	}()

	item, err := q.Get(id)
	if err != nil {
		return
	}

	if !q.transition(id, types.UploadStatusUploading, nil) {
		return
	}
	q.metrics.activeUploads.Inc()
	defer q.metrics.activeUploads.Dec()
	started := time.Now()
	defer func() {
		q.metrics.uploadDuration.Observe(time.Since(started).Seconds())
	}()

	body := payload
	contentType := item.ContentType
	if q.images.IsRaster(contentType) && int64(len(payload)) > q.cfg.CompressionThresholdBytes {
		compressed, cErr := q.images.Compress(payload, q.cfg.CompressionThresholdBytes)
		if cErr != nil {
			q.logger.Warnw("Compression failed, transferring original payload",
				"itemId", id, "error", cErr)
		} else {
			q.logger.Infow("Payload compressed",
				"itemId", id,
				"originalSize", len(payload),
				"compressedSize", len(compressed))
			body = compressed
			contentType = "image/jpeg"
		}
	}

	if ctx.Err() != nil {
		q.finishCancelled(id)
		return
	}

	key := fmt.Sprintf("documents/%s/%s", id, item.FileName)
	onProgress := func(pct int) {
		q.mutateItem(id, func(it *types.QueuedItem) {
			// Progress only moves forward and only while in flight.
			if it.Status == types.UploadStatusUploading && pct > it.Progress {
				it.Progress = pct
			}
		})
	}

	if err := q.uploader.Upload(ctx, key, body, contentType, onProgress); err != nil {
		if ctx.Err() != nil {
			q.finishCancelled(id)
			return
		}
		q.finishError(id, apperrors.NewTransferError(err))
		return
	}

	result, err := q.processor.Process(ctx, id, body, contentType)
	if err != nil {
		if ctx.Err() != nil {
			q.finishCancelled(id)
			return
		}
		q.finishError(id, err)
		return
	}

	q.mu.Lock()
	q.results[id] = result
	q.mu.Unlock()

	if q.transition(id, types.UploadStatusCompleted, func(it *types.QueuedItem) {
		it.Progress = 100
		it.PageCount = result.PageCount
	}) {
		q.metrics.completedUploads.Inc()
		q.logger.Infow("Transfer completed", "itemId", id, "key", key)
	}
}

// finishCancelled marks an item cancelled, keeping whatever progress it had.
func (q *UploadQueueService) finishCancelled(id string) {
	if q.transition(id, types.UploadStatusCancelled, nil) {
		q.metrics.cancelledUploads.Inc()
		q.logger.Infow("Transfer cancelled", "itemId", id)
	}
}

// finishError marks an item failed with a user-visible message. The payload
// is retained so the item stays retryable.
func (q *UploadQueueService) finishError(id string, err error) {
	message := "Transfer failed"
	if appErr, ok := err.(*apperrors.AppError); ok {
		message = appErr.Message
	}
	if q.transition(id, types.UploadStatusError, func(it *types.QueuedItem) {
		it.Error = message
	}) {
		q.metrics.failedUploads.Inc()
		q.logger.Errorw("Transfer failed", "itemId", id, "error", err)
	}
}
