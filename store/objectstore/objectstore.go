// Package objectstore provides the transfer target abstraction for document
// payloads, with S3-compatible and local filesystem implementations.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ProgressFunc receives transfer progress as a percentage in [0,100].
type ProgressFunc func(percent int)

// Uploader submits a document payload to the transfer target. Cancellation
// is cooperative: cancelling ctx aborts the transfer at the next read.
type Uploader interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string, onProgress ProgressFunc) error
}

// validateKey rejects storage keys containing path traversal segments.
func validateKey(key string) error {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}

// progressReader wraps a reader, reporting cumulative progress and checking
// for cancellation on every read.
type progressReader struct {
	ctx        context.Context
	r          io.Reader
	total      int64
	read       int64
	onProgress ProgressFunc
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, onProgress ProgressFunc) *progressReader {
	return &progressReader{ctx: ctx, r: r, total: total, onProgress: onProgress}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.r.Read(p)
	pr.read += int64(n)
	if pr.onProgress != nil && pr.total > 0 {
		pct := int(pr.read * 100 / pr.total)
		if pct > 100 {
			pct = 100
		}
		pr.onProgress(pct)
	}
	return n, err
}
