package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader writes payloads to the local filesystem. It is the
// development fallback when no object store bucket is configured.
type LocalUploader struct {
	basePath string
}

// NewLocalUploader creates a local uploader rooted at basePath.
func NewLocalUploader(basePath string) *LocalUploader {
	_ = os.MkdirAll(basePath, 0755)
	return &LocalUploader{basePath: basePath}
}

// containedPath resolves the full path and verifies it stays within basePath.
func (l *LocalUploader) containedPath(key string) (string, error) {
	fullPath := filepath.Join(l.basePath, key)
	absBase, err := filepath.Abs(l.basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve full path: %w", err)
	}
	if !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) && absFull != absBase {
		return "", fmt.Errorf("path traversal detected")
	}
	return absFull, nil
}

// Upload writes the payload under key relative to basePath, reporting
// progress as bytes are copied.
func (l *LocalUploader) Upload(ctx context.Context, key string, payload []byte, contentType string, onProgress ProgressFunc) error {
	if err := validateKey(key); err != nil {
		return err
	}
	fullPath, err := l.containedPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	reader := newProgressReader(ctx, bytes.NewReader(payload), int64(len(payload)), onProgress)
	if _, err := io.Copy(f, reader); err != nil {
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
