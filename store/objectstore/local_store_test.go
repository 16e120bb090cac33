package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploader_WritesPayloadAndReportsProgress(t *testing.T) {
	base := t.TempDir()
	uploader := NewLocalUploader(base)

	var lastPct int
	err := uploader.Upload(context.Background(), "documents/abc/receipt.txt",
		[]byte("hello receipt"), "text/plain", func(pct int) { lastPct = pct })
	require.NoError(t, err)
	assert.Equal(t, 100, lastPct)

	written, err := os.ReadFile(filepath.Join(base, "documents", "abc", "receipt.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello receipt", string(written))
}

func TestLocalUploader_RejectsTraversalKey(t *testing.T) {
	uploader := NewLocalUploader(t.TempDir())

	err := uploader.Upload(context.Background(), "../escape.txt",
		[]byte("nope"), "text/plain", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

func TestLocalUploader_CancelledContextAborts(t *testing.T) {
	base := t.TempDir()
	uploader := NewLocalUploader(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := uploader.Upload(ctx, "documents/abc/receipt.txt",
		[]byte("never written"), "text/plain", nil)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(base, "documents", "abc", "receipt.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, validateKey("documents/abc/receipt.txt"))
	assert.Error(t, validateKey("documents/../secrets"))
	assert.Error(t, validateKey(".."))
}

func TestProgressReader_MonotonicAndCapped(t *testing.T) {
	base := t.TempDir()
	uploader := NewLocalUploader(base)

	var reports []int
	payload := make([]byte, 64<<10)
	err := uploader.Upload(context.Background(), "big.bin", payload,
		"application/octet-stream", func(pct int) { reports = append(reports, pct) })
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	prev := 0
	for _, pct := range reports {
		assert.GreaterOrEqual(t, pct, prev)
		assert.LessOrEqual(t, pct, 100)
		prev = pct
	}
	assert.Equal(t, 100, reports[len(reports)-1])
}
