package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadStatus_IsTerminal(t *testing.T) {
	assert.False(t, UploadStatusQueued.IsTerminal())
	assert.False(t, UploadStatusUploading.IsTerminal())
	assert.True(t, UploadStatusCompleted.IsTerminal())
	assert.True(t, UploadStatusError.IsTerminal())
	assert.True(t, UploadStatusCancelled.IsTerminal())
}

func TestUploadStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    UploadStatus
		to      UploadStatus
		allowed bool
	}{
		{UploadStatusQueued, UploadStatusUploading, true},
		{UploadStatusQueued, UploadStatusCompleted, false},
		{UploadStatusQueued, UploadStatusCancelled, false},
		{UploadStatusUploading, UploadStatusCompleted, true},
		{UploadStatusUploading, UploadStatusError, true},
		{UploadStatusUploading, UploadStatusCancelled, true},
		{UploadStatusUploading, UploadStatusQueued, false},
		{UploadStatusError, UploadStatusQueued, true},
		{UploadStatusError, UploadStatusUploading, false},
		{UploadStatusCompleted, UploadStatusQueued, false},
		{UploadStatusCompleted, UploadStatusUploading, false},
		{UploadStatusCancelled, UploadStatusQueued, false},
		{UploadStatusCancelled, UploadStatusUploading, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}
