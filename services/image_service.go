package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// thumbnailMaxEdge caps the longest edge of generated previews.
	thumbnailMaxEdge = 200
	// compressionMaxEdge caps the longest edge before re-encoding; detail
	// beyond this resolution does not help recognition.
	compressionMaxEdge = 1920

	compressionStartQuality = 85
	compressionQualityStep  = 10
	compressionQualityFloor = 40
)

// ImageService produces preview thumbnails and adaptively compresses raster
// payloads so transfers stay within the configured size limits without
// discarding information the recognizer needs.
type ImageService struct{}

// NewImageService creates a new image service.
func NewImageService() *ImageService {
	return &ImageService{}
}

// IsRaster reports whether the MIME type names a decodable raster image.
func (s *ImageService) IsRaster(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// Thumbnail decodes a raster payload and re-encodes a JPEG preview whose
// longest edge does not exceed 200 pixels, preserving aspect ratio.
func (s *ImageService) Thumbnail(payload []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	preview := imaging.Fit(img, thumbnailMaxEdge, thumbnailMaxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress resizes a raster payload so its longest edge is at most 1920
// pixels, then re-encodes it as JPEG starting at high quality and stepping
// the quality down until the encoded size fits targetBytes or the quality
// floor is reached. The smallest attempt is returned in the latter case.
func (s *ImageService) Compress(payload []byte, targetBytes int64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > compressionMaxEdge || bounds.Dy() > compressionMaxEdge {
		img = imaging.Fit(img, compressionMaxEdge, compressionMaxEdge, imaging.Lanczos)
	}

	var encoded []byte
	for quality := compressionStartQuality; quality >= compressionQualityFloor; quality -= compressionQualityStep {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("failed to encode at quality %d: %w", quality, err)
		}
		encoded = buf.Bytes()
		if int64(len(encoded)) <= targetBytes {
			break
		}
	}
	return encoded, nil
}
