package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader transfers payloads to an S3-compatible bucket (AWS S3,
// Cloudflare R2, MinIO).
type S3Uploader struct {
	client     *s3.Client
	bucketName string
}

// NewS3Uploader creates an uploader for an S3-compatible endpoint using
// static credentials. Endpoint may be empty for plain AWS S3.
func NewS3Uploader(endpoint, bucketName, accessKeyID, secretAccessKey string) *S3Uploader {
	opts := s3.Options{
		Region:      "auto",
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Uploader{
		client:     s3.New(opts),
		bucketName: bucketName,
	}
}

// Upload puts the payload under key, reporting progress as the SDK consumes
// the body. A cancelled context aborts the request.
func (s *S3Uploader) Upload(ctx context.Context, key string, payload []byte, contentType string, onProgress ProgressFunc) error {
	if err := validateKey(key); err != nil {
		return err
	}

	body := newProgressReader(ctx, bytes.NewReader(payload), int64(len(payload)), onProgress)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return fmt.Errorf("s3 put object failed: %w", err)
	}
	return nil
}
