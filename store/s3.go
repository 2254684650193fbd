package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/vidbridge/vidbridge/logging"
)

// S3ObjectStorageImpl is the remote object-storage sink. Put uploads the
// body and returns a presigned download URL, so the local copy of a direct
// upload can be discarded after a successful put.
type S3ObjectStorageImpl struct {
	client     *s3.Client
	bucketName string
	presignTTL time.Duration

	logger logging.Logger
}

func NewS3ObjectStorageImpl(client *s3.Client, bucketName string, presignTTL time.Duration, l logging.Logger) *S3ObjectStorageImpl {
	return &S3ObjectStorageImpl{
		client:     client,
		bucketName: bucketName,
		presignTTL: presignTTL,
		logger:     l,
	}
}

func (s *S3ObjectStorageImpl) Put(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}

	s.logger.Info("starting remote put", "key", key, "size", size)

	// An object already stored under this key only needs a fresh link.
	if exists, err := s.FileExists(ctx, key); err == nil && exists {
		s.logger.Info("object already stored, issuing fresh link", "key", key)
		return s.GenerateDownloadUrl(ctx, key, s.presignTTL)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   body,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.logger.Error("failed to put object", "key", key, "error", err)
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	url, err := s.GenerateDownloadUrl(ctx, key, s.presignTTL)
	if err != nil {
		s.logger.Error("failed to presign stored object", "key", key, "error", err)
		return "", fmt.Errorf("failed to presign stored object: %w", err)
	}

	s.logger.Info("successfully put object", "key", key, "size", size)
	return url, nil
}

func (s *S3ObjectStorageImpl) GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)

	presigned, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", err
	}

	return presigned.URL, nil
}

func (s *S3ObjectStorageImpl) Remove(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("failed to delete object", "key", key, "error", err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	s.logger.Info("deleted remote object", "key", key)
	return nil
}

// FileExists reports whether an object is already stored under key.
func (s *S3ObjectStorageImpl) FileExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})

	if err == nil {
		s.logger.Debug("object exists", "key", key)
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		s.logger.Debug("object does not exist", "key", key)
		return false, nil
	}

	s.logger.Error("failed to check object existence", "key", key, "error", err)
	return false, fmt.Errorf("failed to check object existence: %w", err)
}
