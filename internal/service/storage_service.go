package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/matchgenius-api/internal/config"
	"github.com/jmylchreest/matchgenius-api/internal/crypto"
)

const eventArchivePrefix = "stripe-events/"

// ErrStorageDisabled is returned by reads when no bucket is configured.
var ErrStorageDisabled = errors.New("storage is not enabled")

// StorageService archives encrypted webhook payloads in object storage (Tigris/S3-compatible).
type StorageService struct {
	client    *s3.Client
	bucket    string
	encryptor *crypto.Encryptor
	enabled   bool
	logger    *slog.Logger
}

// NewStorageService creates a new storage service. Archiving needs both a bucket and an encryption key.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{logger: logger}, nil
	}
	if len(cfg.ArchiveEncryptionKey) == 0 {
		logger.Warn("storage service disabled - no archive encryption key")
		return &StorageService{logger: logger}, nil
	}

	encryptor, err := crypto.NewEncryptor(cfg.ArchiveEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true // Required for some S3-compatible services
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:    client,
		bucket:    cfg.StorageBucket,
		encryptor: encryptor,
		enabled:   true,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// EventKey returns the object key for an event received at t.
func EventKey(eventID string, t time.Time) string {
	return fmt.Sprintf("%s%s/%s.bin", eventArchivePrefix, t.UTC().Format("2006/01/02"), eventID)
}

// StoreEvent encrypts and stores a raw webhook payload, returning its key.
// Returns "" without error when storage is disabled.
func (s *StorageService) StoreEvent(ctx context.Context, eventID string, receivedAt time.Time, payload []byte) (string, error) {
	if !s.enabled {
		return "", nil
	}

	sealed, err := s.encryptor.Seal(payload, []byte(eventID))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt event payload: %w", err)
	}

	key := EventKey(eventID, receivedAt)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"event-id": eventID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store event payload: %w", err)
	}

	s.logger.Debug("archived webhook payload", "event_id", eventID, "key", key, "size_bytes", len(sealed))
	return key, nil
}

// GetEvent fetches and decrypts an archived payload.
func (s *StorageService) GetEvent(ctx context.Context, key, eventID string) ([]byte, error) {
	if !s.enabled {
		return nil, ErrStorageDisabled
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event payload: %w", err)
	}
	defer func() { _ = output.Body.Close() }()

	sealed, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload: %w", err)
	}
	return s.encryptor.Open(sealed, []byte(eventID))
}

// DeleteOldEvents deletes archived payloads older than maxAge.
// Returns the number of deleted objects.
func (s *StorageService) DeleteOldEvents(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(eventArchivePrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				s.logger.Warn("failed to delete old object", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			deleted++
		}
	}

	s.logger.Info("archive cleanup completed", "deleted_count", deleted, "max_age", maxAge.String())
	return deleted, nil
}
