package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/internal/storage"
	"github.com/tiercache/tiercache/pkg/retry"
)

const contentType = "application/octet-stream"

// ObjectAPI is the subset of the S3 client a Store uses. *s3.Client
// satisfies it.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store keeps a tier image in a single S3 object.
type Store struct {
	api         ObjectAPI
	bucket      string
	key         string
	class       string
	transporter *cargoships3.Transporter
	retryer     *retry.Retryer
	breaker     *circuit.Breaker
	logger      *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryer replaces the default retryer.
func WithRetryer(r *retry.Retryer) Option {
	return func(s *Store) {
		if r != nil {
			s.retryer = r
		}
	}
}

// WithBreaker guards every request, retries included, with b.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

// WithTransporter routes saves through a CargoShip transporter, falling back
// to PutObject when an upload fails.
func WithTransporter(t *cargoships3.Transporter) Option {
	return func(s *Store) {
		s.transporter = t
	}
}

// NewStore creates a store for cfg.Bucket/cfg.Key.
func NewStore(api ObjectAPI, cfg *Config, opts ...Option) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("S3 client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("S3 config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.Retryable = IsTransient

	s := &Store{
		api:     api,
		bucket:  cfg.Bucket,
		key:     cfg.Key,
		class:   cfg.StorageClass,
		retryer: retry.New(retryConfig),
		logger:  slog.Default().With("component", "s3-store", "bucket", cfg.Bucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load downloads the object.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.do(ctx, func(ctx context.Context) error {
		result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			return err
		}
		defer func() { _ = result.Body.Close() }()

		data, err = io.ReadAll(result.Body)
		if err != nil {
			return fmt.Errorf("failed to read object body: %w", err)
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotExist
		}
		return nil, s.translateError(err, "GetObject")
	}
	return data, nil
}

// Save uploads the object, through CargoShip when configured.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if s.transporter != nil {
		archive := cargoships3.Archive{
			Key:          s.key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: ConvertCargoShipStorageClass(s.class),
			Metadata: map[string]string{
				"tiercache-image": "true",
				"content-type":    contentType,
				"image-size":      strconv.Itoa(len(data)),
			},
		}

		result, uploadErr := s.transporter.Upload(ctx, archive)
		if uploadErr == nil {
			s.logger.Debug("CargoShip optimized upload completed",
				"key", s.key,
				"size", len(data),
				"throughput", result.Throughput,
				"duration", result.Duration)
			return nil
		}

		s.logger.Warn("CargoShip upload failed, falling back to standard S3", "key", s.key, "error", uploadErr)
	}

	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
			StorageClass:  ConvertStorageClass(s.class),
		})
		return err
	})
	if err != nil {
		return s.translateError(err, "PutObject")
	}
	return nil
}

// Remove deletes the object. A missing object is not an error.
func (s *Store) Remove(ctx context.Context) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		return err
	})
	if err != nil && !isNotFound(err) {
		return s.translateError(err, "DeleteObject")
	}
	return nil
}

// Location returns the s3:// URI of the object.
func (s *Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

// do runs fn under the retryer, inside the breaker when one is set.
func (s *Store) do(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return s.retryer.Do(ctx, fn)
	}
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retryer.Do(ctx, fn)
	})
	if errors.Is(err, circuit.ErrOpenState) || errors.Is(err, circuit.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return err
}

func (s *Store) translateError(err error, operation string) error {
	switch {
	case isErrorType[*s3types.NoSuchBucket](err):
		return fmt.Errorf("bucket not found: %s: %w", s.bucket, err)
	default:
		return fmt.Errorf("%s failed for %s: %w", operation, s.Location(), err)
	}
}

// IsTransient reports whether an S3 error is worth retrying. Missing objects
// and buckets, client faults and context errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, circuit.ErrOpenState) || errors.Is(err, circuit.ErrTooManyRequests) {
		return false
	}
	if isNotFound(err) || isErrorType[*s3types.NoSuchBucket](err) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultClient
	}
	return true
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
