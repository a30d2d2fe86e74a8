package minio

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/metrics"
	log "github.com/sirupsen/logrus"
)

// ObjectStoreArgs are the mandatory arguments for the creation of an ObjectStore
type ObjectStoreArgs struct {
	// Endpoint is the S3 endpoint, host:port.
	Endpoint string

	// AccessKey and SecretKey are the static credentials.
	AccessKey string
	SecretKey string

	// Bucket holds the event images.
	Bucket string
}

// ObjectStoreOptArgs are the optional arguments for building an ObjectStore
type ObjectStoreOptArgs = func(*minio.Options)

// WithSSL enables TLS towards the endpoint.
func WithSSL() ObjectStoreOptArgs {
	return func(o *minio.Options) {
		o.Secure = true
	}
}

// WithRegion sets the bucket region.
func WithRegion(region string) ObjectStoreOptArgs {
	return func(o *minio.Options) {
		o.Region = region
	}
}

// ObjectStore is the image bucket adapter.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore creates a new ObjectStore.
func NewObjectStore(args ObjectStoreArgs, optArgs ...ObjectStoreOptArgs) (*ObjectStore, error) {
	if args.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if args.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	opts := &minio.Options{Creds: credentials.NewStaticV4(args.AccessKey, args.SecretKey, "")}
	for _, opt := range optArgs {
		opt(opts)
	}
	client, err := minio.New(args.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("error creating minio client: %w", err)
	}
	return &ObjectStore{client: client, bucket: args.Bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", s.bucket, err)
	}
	log.WithField("bucket", s.bucket).Info("bucket created")
	return nil
}

// Ping checks the bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// RemovePrefix deletes every object under prefix and returns how many were removed.
// An empty listing is not an error.
func (s *ObjectStore) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: refusing to remove an empty prefix", model.ErrInvalidArgument)
	}

	toRemove := make(chan minio.ObjectInfo)
	var listed int
	var listErr error
	go func() {
		defer close(toRemove)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case toRemove <- obj:
				listed++
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("error removing %s: %w", rErr.ObjectName, rErr.Err))
	}
	removed := listed - len(errs)
	if listErr != nil {
		errs = append(errs, fmt.Errorf("error listing %s: %w", prefix, listErr))
	}
	if removed > 0 {
		metrics.ImagesRemoved.Add(float64(removed))
	}
	return removed, errors.Join(errs...)
}
