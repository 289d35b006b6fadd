// internal/assets/s3.go
// Package assets provides the S3-compatible asset store used for purging
// gift media. The core only deletes; uploads happen client-side before the
// submission path runs, so the store is keyed by derived asset ids.
package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Kind distinguishes the two stored resource kinds. Audio and images live
// under separate key namespaces in the bucket.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Store is the asset-store contract the lifecycle operations depend on.
// Both deletions are best-effort from the caller's perspective: failures are
// logged by the caller and never abort the owning transition.
type Store interface {
	// DeleteByID removes one asset by its derived id.
	DeleteByID(ctx context.Context, assetID string, kind Kind) error

	// DeleteByPrefix removes every asset under a folder prefix. Used as the
	// defense-in-depth backup covering assets whose ids were never derived.
	DeleteByPrefix(ctx context.Context, prefix string, kind Kind) error
}

// Noop is the Store used when no bucket is configured. Deletions succeed
// without effect, mirroring the event publisher's noop fallback.
type Noop struct{}

// DeleteByID implements Store.
func (Noop) DeleteByID(ctx context.Context, assetID string, kind Kind) error { return nil }

// DeleteByPrefix implements Store.
func (Noop) DeleteByPrefix(ctx context.Context, prefix string, kind Kind) error { return nil }

// S3Store implements Store against an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an asset store for AWS S3 or an S3-compatible service
// like MinIO.
func NewS3Store(endpoint, region, bucket, accessKey, secretKey string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &S3Store{
		client: client,
		bucket: bucket,
	}, nil
}

// key places an asset id in its kind's namespace.
func (s *S3Store) key(assetID string, kind Kind) string {
	return fmt.Sprintf("%s/%s", kind, assetID)
}

// DeleteByID removes a single object. Deleting a missing object is a
// success in S3, which matches the idempotence the callers rely on.
func (s *S3Store) DeleteByID(ctx context.Context, assetID string, kind Kind) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(assetID, kind)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", assetID, err)
	}
	return nil
}

// DeleteByPrefix lists and batch-deletes every object under the prefix in
// the kind's namespace, paging through the listing as needed.
func (s *S3Store) DeleteByPrefix(ctx context.Context, prefix string, kind Kind) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fullPrefix := s.key(prefix, kind) + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list assets under %s: %w", fullPrefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete assets under %s: %w", fullPrefix, err)
		}
	}
	return nil
}
