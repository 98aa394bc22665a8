package registry

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectPutter is the subset of *s3.Client used for backups.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Backup uploads registry exports to S3-compatible object storage.
type Backup struct {
	s3     ObjectPutter
	bucket string
	now    func() time.Time
	logger zerolog.Logger
}

// NewS3Client returns a path-style client for an S3-compatible endpoint.
func NewS3Client(endpoint, region, accessKey, secretKey string) *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})
}

func NewBackup(client ObjectPutter, bucket string, logger zerolog.Logger) *Backup {
	return &Backup{
		s3:     client,
		bucket: bucket,
		now:    time.Now,
		logger: logger.With().Str("component", "registry-backup").Logger(),
	}
}

// Run exports the registry and uploads it as registry/<timestamp>.yml.
// It returns the object key.
func (b *Backup) Run(ctx context.Context, s Store) (string, error) {
	var buf bytes.Buffer
	if err := Export(ctx, s, &buf); err != nil {
		return "", err
	}
	return b.Upload(ctx, buf.Bytes())
}

// Upload stores data under a timestamped key.
func (b *Backup) Upload(ctx context.Context, data []byte) (string, error) {
	key := fmt.Sprintf("registry/%s.yml", b.now().UTC().Format("20060102T150405Z"))

	_, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return "", fmt.Errorf("upload registry backup: %w", err)
	}

	b.logger.Info().Str("bucket", b.bucket).Str("key", key).Int("bytes", len(data)).Msg("registry backup uploaded")
	return key, nil
}
