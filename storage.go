package kivaquery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type S3Config struct {
	Endpoint        string
	AccessKeyId     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

// S3Uploader puts exported workbooks into a bucket
type S3Uploader struct {
	raw    *minio.Client
	bucket string
	prefix string
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyId, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create s3 client: %w", err)
	}

	return &S3Uploader{raw: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores data under the configured prefix and returns the object key
func (u *S3Uploader) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	key := u.prefix + fileName

	_, err := u.raw.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: xlsxContentType,
	})
	if err != nil {
		return "", fmt.Errorf("unable to put object %q: %w", key, err)
	}

	return key, nil
}

func (u *S3Uploader) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := u.raw.PresignedGetObject(ctx, u.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("unable to presign object %q: %w", key, err)
	}

	return url.String(), nil
}
