package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ArtifactConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

// ArtifactStore uploads rendered exports to S3-compatible storage and hands
// back a presigned download URL.
type ArtifactStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewArtifactStore(ctx context.Context, cfg ArtifactConfig) (*ArtifactStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ArtifactStore{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

// Put stores result under a per-objective key and returns a presigned URL.
func (a *ArtifactStore) Put(ctx context.Context, objectiveID string, result *Result) (string, error) {
	key := artifactKey(objectiveID, result.Filename, time.Now().UTC())
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	signed, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign export %s: %w", key, err)
	}
	return signed.String(), nil
}

func artifactKey(objectiveID, filename string, at time.Time) string {
	return path.Join("exports", objectiveID, at.Format("20060102T150405Z")+"-"+filename)
}
