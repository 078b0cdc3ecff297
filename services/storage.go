package services

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"time"

	"fashionstudio/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// AssetStorage keeps generated media so jobs can hand back a link instead of bytes.
type AssetStorage interface {
	Upload(ctx context.Context, objectKey string, data []byte, mimeType string) error
	PresignRead(ctx context.Context, objectKey string) (string, error)
}

// R2Storage talks to Cloudflare R2 through the S3 API.
type R2Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewR2Storage(ctx context.Context, cfg config.StorageConfig) (*R2Storage, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("storage credentials are not configured")
	}
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID),
		}, nil
	})
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &R2Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (r *R2Storage) Upload(ctx context.Context, objectKey string, data []byte, mimeType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}

func (r *R2Storage) PresignRead(ctx context.Context, objectKey string) (string, error) {
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(presignedURLExpiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return req.URL, nil
}

// NewObjectKey builds keys like "video/2025/05/01/<uuid>.mp4".
func NewObjectKey(kind, mimeType string, now time.Time) string {
	return path.Join(kind, now.UTC().Format("2006/01/02"), uuid.NewString()+objectExt(mimeType))
}

// objectExt pins the types this service produces; the system mime table
// only covers the rest, and its order differs between hosts.
func objectExt(mimeType string) string {
	switch mimeType {
	case "video/mp4":
		return ".mp4"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/wave":
		return ".wav"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
