package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Service signs read URLs for profile pictures stored in S3.
type S3Service struct {
	Presigner *s3.PresignClient
	Bucket    string
	Expires   time.Duration
}

func NewS3Service(ctx context.Context, region, bucket string) (*S3Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ServiceFromClient(s3.NewFromConfig(cfg), bucket), nil
}

func NewS3ServiceFromClient(client *s3.Client, bucket string) *S3Service {
	return &S3Service{
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
		Expires:   time.Hour,
	}
}

// GenerateReadURL generates a presigned URL for reading a file
func (s *S3Service) GenerateReadURL(ctx context.Context, key string) (string, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}
	presignedURL, err := s.Presigner.PresignGetObject(ctx, params, s3.WithPresignExpires(s.Expires))
	if err != nil {
		return "", err
	}
	return presignedURL.URL, nil
}
