package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReadURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:      "eu-west-3",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	})
	svc := NewS3ServiceFromClient(client, "radar-pictures")
	svc.Expires = 15 * time.Minute

	signed, err := svc.GenerateReadURL(context.Background(), "avatars/u1.jpg")
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Contains(t, parsed.Host+parsed.Path, "radar-pictures")
	assert.Contains(t, parsed.Path, "avatars/u1.jpg")
	assert.NotEmpty(t, parsed.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", parsed.Query().Get("X-Amz-Expires"))
}
