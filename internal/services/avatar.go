package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AvatarService hands out pre-signed S3 upload URLs for profile
// pictures. The rest of the system only ever sees the resulting picture
// reference as an opaque string.
type AvatarService struct {
	s3Client *s3.Client
	s3Bucket string
	region   string
}

// NewAvatarService creates a new avatar service
func NewAvatarService(region, bucket, accessKey, secretKey, endpoint string) (*AvatarService, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &AvatarService{
		s3Client: s3Client,
		s3Bucket: bucket,
		region:   region,
	}, nil
}

// UploadResponse carries a pre-signed upload URL and the picture
// reference to store once the upload completes.
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	Picture   string `json:"picture"`
	ExpiresIn int    `json:"expires_in"`
}

// GetUploadURL generates a pre-signed PUT URL for the user's avatar.
func (s *AvatarService) GetUploadURL(ctx context.Context, userID, contentType string) (*UploadResponse, error) {
	s3Key := fmt.Sprintf("avatars/%s.jpg", userID)

	presignClient := s3.NewPresignClient(s.s3Client)
	request, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Bucket),
		Key:         aws.String(s3Key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = 5 * time.Minute
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	picture := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.s3Bucket, s.region, s3Key)
	return &UploadResponse{
		UploadURL: request.URL,
		Picture:   picture,
		ExpiresIn: 300,
	}, nil
}
