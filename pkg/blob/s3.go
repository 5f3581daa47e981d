package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Store keeps blobs in an S3 bucket. A custom endpoint plus path-style
// addressing makes it work against MinIO in development.
type S3Store struct {
	client s3iface.S3API
	bucket string
}

// NewS3Store builds an S3-backed store from cfg.
func NewS3Store(cfg Config) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// NewS3StoreWithClient builds a store around an existing client, for tests.
func NewS3StoreWithClient(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("putting object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) SignedURL(_ context.Context, key string, expires time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expires)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return url, nil
}
