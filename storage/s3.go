package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Property keys for S3 access, shared with catalog properties.
const (
	PropS3Endpoint        = "s3.endpoint"
	PropS3Region          = "s3.region"
	PropS3AccessKeyID     = "s3.access-key-id"
	PropS3SecretAccessKey = "s3.secret-access-key"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage implements Storage on S3-compatible object storage.
type S3Storage struct {
	client S3API
}

// NewS3Storage wraps an existing client.
func NewS3Storage(client S3API) *S3Storage {
	return &S3Storage{client: client}
}

// LoadAWSConfig builds an aws.Config from s3.* properties with optional
// static credentials.
func LoadAWSConfig(ctx context.Context, props map[string]string) (aws.Config, error) {
	region := props[PropS3Region]
	if region == "" {
		region = "us-east-1"
	}
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	if id, secret := props[PropS3AccessKeyID], props[PropS3SecretAccessKey]; id != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewS3StorageFromProps creates the client with optional static credentials
// and custom endpoint.
func NewS3StorageFromProps(ctx context.Context, props map[string]string) (*S3Storage, error) {
	cfg, err := LoadAWSConfig(ctx, props)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if endpoint := props[PropS3Endpoint]; endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	return &S3Storage{client: s3.NewFromConfig(cfg, s3Opts...)}, nil
}

func splitS3(location string) (bucket, key string, err error) {
	_, rest, ok := strings.Cut(location, "://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location needs bucket and key: %s", location)
	}
	return bucket, key, nil
}

func (s *S3Storage) Write(ctx context.Context, path string, data []byte) error {
	bucket, key, err := splitS3(path)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) Read(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := splitS3(path)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := splitS3(path)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", path, err)
}

func (s *S3Storage) Delete(ctx context.Context, path string) error {
	bucket, key, err := splitS3(path)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// ForLocation picks S3Storage for object-store locations and LocalStorage
// otherwise.
func ForLocation(ctx context.Context, location string, props map[string]string) (Storage, error) {
	if IsObjectStore(location) {
		return NewS3StorageFromProps(ctx, props)
	}
	return &LocalStorage{}, nil
}
