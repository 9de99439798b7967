package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// AmazonS3Storage archives evidence in an S3 bucket
type AmazonS3Storage struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewAmazonS3Storage creates an uninitialised S3 provider
func NewAmazonS3Storage() *AmazonS3Storage {
	return &AmazonS3Storage{}
}

// Initialize implements Provider. Options: region and bucket (required),
// prefix, endpoint, accessKey and secretKey.
func (a *AmazonS3Storage) Initialize(options map[string]string) error {
	region := options["region"]
	if region == "" {
		return fmt.Errorf("region is required for Amazon S3 storage")
	}
	a.bucket = options["bucket"]
	if a.bucket == "" {
		return fmt.Errorf("bucket is required for Amazon S3 storage")
	}
	a.prefix = options["prefix"]

	cfg := &aws.Config{Region: aws.String(region)}
	if accessKey, secretKey := options["accessKey"], options["secretKey"]; accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}
	if endpoint := options["endpoint"]; endpoint != "" {
		// S3-compatible stores such as MinIO
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}
	a.s3Client = s3.New(sess)
	a.uploader = s3manager.NewUploader(sess)
	return nil
}

// Type implements Provider
func (a *AmazonS3Storage) Type() string { return "s3" }

func (a *AmazonS3Storage) objectKey(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return a.prefix + key, nil
}

// Put implements Provider
func (a *AmazonS3Storage) Put(ctx context.Context, key string, content io.Reader, size int64, meta Metadata) (string, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return "", err
	}

	input := &s3manager.UploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(objectKey),
		Body:     content,
		Metadata: aws.StringMap(meta.Attributes),
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return objectKey, nil
}

// Get implements Provider
func (a *AmazonS3Storage) Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	out, err := a.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, Metadata{}, s3Error("retrieve", key, err)
	}
	return out.Body, Metadata{
		ContentType: aws.StringValue(out.ContentType),
		Attributes:  aws.StringValueMap(out.Metadata),
	}, nil
}

// Delete implements Provider
func (a *AmazonS3Storage) Delete(ctx context.Context, key string) error {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return err
	}
	_, err = a.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return s3Error("delete", key, err)
	}
	return nil
}

// List implements Provider. Listings do not fetch per-object metadata.
func (a *AmazonS3Storage) List(ctx context.Context, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix + prefix),
	}

	var objects []Object
	err := a.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			objects = append(objects, Object{
				Key:        key[len(a.prefix):],
				Size:       aws.Int64Value(obj.Size),
				ModifiedAt: aws.TimeValue(obj.LastModified),
			})
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files from S3: %w", err)
	}
	return objects, nil
}

// SignedURL implements Provider with a presigned GET
func (a *AmazonS3Storage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	objectKey, err := a.objectKey(key)
	if err != nil {
		return "", err
	}
	req, _ := a.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return url, nil
}

func s3Error(op, key string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to %s file in S3: %w", op, err)
}
