package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the part of the S3 API the uploader needs. *s3.Client satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Config struct {
	Region    string
	Endpoint  string // optional, for MinIO/R2
	AccessKey string
	SecretKey string
}

// NewS3Client builds a path-style client from static credentials.
func NewS3Client(cfg S3Config) *s3.Client {
	return s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretKey, Source: "meetsense-config"}, nil
		}),
		BaseEndpoint: nonEmpty(cfg.Endpoint),
		UsePathStyle: cfg.Endpoint != "",
	})
}

type S3Uploader struct {
	client  S3Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewS3Uploader archives reports under prefix in bucket. presign may be nil,
// in which case SignedGetURL is unavailable.
func NewS3Uploader(client S3Client, presign *s3.PresignClient, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, presign: presign, bucket: bucket, prefix: prefix}
}

func (u *S3Uploader) key(name string) string {
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}

func (u *S3Uploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	key := u.key(objectName)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func (u *S3Uploader) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key(objectName)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (u *S3Uploader) SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	if u.presign == nil {
		return "", errors.New("s3 presigning not configured")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.key(objectName)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
