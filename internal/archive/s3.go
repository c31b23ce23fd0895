// Package archive copies uploaded documents to S3-compatible object storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/openfast-rag/openfast-rag-backend/config"
)

// PutObjectAPI is the slice of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Archiver(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewFromConfig builds an archiver from the default AWS credential chain.
// It returns nil when no bucket is configured.
func NewFromConfig(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsConf, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Archiver(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// Archive stores r under the configured prefix and returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	fullKey := a.objectKey(key)

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(fullKey),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, fullKey, err)
	}
	return fullKey, nil
}

func (a *S3Archiver) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if a.prefix == "" {
		return key
	}
	return strings.TrimRight(a.prefix, "/") + "/" + key
}
