// Package archive keeps the raw body of every gateway notification in S3-compatible
// storage (Cloudflare R2 in production) so disputed settlements can be audited and replayed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores one raw notification body
type Archiver interface {
	Archive(ctx context.Context, paymentID string, body []byte) error
}

// Options configure the S3 archiver
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// putter is the slice of the S3 client we use
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes notifications under itn/YYYY/MM/DD/
type S3Archiver struct {
	client putter
	bucket string
	now    func() time.Time
}

// NewS3Archiver builds an S3 client with static credentials and an optional custom endpoint
func NewS3Archiver(ctx context.Context, opts Options) (*S3Archiver, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure archive client: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: opts.Bucket, now: time.Now}, nil
}

// Key returns the object key for a notification received at t
func Key(paymentID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("itn/%s/%s-%d.txt", t.Format("2006/01/02"), paymentID, t.UnixNano())
}

func (a *S3Archiver) Archive(ctx context.Context, paymentID string, body []byte) error {
	if paymentID == "" {
		paymentID = "unknown"
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(paymentID, a.now())),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-www-form-urlencoded"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive notification: %w", err)
	}
	return nil
}

// Nop discards everything; used when archiving is disabled
type Nop struct{}

func (Nop) Archive(context.Context, string, []byte) error { return nil }
