// Package s3blob is the cold-storage tier of the portfolio service: closed
// portfolios' journals land here as JSONL objects. It speaks the S3 API via
// AWS SDK v2 and works against MinIO and other compatible stores, which is
// how it runs in development.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig selects the archive bucket and how to reach it.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for compatible providers; empty
	// means real S3.
	Endpoint string

	// Region is required by the SDK even when Endpoint points elsewhere.
	Region string

	// Bucket holds every archive object this service writes and reads.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool

	// ForcePathStyle addresses the bucket in the path instead of the
	// subdomain; MinIO needs this.
	ForcePathStyle bool
}

// Client carries the SDK client plus the archive bucket name for the reader
// and writer in this package.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the archive store client with static credentials and, when
// configured, a custom endpoint and path-style addressing. It does not touch
// the network; Ping verifies reachability.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Ping verifies the bucket exists and the credentials can see it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists so the client fits the app's closer list; the SDK's HTTP
// client needs no teardown.
func (c *Client) Close() error {
	return nil
}

// endpointURL prepends a scheme when the configured endpoint lacks one.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
