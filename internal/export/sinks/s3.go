package sinks

import (
	"bytes"
	"context"
	"fmt"
	nethttp "net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/http"
)

// S3Sink uploads exports as objects in an S3 (or S3-compatible) bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	retry  http.RetryConfig
}

// NewS3Sink builds an S3 client from cfg. httpClient carries the proxy
// configuration and is reused for every request.
func NewS3Sink(ctx context.Context, cfg *config.Config, httpClient *nethttp.Client) (*S3Sink, error) {
	if cfg.S3Bucket == "" {
		return nil, config.ErrMissingS3Bucket
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(awsHTTPClient(httpClient)),
	}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Sink{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.ObjectPrefix,
		retry:  http.DefaultRetryConfig(),
	}, nil
}

// awsHTTPClient adapts httpClient for the SDK. A plain *http.Transport is
// rebuilt as a BuildableClient so that AWS_CA_BUNDLE can still add root
// CAs; any other round tripper (NTLM) is used as is.
func awsHTTPClient(httpClient *nethttp.Client) aws.HTTPClient {
	if httpClient == nil {
		return awshttp.NewBuildableClient()
	}
	base, ok := httpClient.Transport.(*nethttp.Transport)
	if httpClient.Transport == nil {
		base, ok = nethttp.DefaultTransport.(*nethttp.Transport)
	}
	if !ok {
		return httpClient
	}
	return awshttp.NewBuildableClient().
		WithTimeout(httpClient.Timeout).
		WithTransportOptions(func(tr *nethttp.Transport) {
			tr.Proxy = base.Proxy
			tr.ProxyConnectHeader = base.ProxyConnectHeader
			if base.DialContext != nil {
				tr.DialContext = base.DialContext
			}
			if base.TLSClientConfig != nil {
				tr.TLSClientConfig = base.TLSClientConfig.Clone()
			}
			if base.MaxIdleConnsPerHost > 0 {
				tr.MaxIdleConnsPerHost = base.MaxIdleConnsPerHost
			}
			tr.ForceAttemptHTTP2 = base.ForceAttemptHTTP2
		})
}

// Save puts one object and returns its s3:// URI. Transient failures are
// retried with backoff.
func (s *S3Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	key := objectKey(s.prefix, name)

	err = http.ExecuteWithRetry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType(name, data)),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// contentType picks the MIME type for an export. Text exports are sniffed
// as text/plain, so markdown is labelled by extension.
func contentType(name string, data []byte) string {
	if strings.HasSuffix(name, ".md") {
		return "text/markdown; charset=utf-8"
	}
	return mimetype.Detect(data).String()
}
