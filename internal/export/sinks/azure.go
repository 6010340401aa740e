package sinks

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/http"
)

// AzureSink uploads exports as block blobs in an Azure Storage container.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
	retry     http.RetryConfig
}

// NewAzureSink builds a SAS-authenticated blob client. httpClient is used
// as the pipeline transport so proxy settings apply.
func NewAzureSink(cfg *config.Config, httpClient *nethttp.Client) (*AzureSink, error) {
	if cfg.AzureAccountURL == "" || cfg.AzureContainer == "" {
		return nil, config.ErrMissingAzureTarget
	}

	client, err := azblob.NewClientWithNoCredential(buildSASURL(cfg.AzureAccountURL, cfg.AzureSASToken), &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureSink{
		client:    client,
		container: cfg.AzureContainer,
		prefix:    cfg.ObjectPrefix,
		retry:     http.DefaultRetryConfig(),
	}, nil
}

// buildSASURL appends the SAS token to the account URL unless the URL
// already carries a query.
func buildSASURL(accountURL, sasToken string) string {
	sasToken = strings.TrimPrefix(sasToken, "?")
	if sasToken == "" || strings.Contains(accountURL, "?") {
		return accountURL
	}
	return strings.TrimRight(accountURL, "/") + "/?" + sasToken
}

// Save uploads one blob and returns its URL without the SAS query.
func (s *AzureSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	blobName := objectKey(s.prefix, name)

	err = http.ExecuteWithRetry(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.client.UploadBuffer(ctx, s.container, blobName, data, &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{
				BlobContentType: to.Ptr(contentType(name, data)),
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s/%s: %w", s.container, blobName, err)
	}

	base := s.client.URL()
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(base, "/") + "/" + s.container + "/" + blobName, nil
}
