package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobStorage downloads blobs from an Azure storage account
type BlobStorage interface {
	GetBlob(ctx context.Context, blobURL string, limit int64) ([]byte, error)
	Owns(u *url.URL) bool
}

type azureStorage struct {
	client  *azblob.Client
	account string
}

// NewAzureStorage creates a blob reader for the given account using shared key auth
func NewAzureStorage(accountName string, accountKey string) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &azureStorage{client: client, account: accountName}, nil
}

// Owns reports whether u points into this storage account
func (s *azureStorage) Owns(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), s.account+".blob.core.windows.net")
}

// GetBlob accepts both https://acct.blob.core.windows.net/container/path/to/blob and
// https://acct.blob.core.windows.net/container?blob=path/to/blob
func (s *azureStorage) GetBlob(ctx context.Context, blobURL string, limit int64) ([]byte, error) {
	parsedURL, err := url.Parse(blobURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob URL: %w", err)
	}

	containerName, blobName, err := SplitBlobPath(parsedURL)
	if err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return nil, fmt.Errorf("download failed: %w (%s)", &StatusError{StatusCode: respErr.StatusCode}, respErr.ErrorCode)
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	data, err := io.ReadAll(io.LimitReader(retryReader, limit))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// SplitBlobPath extracts the container and blob names from a blob URL
func SplitBlobPath(u *url.URL) (container, blob string, err error) {
	path := strings.TrimPrefix(u.Path, "/")
	if blob = u.Query().Get("blob"); blob != "" {
		container = strings.TrimSuffix(path, "/")
	} else if i := strings.Index(path, "/"); i >= 0 {
		container, blob = path[:i], path[i+1:]
	}

	if container == "" || blob == "" || strings.Contains(container, "/") {
		return "", "", fmt.Errorf("blob URL must name a container and a blob: %s", u.Redacted())
	}
	return container, blob, nil
}
