package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/anime-shed/vision-guard-go/internal/storage"
	"github.com/anime-shed/vision-guard-go/pkg/validation"
)

// RemoteImageRepository implements ImageRepository over HTTP with an optional Azure blob backend
type RemoteImageRepository struct {
	fetcher   storage.ImageFetcher
	blobs     storage.BlobStorage
	validator *validation.URLValidator
	maxBytes  int64
}

// NewRemoteImageRepository creates a repository. blobs may be nil when Azure is not configured.
// maxBytes is the largest accepted image; one extra byte is read so oversize content is detectable.
func NewRemoteImageRepository(fetcher storage.ImageFetcher, blobs storage.BlobStorage, validator *validation.URLValidator, maxBytes int64) ImageRepository {
	if validator == nil {
		validator = validation.NewURLValidator()
	}
	return &RemoteImageRepository{
		fetcher:   fetcher,
		blobs:     blobs,
		validator: validator,
		maxBytes:  maxBytes,
	}
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *RemoteImageRepository) ValidateImageURL(rawURL string) error {
	if err := r.validator.ValidateImageURL(rawURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
	}
	return nil
}

// Fetch downloads the image at rawURL from the backend that owns it
func (r *RemoteImageRepository) Fetch(ctx context.Context, rawURL string) (*ImageSource, error) {
	u, err := r.validator.ValidateSourceURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
	}

	source := &ImageSource{
		URL:      u.Redacted(),
		Filename: validation.FilenameFromURL(u),
		Backend:  "http",
	}

	limit := r.maxBytes + 1
	if r.blobs != nil && r.blobs.Owns(u) {
		source.Backend = "azure"
		source.Data, err = r.blobs.GetBlob(ctx, u.String(), limit)
	} else {
		source.Data, err = r.fetcher.FetchBytes(ctx, u.String(), limit)
	}
	if err != nil {
		return nil, classifyFetchError(ctx, err)
	}
	return source, nil
}

func classifyFetchError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case storage.IsClientError(err):
		return fmt.Errorf("%w: %v", ErrImageNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
}
