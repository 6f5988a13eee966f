package repository

import (
	"context"
)

// ImageRepository resolves a remote image reference into raw bytes. It does not decode;
// the bytes go through the same validation as an upload.
type ImageRepository interface {
	// Fetch downloads the image at rawURL
	Fetch(ctx context.Context, rawURL string) (*ImageSource, error)

	// ValidateImageURL validates if the provided URL is acceptable
	ValidateImageURL(rawURL string) error
}

// ImageSource is a fetched, not yet validated, image
type ImageSource struct {
	URL      string
	Filename string
	Data     []byte
	// Backend is "http" or "azure"
	Backend string
}
