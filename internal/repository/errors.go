package repository

import "errors"

var (
	// ErrInvalidImageURL indicates an invalid image URL
	ErrInvalidImageURL = errors.New("invalid image URL")

	// ErrImageNotFound indicates the remote server rejected the request with a 4xx status
	ErrImageNotFound = errors.New("image not found")

	// ErrRepositoryUnavailable indicates the remote source could not be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
