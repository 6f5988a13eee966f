package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	apperrors "github.com/anime-shed/vision-guard-go/internal/errors"
	"github.com/anime-shed/vision-guard-go/internal/repository"
	"github.com/anime-shed/vision-guard-go/pkg/validation"
)

// mapError converts domain errors into AppErrors carrying the right HTTP status
func mapError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var rejection *validation.Rejection
	if errors.As(err, &rejection) {
		return apperrors.NewRejectionError(rejection.Message, rejectionStatus(rejection.Reason), rejection)
	}

	var failure *analyzer.EngineFailure
	if errors.As(err, &failure) {
		if failure.Kind == analyzer.KindModeration {
			return apperrors.NewModerationError("Content moderation failed", failure).WithDetails(failure.Error())
		}
		return apperrors.NewDetectionError("Object detection failed", failure).WithDetails(failure.Error())
	}

	switch {
	case errors.Is(err, analyzer.ErrConfiguration):
		return apperrors.NewConfigurationError("Invalid threshold", err).WithDetails(err.Error())
	case errors.Is(err, repository.ErrInvalidImageURL):
		return apperrors.NewValidationError("Invalid image URL", err).WithDetails(err.Error())
	case errors.Is(err, repository.ErrImageNotFound):
		return apperrors.NewNotFoundError("Image not found at URL", err)
	case errors.Is(err, repository.ErrRepositoryUnavailable):
		return apperrors.NewNetworkError("Failed to fetch image", err)
	case errors.Is(err, analyzer.ErrPoolClosed):
		return apperrors.NewUnavailableError("Service is shutting down", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("Request timed out", err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewTimeoutError("Request cancelled", err)
	default:
		return apperrors.NewInternalError("Internal server error", err)
	}
}

func rejectionStatus(reason validation.RejectionReason) int {
	switch reason {
	case validation.TooLarge:
		return http.StatusRequestEntityTooLarge
	case validation.BadExtension:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
