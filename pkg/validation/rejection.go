package validation

import (
	"errors"
	"fmt"
)

// RejectionReason classifies why an upload was refused
type RejectionReason string

const (
	BadExtension       RejectionReason = "bad_extension"
	TooLarge           RejectionReason = "too_large"
	BadSignature       RejectionReason = "bad_signature"
	UndecodableContent RejectionReason = "undecodable_content"
	DimensionTooSmall  RejectionReason = "dimension_too_small"
	DimensionTooLarge  RejectionReason = "dimension_too_large"
)

// Rejection is returned by the image validator. Only the fields relevant to the
// reason are populated.
type Rejection struct {
	Reason    RejectionReason
	Message   string
	Filename  string
	Extension string
	Allowed   []string
	Size      int64
	Limit     int64
	Width     int
	Height    int
	Cause     error
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", r.Reason, r.Message, r.Cause)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error {
	return r.Cause
}

// Details renders the diagnostic fields as a flat map for error responses
func (r *Rejection) Details() map[string]interface{} {
	details := map[string]interface{}{"reason": string(r.Reason)}
	if r.Filename != "" {
		details["filename"] = r.Filename
	}
	switch r.Reason {
	case BadExtension:
		if r.Extension != "" {
			details["extension"] = r.Extension
		}
		details["allowed_extensions"] = r.Allowed
	case TooLarge:
		details["file_size"] = r.Size
		details["max_size"] = r.Limit
	case DimensionTooSmall, DimensionTooLarge:
		details["width"] = r.Width
		details["height"] = r.Height
		if r.Limit > 0 {
			details["max_dimension"] = r.Limit
		}
	case UndecodableContent:
		if r.Cause != nil {
			details["error"] = r.Cause.Error()
		}
	}
	return details
}

// ReasonOf extracts the rejection reason from err, if any
func ReasonOf(err error) (RejectionReason, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}
