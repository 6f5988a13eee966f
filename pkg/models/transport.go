package models

import "time"

// URLAnalysisRequest asks for analysis of a remotely hosted image.
// Threshold fields are optional per-request overrides.
type URLAnalysisRequest struct {
	URL        string   `json:"url" binding:"required"`
	Confidence *float64 `json:"confidence,omitempty"`
	IoU        *float64 `json:"iou,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string      `json:"error"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionResponse is returned by the detection endpoints
type DetectionResponse struct {
	Success          bool                `json:"success"`
	Filename         string              `json:"filename"`
	TotalObjects     int                 `json:"total_objects"`
	Detections       []Detection         `json:"detections"`
	ImageShape       ImageShape          `json:"image_shape"`
	Thresholds       DetectionThresholds `json:"thresholds"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
	RequestID        string              `json:"request_id,omitempty"`
}

// ModerationResponse is returned by the moderation endpoints
type ModerationResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	ModerationVerdict
	ImageShape       ImageShape `json:"image_shape"`
	Message          string     `json:"message"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	RequestID        string     `json:"request_id,omitempty"`
}

// AnalysisResponse combines detection and moderation of a single upload
type AnalysisResponse struct {
	Success          bool               `json:"success"`
	Filename         string             `json:"filename"`
	ImageShape       ImageShape         `json:"image_shape"`
	Detection        *DetectionResponse `json:"detection"`
	Moderation       *ModerationVerdict `json:"moderation"`
	Message          string             `json:"message"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	RequestID        string             `json:"request_id,omitempty"`
}

// AnnotatedImage is a JPEG rendering of the detections
type AnnotatedImage struct {
	Filename     string
	JPEG         []byte
	TotalObjects int
}

// ClassesResponse lists the labels the detection engine can produce
type ClassesResponse struct {
	TotalClasses int            `json:"total_classes"`
	Classes      map[int]string `json:"classes"`
}

// HealthResponse reports service and engine readiness
type HealthResponse struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Time    string          `json:"time"`
	Models  map[string]bool `json:"models"`
}

// FlaggedRecord is a persisted unsafe moderation verdict
type FlaggedRecord struct {
	ID              uint            `json:"id"`
	RequestID       string          `json:"request_id,omitempty"`
	Source          string          `json:"source"`
	Severity        Severity        `json:"severity"`
	OverallScore    float64         `json:"overall_score"`
	FlaggedCategory string          `json:"flagged_category"`
	Flags           []CategoryScore `json:"flags"`
	Cached          bool            `json:"cached"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FlaggedResponse lists the most recent unsafe verdicts, newest first
type FlaggedResponse struct {
	Total   int             `json:"total"`
	Records []FlaggedRecord `json:"records"`
}
