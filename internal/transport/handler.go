package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	"github.com/anime-shed/vision-guard-go/internal/config"
	apperrors "github.com/anime-shed/vision-guard-go/internal/errors"
	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/anime-shed/vision-guard-go/internal/service"
	"github.com/anime-shed/vision-guard-go/pkg/models"
	"github.com/anime-shed/vision-guard-go/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	serviceName    = "vision-guard"
	serviceVersion = "1.0.0"
	uploadField    = "file"
)

// FlaggedReader lists recently persisted unsafe verdicts
type FlaggedReader interface {
	Recent(ctx context.Context, limit int) ([]models.FlaggedRecord, error)
}

// Option customises the handler
type Option func(*handler)

// WithAuditLog serves GET /api/v1/moderation/flagged from reader
func WithAuditLog(reader FlaggedReader) Option {
	return func(h *handler) {
		h.flagged = reader
	}
}

// NewHandler builds the HTTP API. metrics may be nil, in which case /metrics is not served.
func NewHandler(svc service.ImageAnalysisService, metrics http.Handler, cfg *config.Config, opts ...Option) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		securityHeaders(),
		corsMiddleware(cfg.CORSAllowedOrigins),
		rateLimiter(cfg.RateLimitPerMinute),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	h := &handler{svc: svc, timeout: cfg.RequestTimeout}
	for _, opt := range opts {
		opt(h)
	}

	// Configure routes
	r.GET("/", h.root)
	r.GET("/health", h.healthCheck)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api/v1")
	api.GET("/classes", h.classes)
	api.POST("/detect", h.detect)
	api.POST("/detect/annotated", h.detectAnnotated)
	api.POST("/detect/url", h.detectFromURL)
	api.POST("/moderate", h.moderate)
	api.POST("/moderate/url", h.moderateFromURL)
	api.POST("/analyze", h.analyze)
	if h.flagged != nil {
		api.GET("/moderation/flagged", h.listFlagged)
	}

	return r
}

type handler struct {
	svc     service.ImageAnalysisService
	flagged FlaggedReader
	timeout time.Duration
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": gin.H{
			"health":           "GET /health",
			"metrics":          "GET /metrics",
			"classes":          "GET /api/v1/classes",
			"detect":           "POST /api/v1/detect",
			"detect_annotated": "POST /api/v1/detect/annotated",
			"detect_url":       "POST /api/v1/detect/url",
			"moderate":         "POST /api/v1/moderate",
			"moderate_url":     "POST /api/v1/moderate/url",
			"analyze":          "POST /api/v1/analyze",
			"flagged":          "GET /api/v1/moderation/flagged",
		},
	})
}

func (h *handler) healthCheck(c *gin.Context) {
	ready := h.svc.Ready()
	status := "healthy"
	for _, ok := range ready {
		if !ok {
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  status,
		Version: serviceVersion,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Models:  ready,
	})
}

func (h *handler) classes(c *gin.Context) {
	labels, err := h.svc.Labels()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, labels)
}

func (h *handler) listFlagged(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, apperrors.NewValidationError("limit must be a positive integer", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	records, err := h.flagged.Recent(ctx, limit)
	if err != nil {
		respondError(c, apperrors.NewInternalError("Failed to read moderation audit log", err))
		return
	}
	c.JSON(http.StatusOK, models.FlaggedResponse{Total: len(records), Records: records})
}

func (h *handler) detect(c *gin.Context) {
	upload, override, ok := h.detectionInput(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.Detect(ctx, upload, override)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"filename":           resp.Filename,
		"total_objects":      resp.TotalObjects,
		"processing_time_ms": resp.ProcessingTimeMs,
	}).Info("Object detection completed successfully")

	c.JSON(http.StatusOK, resp)
}

func (h *handler) detectAnnotated(c *gin.Context) {
	upload, override, ok := h.detectionInput(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	out, err := h.svc.DetectAnnotated(ctx, upload, override)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("X-Total-Objects", strconv.Itoa(out.TotalObjects))
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "annotated_"+out.Filename+".jpg"))
	c.Data(http.StatusOK, "image/jpeg", out.JPEG)
}

func (h *handler) moderate(c *gin.Context) {
	upload, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	threshold, err := optionalFloat(c, "threshold")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.Moderate(ctx, upload, analyzer.ModerationOverride{Threshold: threshold})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"filename": resp.Filename,
		"is_safe":  resp.IsSafe,
		"severity": resp.Severity,
	}).Info("Content moderation completed successfully")

	c.JSON(http.StatusOK, resp)
}

func (h *handler) analyze(c *gin.Context) {
	upload, detOverride, ok := h.detectionInput(c)
	if !ok {
		return
	}
	threshold, err := optionalFloat(c, "threshold")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	resp, err := h.svc.Analyze(ctx, upload, detOverride, analyzer.ModerationOverride{Threshold: threshold})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) detectFromURL(c *gin.Context) {
	req, ok := bindURLRequest(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	logger.FromContext(ctx).WithField("url", req.URL).Debug("Fetching image")

	resp, err := h.svc.DetectFromURL(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) moderateFromURL(c *gin.Context) {
	req, ok := bindURLRequest(c)
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	logger.FromContext(ctx).WithField("url", req.URL).Debug("Fetching image")

	resp, err := h.svc.ModerateFromURL(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// detectionInput reads the upload and the confidence/iou query overrides
func (h *handler) detectionInput(c *gin.Context) (service.Upload, analyzer.DetectionOverride, bool) {
	upload, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return service.Upload{}, analyzer.DetectionOverride{}, false
	}

	var override analyzer.DetectionOverride
	if override.Confidence, err = optionalFloat(c, "confidence"); err != nil {
		respondError(c, err)
		return service.Upload{}, analyzer.DetectionOverride{}, false
	}
	if override.IoU, err = optionalFloat(c, "iou"); err != nil {
		respondError(c, err)
		return service.Upload{}, analyzer.DetectionOverride{}, false
	}
	return upload, override, true
}

func readUpload(c *gin.Context) (service.Upload, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.Upload{}, tooLarge(maxErr.Limit)
		}
		return service.Upload{}, apperrors.NewValidationError("No file provided", err).
			WithDetails(fmt.Sprintf("multipart field %q is required", uploadField))
	}

	f, err := header.Open()
	if err != nil {
		return service.Upload{}, apperrors.NewValidationError("Unable to read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.Upload{}, apperrors.NewValidationError("Unable to read uploaded file", err)
	}
	return service.Upload{Filename: header.Filename, Data: data}, nil
}

// optionalFloat parses a query parameter; range checks are left to the analyzers
func optionalFloat(c *gin.Context, key string) (*float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewConfigurationError("Invalid threshold", err).
			WithDetails(fmt.Sprintf("%s must be a number, got %q", key, raw))
	}
	return &v, nil
}

func bindURLRequest(c *gin.Context) (models.URLAnalysisRequest, bool) {
	var req models.URLAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("Invalid request format", err).WithDetails(err.Error()))
		return req, false
	}
	return req, true
}

func tooLarge(limit int64) error {
	rejection := &validation.Rejection{
		Reason:  validation.TooLarge,
		Message: "Request body too large",
		Limit:   limit,
	}
	return apperrors.NewRejectionError(rejection.Message, http.StatusRequestEntityTooLarge, rejection)
}

func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)

	body := models.ErrorResponse{
		Error:     http.StatusText(code),
		RequestID: logger.RequestIDFromContext(c.Request.Context()),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Error = appErr.Message
		if appErr.Details != "" {
			body.Details = appErr.Details
		}
	}
	var rejection *validation.Rejection
	if errors.As(err, &rejection) {
		body.Details = rejection.Details()
	}

	// Log the error with context
	entry := logger.FromContext(c.Request.Context()).WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, body)
}
