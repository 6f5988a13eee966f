package service

import (
	"context"
	"strconv"
	"time"

	"github.com/anime-shed/vision-guard-go/internal/analyzer"
	"github.com/anime-shed/vision-guard-go/internal/annotate"
	"github.com/anime-shed/vision-guard-go/internal/cache"
	apperrors "github.com/anime-shed/vision-guard-go/internal/errors"
	"github.com/anime-shed/vision-guard-go/internal/logger"
	"github.com/anime-shed/vision-guard-go/internal/observer"
	"github.com/anime-shed/vision-guard-go/internal/repository"
	"github.com/anime-shed/vision-guard-go/pkg/models"
	"github.com/anime-shed/vision-guard-go/pkg/validation"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Upload is an image received from a client, not yet validated
type Upload struct {
	Filename string
	Data     []byte
}

// ImageAnalysisService runs validation, detection and moderation for uploads and remote images
type ImageAnalysisService interface {
	Detect(ctx context.Context, upload Upload, override analyzer.DetectionOverride) (*models.DetectionResponse, error)
	DetectAnnotated(ctx context.Context, upload Upload, override analyzer.DetectionOverride) (*models.AnnotatedImage, error)
	Moderate(ctx context.Context, upload Upload, override analyzer.ModerationOverride) (*models.ModerationResponse, error)
	Analyze(ctx context.Context, upload Upload, detection analyzer.DetectionOverride, moderation analyzer.ModerationOverride) (*models.AnalysisResponse, error)

	DetectFromURL(ctx context.Context, request models.URLAnalysisRequest) (*models.DetectionResponse, error)
	ModerateFromURL(ctx context.Context, request models.URLAnalysisRequest) (*models.ModerationResponse, error)

	Labels() (*models.ClassesResponse, error)
	Ready() map[string]bool
}

// Options carries the policy knobs the service applies to every request
type Options struct {
	MaxFileSize       int64
	AllowedExtensions []string
	FetchTimeout      time.Duration
	AnalysisTimeout   time.Duration
}

// Dependencies groups what the service is built from. Detector and Moderator may be nil
// when their model failed to load; the matching operations then report unavailable.
// A nil Cache disables result caching.
type Dependencies struct {
	Validator  *validation.ImageValidator
	Detector   *analyzer.GuardedDetector
	Moderator  *analyzer.GuardedModerator
	Pool       *analyzer.WorkerPool
	Repository repository.ImageRepository
	Events     observer.Subject
	Cache      cache.ResultCache
}

// cachedDetection is the cached form of a detection result
type cachedDetection struct {
	Detections []models.Detection         `json:"detections"`
	Thresholds models.DetectionThresholds `json:"thresholds"`
}

type imageAnalysisService struct {
	deps Dependencies
	opts Options
}

// NewImageAnalysisService creates a new image analysis service
func NewImageAnalysisService(deps Dependencies, opts Options) ImageAnalysisService {
	if deps.Validator == nil {
		deps.Validator = validation.NewImageValidator(nil)
	}
	if deps.Events == nil {
		deps.Events = observer.NewEventPublisher()
	}
	return &imageAnalysisService{deps: deps, opts: opts}
}

// Detect validates the upload and runs object detection on it
func (s *imageAnalysisService) Detect(ctx context.Context, upload Upload, override analyzer.DetectionOverride) (*models.DetectionResponse, error) {
	start := time.Now()

	img, err := s.validate(ctx, upload)
	if err != nil {
		return nil, err
	}

	detections, thresholds, err := s.detect(ctx, img, upload.Data, override)
	if err != nil {
		return nil, err
	}

	return s.detectionResponse(ctx, img, detections, thresholds, start), nil
}

// DetectAnnotated runs detection and renders the boxes onto a JPEG copy of the upload
func (s *imageAnalysisService) DetectAnnotated(ctx context.Context, upload Upload, override analyzer.DetectionOverride) (*models.AnnotatedImage, error) {
	img, err := s.validate(ctx, upload)
	if err != nil {
		return nil, err
	}

	detections, _, err := s.detect(ctx, img, upload.Data, override)
	if err != nil {
		return nil, err
	}

	jpeg, err := annotate.EncodeJPEG(img.Image, detections)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to render annotated image", err)
	}

	return &models.AnnotatedImage{
		Filename:     img.Filename,
		JPEG:         jpeg,
		TotalObjects: len(detections),
	}, nil
}

// Moderate validates the upload and classifies it for unsafe content
func (s *imageAnalysisService) Moderate(ctx context.Context, upload Upload, override analyzer.ModerationOverride) (*models.ModerationResponse, error) {
	start := time.Now()

	img, err := s.validate(ctx, upload)
	if err != nil {
		return nil, err
	}

	verdict, err := s.moderate(ctx, img, upload.Data, override)
	if err != nil {
		return nil, err
	}

	return s.moderationResponse(ctx, img, verdict, start), nil
}

// Analyze validates the upload once and runs detection and moderation concurrently
func (s *imageAnalysisService) Analyze(ctx context.Context, upload Upload, detOverride analyzer.DetectionOverride, modOverride analyzer.ModerationOverride) (*models.AnalysisResponse, error) {
	start := time.Now()

	img, err := s.validate(ctx, upload)
	if err != nil {
		return nil, err
	}

	var (
		detections []models.Detection
		thresholds models.DetectionThresholds
		verdict    *models.ModerationVerdict
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		detections, thresholds, err = s.detect(gctx, img, upload.Data, detOverride)
		return err
	})
	g.Go(func() error {
		var err error
		verdict, err = s.moderate(gctx, img, upload.Data, modOverride)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.AnalysisResponse{
		Success:          true,
		Filename:         img.Filename,
		ImageShape:       shapeOf(img),
		Detection:        s.detectionResponse(ctx, img, detections, thresholds, start),
		Moderation:       verdict,
		Message:          analyzer.VerdictMessage(*verdict),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		RequestID:        logger.RequestIDFromContext(ctx),
	}, nil
}

// DetectFromURL fetches a remote image and runs detection on it
func (s *imageAnalysisService) DetectFromURL(ctx context.Context, request models.URLAnalysisRequest) (*models.DetectionResponse, error) {
	upload, err := s.fetch(ctx, request.URL)
	if err != nil {
		return nil, err
	}
	return s.Detect(ctx, *upload, analyzer.DetectionOverride{Confidence: request.Confidence, IoU: request.IoU})
}

// ModerateFromURL fetches a remote image and moderates it
func (s *imageAnalysisService) ModerateFromURL(ctx context.Context, request models.URLAnalysisRequest) (*models.ModerationResponse, error) {
	upload, err := s.fetch(ctx, request.URL)
	if err != nil {
		return nil, err
	}
	return s.Moderate(ctx, *upload, analyzer.ModerationOverride{Threshold: request.Threshold})
}

// Labels lists the classes the detection engine can report
func (s *imageAnalysisService) Labels() (*models.ClassesResponse, error) {
	if s.deps.Detector == nil {
		return nil, apperrors.NewUnavailableError("Object detection model not loaded", nil)
	}
	labels := s.deps.Detector.Labels()
	return &models.ClassesResponse{
		TotalClasses: len(labels),
		Classes:      labels,
	}, nil
}

// Ready reports which engines are loaded
func (s *imageAnalysisService) Ready() map[string]bool {
	return map[string]bool{
		"detection":  s.deps.Detector != nil,
		"moderation": s.deps.Moderator != nil,
	}
}

func (s *imageAnalysisService) validate(ctx context.Context, upload Upload) (*validation.ValidatedImage, error) {
	img, err := s.deps.Validator.Validate(upload.Filename, upload.Data, s.opts.MaxFileSize, s.opts.AllowedExtensions)
	if err != nil {
		metadata := map[string]interface{}{}
		if reason, ok := validation.ReasonOf(err); ok {
			metadata[observer.MetaReason] = string(reason)
		}
		s.publish(ctx, observer.ValidationRejected, upload.Filename, 0, err, metadata)
		return nil, mapError(err)
	}
	return img, nil
}

func (s *imageAnalysisService) detect(ctx context.Context, img *validation.ValidatedImage, data []byte, override analyzer.DetectionOverride) ([]models.Detection, models.DetectionThresholds, error) {
	if s.deps.Detector == nil {
		return nil, models.DetectionThresholds{}, apperrors.NewUnavailableError("Object detection model not loaded", nil)
	}
	if err := override.Validate(); err != nil {
		return nil, models.DetectionThresholds{}, mapError(err)
	}

	effective := s.deps.Detector.Effective(override)
	key := cache.Key("detect", data, param(effective.Confidence), param(effective.IoU))
	var hit cachedDetection
	if s.lookup(ctx, key, &hit) {
		s.publish(ctx, observer.DetectionCompleted, img.Filename, 0, nil, map[string]interface{}{
			observer.MetaTotalObjects: len(hit.Detections),
			observer.MetaCached:       true,
		})
		return hit.Detections, hit.Thresholds, nil
	}

	start := time.Now()
	r, err := runGuarded(ctx, s, func(ctx context.Context) (cachedDetection, error) {
		detections, thresholds, err := s.deps.Detector.Detect(ctx, img.Image, override)
		return cachedDetection{Detections: detections, Thresholds: thresholds}, err
	})
	elapsed := time.Since(start)

	if err != nil {
		s.publish(ctx, observer.DetectionFailed, img.Filename, elapsed, err, nil)
		return nil, models.DetectionThresholds{}, mapError(err)
	}

	s.store(ctx, key, r)
	s.publish(ctx, observer.DetectionCompleted, img.Filename, elapsed, nil, map[string]interface{}{
		observer.MetaTotalObjects: len(r.Detections),
	})
	return r.Detections, r.Thresholds, nil
}

func (s *imageAnalysisService) moderate(ctx context.Context, img *validation.ValidatedImage, data []byte, override analyzer.ModerationOverride) (*models.ModerationVerdict, error) {
	if s.deps.Moderator == nil {
		return nil, apperrors.NewUnavailableError("Content moderation model not loaded", nil)
	}
	if err := override.Validate(); err != nil {
		return nil, mapError(err)
	}

	key := cache.Key("moderate", data,
		param(s.deps.Moderator.EffectiveThreshold(override)), s.deps.Moderator.Policy().Fingerprint())
	var hit models.ModerationVerdict
	if s.lookup(ctx, key, &hit) {
		metadata := verdictMetadata(&hit)
		metadata[observer.MetaCached] = true
		s.publish(ctx, observer.ModerationCompleted, img.Filename, 0, nil, metadata)
		return &hit, nil
	}

	start := time.Now()
	verdict, err := runGuarded(ctx, s, func(ctx context.Context) (*models.ModerationVerdict, error) {
		return s.deps.Moderator.Moderate(ctx, img.Image, override)
	})
	elapsed := time.Since(start)

	if err != nil {
		s.publish(ctx, observer.ModerationFailed, img.Filename, elapsed, err, nil)
		return nil, mapError(err)
	}

	s.store(ctx, key, verdict)
	s.publish(ctx, observer.ModerationCompleted, img.Filename, elapsed, nil, verdictMetadata(verdict))
	return verdict, nil
}

func verdictMetadata(verdict *models.ModerationVerdict) map[string]interface{} {
	metadata := map[string]interface{}{
		observer.MetaIsSafe:       verdict.IsSafe,
		observer.MetaSeverity:     string(verdict.Severity),
		observer.MetaOverallScore: verdict.OverallScore,
		observer.MetaFlags:        verdict.Flags,
	}
	if verdict.FlaggedCategory != nil {
		metadata[observer.MetaFlaggedCategory] = *verdict.FlaggedCategory
	}
	return metadata
}

// lookup reports a cache hit. Cache failures are logged and treated as a miss.
func (s *imageAnalysisService) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.deps.Cache == nil {
		return false
	}
	found, err := s.deps.Cache.Get(ctx, key, dest)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Result cache read failed")
		return false
	}
	return found
}

func (s *imageAnalysisService) store(ctx context.Context, key string, value interface{}) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Set(ctx, key, value); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Result cache write failed")
	}
}

// param renders an effective threshold for a cache key
func param(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *imageAnalysisService) fetch(ctx context.Context, rawURL string) (*Upload, error) {
	if s.deps.Repository == nil {
		return nil, apperrors.NewUnavailableError("Remote image sources are not configured", nil)
	}

	fetchCtx := ctx
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	source, err := s.deps.Repository.Fetch(fetchCtx, rawURL)
	if err != nil {
		s.publish(ctx, observer.ImageFetchFailed, rawURL, time.Since(start), err, nil)
		return nil, mapError(err)
	}

	s.publish(ctx, observer.ImageFetched, source.URL, time.Since(start), nil, map[string]interface{}{
		observer.MetaBackend: source.Backend,
		"bytes":              len(source.Data),
	})
	return &Upload{Filename: source.Filename, Data: source.Data}, nil
}

// runGuarded executes fn on the worker pool. When the caller's context ends first the
// job keeps running so the guarded engine call can finish and restore its baseline.
func runGuarded[T any](ctx context.Context, s *imageAnalysisService, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if s.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AnalysisTimeout)
		defer cancel()
	}

	if s.deps.Pool == nil {
		return fn(ctx)
	}

	type result struct {
		value T
		err   error
	}
	out := make(chan result, 1)
	if err := s.deps.Pool.Run(ctx, func() {
		v, err := fn(ctx)
		out <- result{v, err}
	}); err != nil {
		return zero, err
	}

	r := <-out
	return r.value, r.err
}

func (s *imageAnalysisService) detectionResponse(ctx context.Context, img *validation.ValidatedImage, detections []models.Detection, thresholds models.DetectionThresholds, start time.Time) *models.DetectionResponse {
	return &models.DetectionResponse{
		Success:          true,
		Filename:         img.Filename,
		TotalObjects:     len(detections),
		Detections:       detections,
		ImageShape:       shapeOf(img),
		Thresholds:       thresholds,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		RequestID:        logger.RequestIDFromContext(ctx),
	}
}

func (s *imageAnalysisService) moderationResponse(ctx context.Context, img *validation.ValidatedImage, verdict *models.ModerationVerdict, start time.Time) *models.ModerationResponse {
	return &models.ModerationResponse{
		Success:           true,
		Filename:          img.Filename,
		ModerationVerdict: *verdict,
		ImageShape:        shapeOf(img),
		Message:           analyzer.VerdictMessage(*verdict),
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
		RequestID:         logger.RequestIDFromContext(ctx),
	}
}

func (s *imageAnalysisService) publish(ctx context.Context, eventType observer.EventType, source string, elapsed time.Duration, err error, metadata map[string]interface{}) {
	event := observer.AnalysisEvent{
		EventType:      eventType,
		RequestID:      logger.RequestIDFromContext(ctx),
		Source:         source,
		ProcessingTime: elapsed,
		Success:        err == nil,
		Metadata:       metadata,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	s.deps.Events.NotifyObservers(ctx, event)

	logger.FromContext(ctx).WithFields(logrus.Fields{
		"event_type": eventType,
		"source":     source,
	}).Debug("Published analysis event")
}

func shapeOf(img *validation.ValidatedImage) models.ImageShape {
	return models.ImageShape{
		Height:   img.Height,
		Width:    img.Width,
		Channels: img.Channels,
	}
}
